package compare

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/clarioo/compare-cli/internal/model"
	"github.com/clarioo/compare-cli/internal/resilience"
	"github.com/clarioo/compare-cli/pkg/workflow"
)

const invalidResearchResponse = "Invalid response from research service"

// description returns the project description sent to the remote workflows,
// substituting the fallback when it is too short to be useful.
func (o *Orchestrator) description() string {
	desc := strings.TrimSpace(o.project.ResearchDescription())
	if len([]rune(desc)) < minDescriptionLen {
		return o.cfg.FallbackDescription
	}
	return desc
}

func (o *Orchestrator) cellRequest(crit model.Criterion, vendor model.Vendor) workflow.CellRequest {
	return workflow.CellRequest{
		ProjectID:          o.project.ID,
		ProjectName:        o.project.Name,
		ProjectDescription: o.description(),
		CriterionType:      crit.Type,
		Vendor: workflow.VendorRef{
			ID:      vendor.ID,
			Name:    vendor.Name,
			Website: vendor.Website,
		},
		Criterion: criterionRef(crit),
	}
}

func criterionRef(crit model.Criterion) workflow.CriterionRef {
	return workflow.CriterionRef{
		ID:          crit.ID,
		Name:        crit.Name,
		Importance:  string(crit.Importance),
		Description: crit.Explanation,
	}
}

// researchCell invokes the researcher. Calls run on the orchestrator's base
// context so a pause never aborts them.
func (o *Orchestrator) researchCell(crit model.Criterion, vendor model.Vendor) (*workflow.CellResponse, error) {
	return o.researcher.ResearchCell(o.baseCtx, o.cellRequest(crit, vendor))
}

// settleCell records a Stage-1 outcome, decrements the in-flight counter when
// active, and writes the cell through. It reports whether every vendor's cell
// for the criterion is now completed.
func (o *Orchestrator) settleCell(epoch uint64, crit model.Criterion, vendor model.Vendor, resp *workflow.CellResponse, err error, active bool) bool {
	cell := cellFromResponse(resp, err)
	log := o.log.With(zap.String("criterion_id", crit.ID), zap.String("vendor_id", vendor.ID))
	if cell.State == model.CellStateFailed {
		log.Warn("compare: cell research failed",
			zap.String("error_code", cell.ErrorCode),
			zap.String("error", cell.Error),
			zap.Bool("transient", transient(err)),
		)
	} else {
		log.Debug("compare: cell researched", zap.String("value", string(cell.Value)))
	}

	var allDone bool
	o.apply(epoch, func(run *model.ComparisonRun) writeFunc {
		row := run.Criteria[crit.ID]
		cell.RetryCount = row.Cells[vendor.ID].RetryCount
		row.Cells[vendor.ID] = cell
		row.Stage1Complete = row.AllCompleted(o.project.Vendors)
		allDone = row.Stage1Complete
		if active {
			run.ActiveWorkflows--
		}

		// Fresh Stage-1 data supersedes the ranking override for this vendor.
		var s2 *model.Stage2Result
		if res, ok := o.stage2[crit.ID]; ok {
			if _, has := res.VendorUpdates[vendor.ID]; has {
				updates := make(map[string]model.CellUpdate, len(res.VendorUpdates))
				for id, u := range res.VendorUpdates {
					if id != vendor.ID {
						updates[id] = u
					}
				}
				res.VendorUpdates = updates
				o.stage2[crit.ID] = res
				s2 = &res
			}
		}

		return func(ctx context.Context) error {
			if err := o.store.SaveStage1Cell(ctx, o.project.ID, crit.ID, vendor.ID, cell); err != nil {
				return err
			}
			if s2 != nil {
				return o.store.SaveStage2Result(ctx, o.project.ID, *s2)
			}
			return nil
		}
	})
	return allDone
}

// cellFromResponse maps a research outcome onto a settled cell. A thrown
// error and an explicit success=false are treated alike.
func cellFromResponse(resp *workflow.CellResponse, err error) model.Cell {
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = "research call failed"
		}
		return model.Cell{
			State:     model.CellStateFailed,
			Error:     msg,
			ErrorCode: errorCode(err),
		}
	}
	if resp == nil || !resp.Success || resp.Result == nil {
		cell := model.Cell{
			State:     model.CellStateFailed,
			Error:     invalidResearchResponse,
			ErrorCode: model.DefaultErrorCode,
		}
		if resp != nil && resp.Error != nil {
			if resp.Error.Message != "" {
				cell.Error = resp.Error.Message
			}
			if resp.Error.Code != "" {
				cell.ErrorCode = resp.Error.Code
			}
		}
		return cell
	}
	return model.Cell{
		State:               model.CellStateCompleted,
		Value:               model.ValueFromEvidence(resp.Result.EvidenceStrength),
		EvidenceURL:         resp.Result.EvidenceURL,
		EvidenceDescription: resp.Result.EvidenceDescription,
		Comment:             resp.Result.ResearchNotes,
	}
}

// errorCode prefers the code carried by a workflow error and otherwise
// classifies the failure itself, so a bare deadline still reads as TIMEOUT.
func errorCode(err error) string {
	var wfErr *workflow.Error
	if errors.As(err, &wfErr) && wfErr.Code != "" {
		return wfErr.Code
	}
	if code := resilience.ErrorCode(err); code != "" {
		return code
	}
	return model.DefaultErrorCode
}

func transient(err error) bool {
	var wfErr *workflow.Error
	if errors.As(err, &wfErr) {
		return wfErr.Transient()
	}
	return resilience.IsTransient(err)
}
