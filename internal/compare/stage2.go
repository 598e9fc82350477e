package compare

import (
	"context"

	"go.uber.org/zap"

	"github.com/clarioo/compare-cli/internal/model"
	"github.com/clarioo/compare-cli/pkg/workflow"
)

const invalidRankingResponse = "Invalid response from ranking service"

// launchStage2 claims the row for ranking and runs the call in the
// background. Stage-2 calls count toward ActiveWorkflows but do not take a
// Stage-1 slot. Unless force is set, a row already loading is left alone.
func (o *Orchestrator) launchStage2(epoch uint64, crit model.Criterion, force bool) {
	var req workflow.RankRequest
	claimed := false
	o.apply(epoch, func(run *model.ComparisonRun) writeFunc {
		row := run.Criteria[crit.ID]
		if row.Stage2Status == model.Stage2Loading && !force {
			return nil
		}
		row.Stage2Status = model.Stage2Loading
		row.Stage2Error = ""
		run.ActiveWorkflows++
		req = o.rankRequest(crit, row)
		claimed = true
		o.pending++ // apply holds mu
		return o.saveRunState(run.ControlState())
	})
	if !claimed {
		return
	}

	o.log.Info("compare: ranking criterion", zap.String("criterion_id", crit.ID))
	go func() {
		defer o.release()
		resp, err := o.ranker.RankCriterion(o.baseCtx, req)
		o.settleRow(epoch, crit, resp, err)
	}()
}

// rankRequest collects every vendor's current cell as prior evidence.
func (o *Orchestrator) rankRequest(crit model.Criterion, row *model.CriterionRow) workflow.RankRequest {
	evidence := make([]workflow.VendorEvidence, 0, len(o.project.Vendors))
	for _, v := range o.project.Vendors {
		cell := row.Cells[v.ID]
		evidence = append(evidence, workflow.VendorEvidence{
			VendorID:            v.ID,
			VendorName:          v.Name,
			VendorWebsite:       v.Website,
			CriterionID:         crit.ID,
			EvidenceStrength:    cell.Value.EvidenceStrength(),
			EvidenceURL:         cell.EvidenceURL,
			EvidenceDescription: cell.EvidenceDescription,
			VendorSiteEvidence:  cell.EvidenceDescription,
			ResearchNotes:       cell.Comment,
		})
	}
	return workflow.RankRequest{
		ProjectID:          o.project.ID,
		ProjectName:        o.project.Name,
		ProjectDescription: o.description(),
		CriterionType:      crit.Type,
		Criterion:          criterionRef(crit),
		Stage1Results:      evidence,
	}
}

// settleRow records a Stage-2 outcome. On success the rankings overwrite the
// vendors' cells and the result is written through for this criterion only.
func (o *Orchestrator) settleRow(epoch uint64, crit model.Criterion, resp *workflow.RankResponse, err error) {
	log := o.log.With(zap.String("criterion_id", crit.ID))

	failure := ""
	switch {
	case err != nil:
		failure = err.Error()
	case resp == nil || !resp.Success || resp.Result == nil:
		failure = invalidRankingResponse
		if resp != nil && resp.Error != nil && resp.Error.Message != "" {
			failure = resp.Error.Message
		}
	}

	o.apply(epoch, func(run *model.ComparisonRun) writeFunc {
		row := run.Criteria[crit.ID]
		run.ActiveWorkflows--

		if failure != "" {
			row.Stage2Status = model.Stage2Failed
			row.Stage2Error = failure
			log.Warn("compare: ranking failed", zap.String("error", failure))
			return o.saveRunState(run.ControlState())
		}

		result := model.Stage2Result{
			CriterionID:      crit.ID,
			CriterionInsight: resp.Result.CriterionInsight,
			StarsAwarded:     resp.Result.StarsAwarded,
			VendorUpdates:    make(map[string]model.CellUpdate, len(resp.Result.VendorRankings)),
		}
		for _, r := range resp.Result.VendorRankings {
			if _, ok := row.Cells[r.VendorID]; !ok {
				log.Debug("compare: ignoring ranking for unknown vendor", zap.String("vendor_id", r.VendorID))
				continue
			}
			u := model.CellUpdate{
				Value:               model.ParseCellValue(r.State),
				EvidenceURL:         r.EvidenceURL,
				EvidenceDescription: r.EvidenceDescription,
				Comment:             r.Comment,
			}
			row.Cells[r.VendorID] = u.Apply(row.Cells[r.VendorID])
			result.VendorUpdates[r.VendorID] = u
		}

		stars := result.StarsAwarded
		row.CriterionInsight = result.CriterionInsight
		row.StarsAwarded = &stars
		row.Stage2Status = model.Stage2Completed
		row.Stage2Error = ""
		row.Stage1Complete = row.AllCompleted(o.project.Vendors)
		o.stage2[crit.ID] = result

		log.Info("compare: criterion ranked",
			zap.Int("stars_awarded", stars),
			zap.Int("vendor_updates", len(result.VendorUpdates)),
		)

		state := run.ControlState()
		return func(ctx context.Context) error {
			if err := o.store.SaveStage2Result(ctx, o.project.ID, result); err != nil {
				return err
			}
			return o.store.SaveRunState(ctx, state)
		}
	})
}
