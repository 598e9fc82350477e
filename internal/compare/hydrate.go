package compare

import (
	"time"

	"github.com/clarioo/compare-cli/internal/model"
)

// Hydrate rebuilds the live run from the three persisted records. Any record
// may be nil. Stage-1 cells are overlaid with Stage-2 vendor overrides, and
// stage1Complete is recomputed from the cells rather than trusted. Work that
// was in flight when the records were written comes back as pending.
func Hydrate(p model.Project, state *model.RunState, s1 *model.Stage1Record, s2 *model.Stage2Record, now time.Time) (*model.ComparisonRun, map[string]model.Stage2Result) {
	run := model.NewComparisonRun(p, now)
	results := make(map[string]model.Stage2Result)

	if state != nil {
		run.IsPaused = state.IsPaused
		run.CurrentCriterionIndex = min(max(state.CurrentCriterionIndex, 0), len(p.Criteria))
		if !state.LastUpdated.IsZero() {
			run.LastUpdated = state.LastUpdated
		}
	}

	if s1 != nil {
		for critID, cells := range s1.Results {
			row, ok := run.Criteria[critID]
			if !ok {
				continue
			}
			for vendorID, cell := range cells {
				if _, ok := row.Cells[vendorID]; !ok {
					continue
				}
				if cell.State == model.CellStateLoading {
					cell = cell.Reset(model.CellStatePending)
				}
				row.Cells[vendorID] = cell
			}
		}
	}

	if s2 != nil {
		for critID, res := range s2.Results {
			row, ok := run.Criteria[critID]
			if !ok {
				continue
			}
			for vendorID, u := range res.VendorUpdates {
				if _, ok := row.Cells[vendorID]; !ok {
					continue
				}
				row.Cells[vendorID] = u.Apply(row.Cells[vendorID])
			}
			stars := res.StarsAwarded
			row.CriterionInsight = res.CriterionInsight
			row.StarsAwarded = &stars
			row.Stage2Status = model.Stage2Completed
			results[critID] = res
		}
	}

	for critID, row := range run.Criteria {
		if state != nil {
			if rs, ok := state.Rows[critID]; ok {
				_, ranked := results[critID]
				switch {
				case rs.Stage2Status == model.Stage2Loading && ranked:
					row.Stage2Status = model.Stage2Completed
				case rs.Stage2Status == model.Stage2Loading:
					row.Stage2Status = model.Stage2Pending
				case rs.Stage2Status == "":
				default:
					row.Stage2Status = rs.Stage2Status
				}
				if row.Stage2Status == model.Stage2Failed {
					row.Stage2Error = rs.Stage2Error
				}
			}
		}
		row.Stage1Complete = row.AllCompleted(p.Vendors)
	}

	return run, results
}
