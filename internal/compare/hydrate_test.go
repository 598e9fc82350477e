package compare

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarioo/compare-cli/internal/model"
)

func TestHydrate_NoRecords(t *testing.T) {
	p := testProject(2, 3)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	run, results := Hydrate(p, nil, nil, nil, now)

	assert.Empty(t, results)
	assert.Equal(t, p.ID, run.ProjectID)
	assert.Equal(t, now, run.LastUpdated)
	assert.Equal(t, 0, run.CurrentCriterionIndex)
	require.Len(t, run.Criteria, 2)
	for _, row := range run.Criteria {
		assert.Equal(t, model.Stage2Pending, row.Stage2Status)
		assert.False(t, row.Stage1Complete)
		assert.Len(t, row.Cells, 3)
	}
}

func TestHydrate_OverlaysRecords(t *testing.T) {
	p := testProject(2, 2)
	done := model.Cell{State: model.CellStateCompleted, Value: model.CellValueYes, EvidenceURL: "u", RetryCount: 2}

	state := &model.RunState{
		ProjectID:             p.ID,
		IsPaused:              true,
		CurrentCriterionIndex: 1,
		Rows: map[string]model.RowState{
			"c1": {Stage1Complete: true, Stage2Status: model.Stage2Completed},
			"c2": {Stage1Complete: true, Stage2Status: model.Stage2Failed, Stage2Error: "ranking down"},
		},
		LastUpdated: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	s1 := &model.Stage1Record{
		ProjectID: p.ID,
		Results: map[string]map[string]model.Cell{
			"c1": {"v1": done, "v2": {State: model.CellStateFailed, Error: "boom", ErrorCode: "UNKNOWN"}},
			"c2": {"v1": {State: model.CellStateLoading}, "ghost": done},
			"gone": {"v1": done},
		},
	}
	s2 := &model.Stage2Record{
		ProjectID: p.ID,
		Results: map[string]model.Stage2Result{
			"c1": {
				CriterionID:      "c1",
				CriterionInsight: "v2 ahead",
				StarsAwarded:     1,
				VendorUpdates: map[string]model.CellUpdate{
					"v2": {Value: model.CellValueStar, Comment: "best"},
				},
			},
		},
	}

	run, results := Hydrate(p, state, s1, s2, time.Now())

	assert.True(t, run.IsPaused)
	assert.Equal(t, 1, run.CurrentCriterionIndex)
	assert.Equal(t, state.LastUpdated, run.LastUpdated)
	assert.NotContains(t, run.Criteria, "gone")
	assert.Contains(t, results, "c1")

	c1 := run.Criteria["c1"]
	assert.Equal(t, done, c1.Cells["v1"])
	assert.Equal(t, model.Cell{State: model.CellStateCompleted, Value: model.CellValueStar, Comment: "best"}, c1.Cells["v2"])
	assert.True(t, c1.Stage1Complete)
	assert.Equal(t, model.Stage2Completed, c1.Stage2Status)
	assert.Equal(t, "v2 ahead", c1.CriterionInsight)
	require.NotNil(t, c1.StarsAwarded)
	assert.Equal(t, 1, *c1.StarsAwarded)

	c2 := run.Criteria["c2"]
	assert.Equal(t, model.CellStatePending, c2.Cells["v1"].State)
	assert.NotContains(t, c2.Cells, "ghost")
	assert.False(t, c2.Stage1Complete, "stored flag is not trusted")
	assert.Equal(t, model.Stage2Failed, c2.Stage2Status)
	assert.Equal(t, "ranking down", c2.Stage2Error)
}

func TestHydrate_InFlightRows(t *testing.T) {
	p := testProject(2, 1)
	state := &model.RunState{
		CurrentCriterionIndex: 99,
		Rows: map[string]model.RowState{
			"c1": {Stage2Status: model.Stage2Loading},
			"c2": {Stage2Status: model.Stage2Loading},
		},
	}
	s2 := &model.Stage2Record{Results: map[string]model.Stage2Result{
		"c2": {CriterionID: "c2", CriterionInsight: "earlier ranking"},
	}}

	run, _ := Hydrate(p, state, nil, s2, time.Now())

	assert.Equal(t, 2, run.CurrentCriterionIndex)
	assert.Equal(t, model.Stage2Pending, run.Criteria["c1"].Stage2Status)
	assert.Equal(t, model.Stage2Completed, run.Criteria["c2"].Stage2Status)
}

func TestHydrate_NegativeIndex(t *testing.T) {
	p := testProject(1, 1)
	run, _ := Hydrate(p, &model.RunState{CurrentCriterionIndex: -3}, nil, nil, time.Now())
	assert.Equal(t, 0, run.CurrentCriterionIndex)
}
