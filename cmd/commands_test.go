package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/clarioo/compare-cli/internal/compare"
	"github.com/clarioo/compare-cli/internal/export"
	"github.com/clarioo/compare-cli/internal/model"
	"github.com/clarioo/compare-cli/internal/store"
	"github.com/clarioo/compare-cli/pkg/workflow"
)

type stubBackend struct {
	block chan struct{}
}

func (s stubBackend) ResearchCell(ctx context.Context, req workflow.CellRequest) (*workflow.CellResponse, error) {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if req.Vendor.ID == "globex" && req.Criterion.ID == "api" {
		return &workflow.CellResponse{Success: false, Error: &workflow.Error{Code: "TIMEOUT", Message: "timed out"}}, nil
	}
	return &workflow.CellResponse{Success: true, Result: &workflow.CellResult{EvidenceStrength: "confirmed"}}, nil
}

func (s stubBackend) RankCriterion(_ context.Context, req workflow.RankRequest) (*workflow.RankResponse, error) {
	return &workflow.RankResponse{Success: true, Result: &workflow.RankResult{
		CriterionInsight: "Acme leads",
		StarsAwarded:     1,
		VendorRankings:   []workflow.VendorRanking{{VendorID: "acme", State: "star"}},
	}}, nil
}

func testProject() model.Project {
	return model.Project{
		ID:   "crm",
		Name: "CRM selection",
		Criteria: []model.Criterion{
			{ID: "sso", Name: "SSO", Importance: model.ImportanceHigh},
			{ID: "api", Name: "Open API", Importance: model.ImportanceLow},
		},
		Vendors: []model.Vendor{{ID: "acme", Name: "Acme"}, {ID: "globex", Name: "Globex"}},
	}
}

func finishedOrchestrator(t *testing.T) *compare.Orchestrator {
	t.Helper()
	o := compare.New(testProject(), store.NewMemory(), stubBackend{}, stubBackend{}, compare.Config{MaxConcurrent: 2})
	t.Cleanup(func() { _ = o.Close(context.Background()) })
	require.NoError(t, drive(context.Background(), o))
	return o
}

func TestDrive_RunsToCompletion(t *testing.T) {
	o := finishedOrchestrator(t)
	run := o.Snapshot()

	assert.Equal(t, model.Stage2Completed, run.Criteria["sso"].Stage2Status)
	assert.Equal(t, model.CellValueStar, run.Criteria["sso"].Cells["acme"].Value)
	assert.Equal(t, model.CellStateFailed, run.Criteria["api"].Cells["globex"].State)
	assert.Equal(t, model.Stage2Pending, run.Criteria["api"].Stage2Status)
	assert.False(t, o.IsRunning())
}

func TestDrive_CancelPauses(t *testing.T) {
	block := make(chan struct{})
	o := compare.New(testProject(), store.NewMemory(), stubBackend{block: block}, stubBackend{}, compare.Config{MaxConcurrent: 1})
	defer o.Close(context.Background()) //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- drive(ctx, o) }()

	require.Eventually(t, func() bool { return o.Snapshot().ActiveWorkflows == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.Eventually(t, func() bool { return o.Snapshot().IsPaused }, time.Second, 5*time.Millisecond)
	close(block)

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("drive did not return after pause")
	}

	run := o.Snapshot()
	assert.True(t, run.IsPaused)
	assert.Equal(t, model.CellStateCompleted, run.Criteria["sso"].Cells["acme"].State)
	assert.Equal(t, model.CellStatePending, run.Criteria["sso"].Cells["globex"].State)
}

func TestPrintStatus(t *testing.T) {
	o := finishedOrchestrator(t)

	var buf bytes.Buffer
	printStatus(&buf, o.Project(), o.Snapshot())
	out := buf.String()

	assert.Contains(t, out, "CRITERION")
	assert.Contains(t, out, "SSO")
	assert.Contains(t, out, "2/2")
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, "CRM selection: 3/4 cells, 1 failed, 1/2 criteria ranked (idle)")
}

func TestExportTarget(t *testing.T) {
	tests := []struct {
		format, out, want string
		wantErr           bool
	}{
		{"", "", "crm-comparison.xlsx", false},
		{"json", "", "crm-comparison.json", false},
		{"", "report.json", "report.json", false},
		{"xlsx", "report.json", "report.xlsx", false},
		{"json", "report.xlsx", "report.json", false},
		{"csv", "", "", true},
	}
	for _, tt := range tests {
		got, err := exportTarget("crm", tt.format, tt.out)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "format=%q out=%q", tt.format, tt.out)
	}
}

func TestExportPath(t *testing.T) {
	assert.Equal(t, "out.xlsx", exportPath("out.xlsx", "crm", false))
	assert.Equal(t, "out-crm.xlsx", exportPath("out.xlsx", "crm", true))
	assert.Equal(t, "dir/out-erp.json", exportPath("dir/out.json", "erp", true))
}

func TestWriteExport(t *testing.T) {
	o := finishedOrchestrator(t)
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "crm.json")
	require.NoError(t, writeExport(o, jsonPath))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var doc export.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "crm", doc.Project.ID)
	assert.Equal(t, 1, doc.Vendors[0].Stars)

	xlsxPath := filepath.Join(dir, "crm.xlsx")
	require.NoError(t, writeExport(o, xlsxPath))
	f, err := xlsx.OpenFile(xlsxPath)
	require.NoError(t, err)
	assert.Contains(t, f.Sheet, export.SheetComparison)
	assert.Contains(t, f.Sheet, export.SheetEvidence)

	assert.Error(t, writeExport(o, filepath.Join(dir, "missing", "crm.xlsx")))
}
