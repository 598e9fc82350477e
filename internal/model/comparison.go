package model

import (
	"strings"
	"time"
)

// CellState represents the lifecycle of a single Stage-1 research cell.
type CellState string

const (
	CellStatePending   CellState = "pending"
	CellStateLoading   CellState = "loading"
	CellStateCompleted CellState = "completed"
	CellStateFailed    CellState = "failed"
)

// CellValue is the semantic verdict for a (criterion, vendor) pair.
type CellValue string

const (
	CellValueYes     CellValue = "yes"
	CellValueNo      CellValue = "no"
	CellValueUnknown CellValue = "unknown"
	CellValueStar    CellValue = "star" // assigned by Stage 2 only
)

// Stage2Status represents the lifecycle of a criterion's ranking call.
type Stage2Status string

const (
	Stage2Pending   Stage2Status = "pending"
	Stage2Loading   Stage2Status = "loading"
	Stage2Completed Stage2Status = "completed"
	Stage2Failed    Stage2Status = "failed"
)

// Evidence strength vocabulary used by the remote research workflows.
const (
	EvidenceConfirmed = "confirmed"
	EvidenceNotFound  = "not_found"
	EvidenceUnclear   = "unclear"
)

// DefaultErrorCode is stored on a failed cell when the client supplied none.
const DefaultErrorCode = "UNKNOWN"

// ValueFromEvidence maps an evidence strength onto a cell verdict.
func ValueFromEvidence(strength string) CellValue {
	switch strings.ToLower(strings.TrimSpace(strength)) {
	case EvidenceConfirmed:
		return CellValueYes
	case EvidenceNotFound:
		return CellValueNo
	default:
		return CellValueUnknown
	}
}

// EvidenceStrength maps a verdict back into the evidence vocabulary sent to
// the ranking workflow.
func (v CellValue) EvidenceStrength() string {
	switch v {
	case CellValueYes:
		return EvidenceConfirmed
	case CellValueNo:
		return EvidenceNotFound
	default:
		return EvidenceUnclear
	}
}

// ParseCellValue normalizes a ranking state into a CellValue. Unrecognized
// values become CellValueUnknown.
func ParseCellValue(s string) CellValue {
	switch v := CellValue(strings.ToLower(strings.TrimSpace(s))); v {
	case CellValueYes, CellValueNo, CellValueStar:
		return v
	default:
		return CellValueUnknown
	}
}

// Cell is the Stage-1 result (or pending/failed state) for one vendor
// against one criterion.
type Cell struct {
	State               CellState `json:"state"`
	Value               CellValue `json:"value,omitempty"`
	EvidenceURL         string    `json:"evidenceUrl,omitempty"`
	EvidenceDescription string    `json:"evidenceDescription,omitempty"`
	Comment             string    `json:"comment,omitempty"`
	Error               string    `json:"error,omitempty"`
	ErrorCode           string    `json:"errorCode,omitempty"`
	RetryCount          int       `json:"retryCount"`
}

// Consistent reports whether the populated fields agree with State: no result
// fields while pending or loading, evidence only when completed, error only
// when failed.
func (c Cell) Consistent() bool {
	hasEvidence := c.Value != "" || c.EvidenceURL != "" || c.EvidenceDescription != "" || c.Comment != ""
	hasError := c.Error != "" || c.ErrorCode != ""
	switch c.State {
	case CellStatePending, CellStateLoading:
		return !hasEvidence && !hasError
	case CellStateCompleted:
		return c.Value != "" && !hasError
	case CellStateFailed:
		return c.Error != "" && !hasEvidence
	default:
		return false
	}
}

// Reset clears result and error fields and moves the cell to state,
// keeping the retry counter.
func (c Cell) Reset(state CellState) Cell {
	return Cell{State: state, RetryCount: c.RetryCount}
}

// CellUpdate is the Stage-2 override for one vendor's cell.
type CellUpdate struct {
	Value               CellValue `json:"value"`
	EvidenceURL         string    `json:"evidenceUrl,omitempty"`
	EvidenceDescription string    `json:"evidenceDescription,omitempty"`
	Comment             string    `json:"comment,omitempty"`
}

// Apply overlays the Stage-2 update on c. Stage 2 is authoritative, so the
// cell ends completed even if Stage 1 had failed for it.
func (u CellUpdate) Apply(c Cell) Cell {
	return Cell{
		State:               CellStateCompleted,
		Value:               u.Value,
		EvidenceURL:         u.EvidenceURL,
		EvidenceDescription: u.EvidenceDescription,
		Comment:             u.Comment,
		RetryCount:          c.RetryCount,
	}
}

// CriterionRow aggregates all cells for one criterion plus its Stage-2 outcome.
type CriterionRow struct {
	CriterionID      string          `json:"criterionId"`
	Stage1Complete   bool            `json:"stage1Complete"`
	Stage2Status     Stage2Status    `json:"stage2Status"`
	Stage2Error      string          `json:"stage2Error,omitempty"`
	Cells            map[string]Cell `json:"cells"`
	CriterionInsight string          `json:"criterionInsight,omitempty"`
	StarsAwarded     *int            `json:"starsAwarded,omitempty"`
}

// AllCompleted reports whether every listed vendor has a completed cell.
func (r *CriterionRow) AllCompleted(vendors []Vendor) bool {
	if len(vendors) == 0 {
		return false
	}
	for _, v := range vendors {
		if r.Cells[v.ID].State != CellStateCompleted {
			return false
		}
	}
	return true
}

func (r *CriterionRow) clone() *CriterionRow {
	out := *r
	out.Cells = make(map[string]Cell, len(r.Cells))
	for k, c := range r.Cells {
		out.Cells[k] = c
	}
	if r.StarsAwarded != nil {
		stars := *r.StarsAwarded
		out.StarsAwarded = &stars
	}
	return &out
}

// ComparisonRun is the full live state of one project's two-stage comparison.
type ComparisonRun struct {
	ProjectID             string                   `json:"projectId"`
	Criteria              map[string]*CriterionRow `json:"criteria"`
	ActiveWorkflows       int                      `json:"activeWorkflows"`
	IsPaused              bool                     `json:"isPaused"`
	CurrentCriterionIndex int                      `json:"currentCriterionIndex"`
	LastUpdated           time.Time                `json:"lastUpdated"`
}

// NewComparisonRun builds a run with every cell pending.
func NewComparisonRun(p Project, now time.Time) *ComparisonRun {
	run := &ComparisonRun{
		ProjectID:   p.ID,
		Criteria:    make(map[string]*CriterionRow, len(p.Criteria)),
		LastUpdated: now,
	}
	for _, c := range p.Criteria {
		row := &CriterionRow{
			CriterionID:  c.ID,
			Stage2Status: Stage2Pending,
			Cells:        make(map[string]Cell, len(p.Vendors)),
		}
		for _, v := range p.Vendors {
			row.Cells[v.ID] = Cell{State: CellStatePending}
		}
		run.Criteria[c.ID] = row
	}
	return run
}

// Clone returns a deep copy safe to hand to readers.
func (r *ComparisonRun) Clone() *ComparisonRun {
	out := *r
	out.Criteria = make(map[string]*CriterionRow, len(r.Criteria))
	for id, row := range r.Criteria {
		out.Criteria[id] = row.clone()
	}
	return &out
}

// ControlState extracts the persisted control record from the run.
func (r *ComparisonRun) ControlState() RunState {
	rows := make(map[string]RowState, len(r.Criteria))
	for id, row := range r.Criteria {
		rows[id] = RowState{
			Stage1Complete: row.Stage1Complete,
			Stage2Status:   row.Stage2Status,
			Stage2Error:    row.Stage2Error,
		}
	}
	return RunState{
		ProjectID:             r.ProjectID,
		IsPaused:              r.IsPaused,
		CurrentCriterionIndex: r.CurrentCriterionIndex,
		Rows:                  rows,
		LastUpdated:           r.LastUpdated,
	}
}

// RunState is the persisted control state of a run (no cell detail).
type RunState struct {
	ProjectID             string              `json:"projectId"`
	IsPaused              bool                `json:"isPaused"`
	CurrentCriterionIndex int                 `json:"currentCriterionIndex"`
	Rows                  map[string]RowState `json:"rows"`
	LastUpdated           time.Time           `json:"lastUpdated"`
}

// RowState holds the per-row flags of RunState.
type RowState struct {
	Stage1Complete bool         `json:"stage1Complete"`
	Stage2Status   Stage2Status `json:"stage2Status"`
	Stage2Error    string       `json:"stage2Error,omitempty"`
}

// Stage1Record is the persisted Stage-1 result set for a project.
type Stage1Record struct {
	ProjectID string                     `json:"projectId"`
	Results   map[string]map[string]Cell `json:"results"` // criterion → vendor → cell
	Timestamp time.Time                  `json:"timestamp"`
}

// Stage2Result is the persisted ranking outcome for one criterion.
type Stage2Result struct {
	CriterionID      string                `json:"criterionId"`
	CriterionInsight string                `json:"criterionInsight"`
	StarsAwarded     int                   `json:"starsAwarded"`
	VendorUpdates    map[string]CellUpdate `json:"vendorUpdates"`
}

// Stage2Record is the persisted Stage-2 result set for a project.
type Stage2Record struct {
	ProjectID string                  `json:"projectId"`
	Results   map[string]Stage2Result `json:"results"` // criterion → result
	Timestamp time.Time               `json:"timestamp"`
}
