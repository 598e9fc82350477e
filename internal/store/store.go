package store

import (
	"context"

	"github.com/clarioo/compare-cli/internal/model"
)

// Record kinds persisted per project.
const (
	KindProject = "project"
	KindRun     = "run"
	KindStage1  = "stage1"
	KindStage2  = "stage2"
)

// comparisonKinds are the kinds erased by ClearComparison. The project
// definition survives a reset.
var comparisonKinds = []string{KindRun, KindStage1, KindStage2}

// Store defines the persistence interface for comparison runs.
//
// Load operations return (nil, nil) when no record exists or the stored record
// is malformed; callers treat both as "no prior state".
type Store interface {
	// Projects
	SaveProject(ctx context.Context, p model.Project) error
	LoadProject(ctx context.Context, projectID string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]string, error)

	// Control state
	SaveRunState(ctx context.Context, state model.RunState) error
	LoadRunState(ctx context.Context, projectID string) (*model.RunState, error)

	// Stage 1: merges one cell into the project's record.
	SaveStage1Cell(ctx context.Context, projectID, criterionID, vendorID string, cell model.Cell) error
	LoadStage1(ctx context.Context, projectID string) (*model.Stage1Record, error)

	// Stage 2: replaces one criterion's entry in the project's record.
	SaveStage2Result(ctx context.Context, projectID string, result model.Stage2Result) error
	LoadStage2(ctx context.Context, projectID string) (*model.Stage2Record, error)

	// ClearComparison erases run, Stage-1 and Stage-2 records for a project.
	ClearComparison(ctx context.Context, projectID string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// KV is a durable key-value backend keyed by (project, kind).
type KV interface {
	// Get returns nil, nil when the key is absent.
	Get(ctx context.Context, projectID, kind string) ([]byte, error)
	Put(ctx context.Context, projectID, kind string, data []byte) error
	Delete(ctx context.Context, projectID string, kinds ...string) error
	// Projects returns the ids that have a record of the given kind.
	Projects(ctx context.Context, kind string) ([]string, error)
	Migrate(ctx context.Context) error
	Close() error
}
