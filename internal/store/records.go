package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clarioo/compare-cli/internal/model"
)

// RecordStore implements Store as JSON documents on top of a KV backend.
// Read-modify-write updates are serialized so concurrent cell completions
// never drop each other's results.
type RecordStore struct {
	kv  KV
	mu  sync.Mutex
	now func() time.Time
}

// NewRecordStore wraps a KV backend.
func NewRecordStore(kv KV) *RecordStore {
	return &RecordStore{kv: kv, now: func() time.Time { return time.Now().UTC() }}
}

func (s *RecordStore) Migrate(ctx context.Context) error {
	return s.kv.Migrate(ctx)
}

func (s *RecordStore) Close() error {
	return s.kv.Close()
}

func (s *RecordStore) SaveProject(ctx context.Context, p model.Project) error {
	if p.ID == "" {
		return eris.New("store: project id is required")
	}
	return s.put(ctx, p.ID, KindProject, p)
}

func (s *RecordStore) LoadProject(ctx context.Context, projectID string) (*model.Project, error) {
	var p model.Project
	ok, err := s.get(ctx, projectID, KindProject, &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

func (s *RecordStore) ListProjects(ctx context.Context) ([]string, error) {
	ids, err := s.kv.Projects(ctx, KindProject)
	return ids, eris.Wrap(err, "store: list projects")
}

func (s *RecordStore) SaveRunState(ctx context.Context, state model.RunState) error {
	return s.put(ctx, state.ProjectID, KindRun, state)
}

func (s *RecordStore) LoadRunState(ctx context.Context, projectID string) (*model.RunState, error) {
	var st model.RunState
	ok, err := s.get(ctx, projectID, KindRun, &st)
	if err != nil || !ok {
		return nil, err
	}
	return &st, nil
}

func (s *RecordStore) SaveStage1Cell(ctx context.Context, projectID, criterionID, vendorID string, cell model.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rec model.Stage1Record
	ok, err := s.get(ctx, projectID, KindStage1, &rec)
	if err != nil {
		return err
	}
	if !ok || rec.Results == nil {
		rec = model.Stage1Record{Results: make(map[string]map[string]model.Cell)}
	}
	rec.ProjectID = projectID
	if rec.Results[criterionID] == nil {
		rec.Results[criterionID] = make(map[string]model.Cell)
	}
	rec.Results[criterionID][vendorID] = cell
	rec.Timestamp = s.now()

	return s.put(ctx, projectID, KindStage1, rec)
}

func (s *RecordStore) LoadStage1(ctx context.Context, projectID string) (*model.Stage1Record, error) {
	var rec model.Stage1Record
	ok, err := s.get(ctx, projectID, KindStage1, &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (s *RecordStore) SaveStage2Result(ctx context.Context, projectID string, result model.Stage2Result) error {
	if result.CriterionID == "" {
		return eris.New("store: stage2 result requires a criterion id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var rec model.Stage2Record
	ok, err := s.get(ctx, projectID, KindStage2, &rec)
	if err != nil {
		return err
	}
	if !ok || rec.Results == nil {
		rec = model.Stage2Record{Results: make(map[string]model.Stage2Result)}
	}
	rec.ProjectID = projectID
	rec.Results[result.CriterionID] = result
	rec.Timestamp = s.now()

	return s.put(ctx, projectID, KindStage2, rec)
}

func (s *RecordStore) LoadStage2(ctx context.Context, projectID string) (*model.Stage2Record, error) {
	var rec model.Stage2Record
	ok, err := s.get(ctx, projectID, KindStage2, &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (s *RecordStore) ClearComparison(ctx context.Context, projectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return eris.Wrapf(s.kv.Delete(ctx, projectID, comparisonKinds...), "store: clear comparison %s", projectID)
}

// get decodes the record into dst. A missing or malformed record yields
// ok=false with no error.
func (s *RecordStore) get(ctx context.Context, projectID, kind string, dst any) (bool, error) {
	data, err := s.kv.Get(ctx, projectID, kind)
	if err != nil {
		return false, eris.Wrapf(err, "store: get %s/%s", projectID, kind)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		zap.L().Warn("store: discarding malformed record",
			zap.String("project_id", projectID),
			zap.String("kind", kind),
			zap.Error(err),
		)
		return false, nil
	}
	return true, nil
}

func (s *RecordStore) put(ctx context.Context, projectID, kind string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return eris.Wrapf(err, "store: marshal %s", kind)
	}
	return eris.Wrapf(s.kv.Put(ctx, projectID, kind, data), "store: put %s/%s", projectID, kind)
}
