package compare

import (
	"context"
	"errors"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clarioo/compare-cli/internal/model"
	"github.com/clarioo/compare-cli/internal/store"
)

// ErrProjectNotFound is returned when no project is registered under an id.
var ErrProjectNotFound = errors.New("compare: project not found")

// ErrRunActive is returned when replacing a project whose run is in progress.
var ErrRunActive = errors.New("compare: comparison is running")

// Manager keeps at most one Orchestrator per project id.
type Manager struct {
	store      store.Store
	researcher Researcher
	ranker     Ranker
	cfg        Config

	mu    sync.Mutex
	orchs map[string]*Orchestrator
}

// NewManager creates a Manager sharing one store and one set of remote
// clients across projects.
func NewManager(st store.Store, researcher Researcher, ranker Ranker, cfg Config) *Manager {
	return &Manager{
		store:      st,
		researcher: researcher,
		ranker:     ranker,
		cfg:        cfg,
		orchs:      make(map[string]*Orchestrator),
	}
}

// Register saves the project definition and returns its orchestrator,
// rehydrated from any persisted state. Replacing a project while its run is
// active fails with ErrRunActive.
func (m *Manager) Register(ctx context.Context, p model.Project) (*Orchestrator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.orchs[p.ID]; ok {
		if existing.IsRunning() {
			return nil, ErrRunActive
		}
		if err := existing.Close(ctx); err != nil {
			return nil, eris.Wrapf(err, "compare: close previous orchestrator for %s", p.ID)
		}
		delete(m.orchs, p.ID)
	}

	if err := m.store.SaveProject(ctx, p); err != nil {
		return nil, eris.Wrap(err, "compare: save project")
	}

	o, err := Open(ctx, p, m.store, m.researcher, m.ranker, m.cfg)
	if err != nil {
		return nil, err
	}
	m.orchs[p.ID] = o
	zap.L().Info("compare: project registered",
		zap.String("project_id", p.ID),
		zap.Int("criteria", len(p.Criteria)),
		zap.Int("vendors", len(p.Vendors)),
	)
	return o, nil
}

// Get returns the orchestrator for a project, loading the project definition
// and its state from the store on first access.
func (m *Manager) Get(ctx context.Context, projectID string) (*Orchestrator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if o, ok := m.orchs[projectID]; ok {
		return o, nil
	}

	p, err := m.store.LoadProject(ctx, projectID)
	if err != nil {
		return nil, eris.Wrapf(err, "compare: load project %s", projectID)
	}
	if p == nil {
		return nil, ErrProjectNotFound
	}

	o, err := Open(ctx, *p, m.store, m.researcher, m.ranker, m.cfg)
	if err != nil {
		return nil, err
	}
	m.orchs[projectID] = o
	return o, nil
}

// Projects lists the registered project ids.
func (m *Manager) Projects(ctx context.Context) ([]string, error) {
	ids, err := m.store.ListProjects(ctx)
	return ids, eris.Wrap(err, "compare: list projects")
}

// Close pauses every orchestrator and waits for in-flight calls within ctx.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for id, o := range m.orchs {
		if err := o.Close(ctx); err != nil {
			errs = append(errs, eris.Wrapf(err, "compare: close %s", id))
		}
		delete(m.orchs, id)
	}
	return errors.Join(errs...)
}
