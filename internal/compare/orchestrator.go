// Package compare drives a project's two-stage vendor comparison: per-cell
// research (Stage 1) under a concurrency cap, followed by per-criterion
// ranking (Stage 2), with pause/resume, retry, reset and write-through
// persistence.
package compare

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/clarioo/compare-cli/internal/model"
	"github.com/clarioo/compare-cli/internal/store"
	"github.com/clarioo/compare-cli/pkg/workflow"
)

const (
	defaultMaxConcurrent = 5
	defaultFallback      = "A software evaluation project comparing vendors against business requirements"
	minDescriptionLen    = 10
	persistTimeout       = 30 * time.Second
)

// Researcher performs Stage-1 research for one (criterion, vendor) cell.
type Researcher interface {
	ResearchCell(ctx context.Context, req workflow.CellRequest) (*workflow.CellResponse, error)
}

// Ranker performs Stage-2 ranking for one criterion across all vendors.
type Ranker interface {
	RankCriterion(ctx context.Context, req workflow.RankRequest) (*workflow.RankResponse, error)
}

// Config tunes an Orchestrator.
type Config struct {
	MaxConcurrent       int64
	FallbackDescription string
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	if c.FallbackDescription == "" {
		c.FallbackDescription = defaultFallback
	}
	return c
}

// Orchestrator owns one project's ComparisonRun. All mutations go through its
// methods; readers get deep copies via Snapshot.
type Orchestrator struct {
	project    model.Project
	store      store.Store
	researcher Researcher
	ranker     Ranker
	cfg        Config
	log        *zap.Logger
	now        func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc

	// persistMu orders state mutations with their writes so the store never
	// sees an older snapshot after a newer one. Always taken before mu.
	persistMu sync.Mutex

	mu       sync.Mutex
	run      *model.ComparisonRun
	stage2   map[string]model.Stage2Result
	epoch    uint64
	sem      *semaphore.Weighted
	running  bool
	pending  int
	stopLoop context.CancelFunc
	loopDone chan struct{}
	idle     chan struct{}
}

// New creates an Orchestrator with a fresh run (every cell pending).
func New(p model.Project, st store.Store, researcher Researcher, ranker Ranker, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		project:    p,
		store:      st,
		researcher: researcher,
		ranker:     ranker,
		cfg:        cfg,
		log:        zap.L().With(zap.String("project_id", p.ID)),
		now:        func() time.Time { return time.Now().UTC() },
		baseCtx:    ctx,
		cancel:     cancel,
		stage2:     make(map[string]model.Stage2Result),
		sem:        semaphore.NewWeighted(cfg.MaxConcurrent),
	}
	o.run = model.NewComparisonRun(p, o.now())
	return o
}

// Open creates an Orchestrator and rehydrates it from the store.
func Open(ctx context.Context, p model.Project, st store.Store, researcher Researcher, ranker Ranker, cfg Config) (*Orchestrator, error) {
	o := New(p, st, researcher, ranker, cfg)

	runState, err := st.LoadRunState(ctx, p.ID)
	if err != nil {
		return nil, eris.Wrap(err, "compare: load run state")
	}
	s1, err := st.LoadStage1(ctx, p.ID)
	if err != nil {
		return nil, eris.Wrap(err, "compare: load stage1 results")
	}
	s2, err := st.LoadStage2(ctx, p.ID)
	if err != nil {
		return nil, eris.Wrap(err, "compare: load stage2 results")
	}

	o.run, o.stage2 = Hydrate(p, runState, s1, s2, o.now())
	if runState != nil || s1 != nil || s2 != nil {
		o.log.Info("compare: rehydrated run",
			zap.Int("current_criterion_index", o.run.CurrentCriterionIndex),
			zap.Bool("paused", o.run.IsPaused),
		)
	}
	return o, nil
}

// Project returns the project definition the run was built for.
func (o *Orchestrator) Project() model.Project {
	return o.project
}

// Snapshot returns a deep copy of the current run.
func (o *Orchestrator) Snapshot() *model.ComparisonRun {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run.Clone()
}

// IsRunning reports whether the main loop is active and not paused.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running && !o.run.IsPaused
}

// Start begins or resumes orchestration from the current criterion index.
// It returns false when there is nothing to run or a loop is already active.
func (o *Orchestrator) Start() bool {
	if len(o.project.Criteria) == 0 || len(o.project.Vendors) == 0 {
		o.log.Warn("compare: start ignored, project has no criteria or vendors")
		return false
	}

	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	o.mu.Lock()
	if o.running && !o.run.IsPaused {
		o.mu.Unlock()
		return false
	}
	if o.run.CurrentCriterionIndex >= len(o.project.Criteria) {
		o.run.CurrentCriterionIndex = 0
	}
	o.run.IsPaused = false
	o.run.LastUpdated = o.now()
	o.running = true

	loopCtx, stop := context.WithCancel(o.baseCtx)
	prev := o.loopDone
	done := make(chan struct{})
	o.stopLoop = stop
	o.loopDone = done
	epoch, sem := o.epoch, o.sem
	start := o.run.CurrentCriterionIndex
	state := o.run.ControlState()
	o.mu.Unlock()

	o.write(func(ctx context.Context) error { return o.store.SaveRunState(ctx, state) })

	o.log.Info("compare: starting", zap.Int("from_index", start))
	go o.loop(loopCtx, epoch, sem, prev, done)
	return true
}

// Resume is Start after a pause.
func (o *Orchestrator) Resume() bool {
	return o.Start()
}

// Pause stops new Stage-1 launches and criterion advancement. In-flight calls
// still settle and update state.
func (o *Orchestrator) Pause() {
	o.apply(o.currentEpoch(), func(run *model.ComparisonRun) writeFunc {
		run.IsPaused = true
		if o.stopLoop != nil {
			o.stopLoop()
		}
		return o.saveRunState(run.ControlState())
	})
	o.log.Info("compare: paused")
}

// Reset erases persisted state and reinitializes the run. Calls still in
// flight from before the reset settle into nothing.
func (o *Orchestrator) Reset(ctx context.Context) error {
	o.mu.Lock()
	o.epoch++
	if o.stopLoop != nil {
		o.stopLoop()
	}
	o.stopLoop = nil
	o.loopDone = nil
	o.running = false
	o.run = model.NewComparisonRun(o.project, o.now())
	o.stage2 = make(map[string]model.Stage2Result)
	o.sem = semaphore.NewWeighted(o.cfg.MaxConcurrent)
	o.signalIdleLocked()
	o.mu.Unlock()

	o.persistMu.Lock()
	defer o.persistMu.Unlock()
	if err := o.store.ClearComparison(ctx, o.project.ID); err != nil {
		return eris.Wrap(err, "compare: reset")
	}
	o.log.Info("compare: reset")
	return nil
}

// RetryCellStage1 re-runs Stage-1 research for one cell regardless of its
// state. It returns false for unknown ids.
func (o *Orchestrator) RetryCellStage1(criterionID, vendorID string) bool {
	crit, _, ok := o.project.Criterion(criterionID)
	if !ok {
		o.log.Warn("compare: retry for unknown criterion", zap.String("criterion_id", criterionID))
		return false
	}
	vendor, ok := o.project.Vendor(vendorID)
	if !ok {
		o.log.Warn("compare: retry for unknown vendor",
			zap.String("criterion_id", criterionID),
			zap.String("vendor_id", vendorID),
		)
		return false
	}

	o.mu.Lock()
	epoch, sem := o.epoch, o.sem
	row := o.run.Criteria[crit.ID]
	cell := row.Cells[vendor.ID]
	cell.RetryCount++
	row.Cells[vendor.ID] = cell.Reset(model.CellStateLoading)
	row.Stage1Complete = false
	o.run.LastUpdated = o.now()
	o.pending++
	o.mu.Unlock()

	o.log.Info("compare: retrying cell",
		zap.String("criterion_id", crit.ID),
		zap.String("vendor_id", vendor.ID),
		zap.Int("retry_count", cell.RetryCount),
	)

	go func() {
		defer o.release()
		if err := sem.Acquire(o.baseCtx, 1); err != nil {
			o.settleCell(epoch, crit, vendor, nil, err, false)
			return
		}
		defer sem.Release(1)

		if !o.apply(epoch, func(run *model.ComparisonRun) writeFunc {
			run.ActiveWorkflows++
			return nil
		}) {
			return
		}
		resp, err := o.researchCell(crit, vendor)
		if o.settleCell(epoch, crit, vendor, resp, err, true) {
			o.launchStage2(epoch, crit, false)
		}
	}()
	return true
}

// RetryRowStage2 re-runs Stage-2 ranking for one criterion unconditionally.
// It returns false for an unknown id.
func (o *Orchestrator) RetryRowStage2(criterionID string) bool {
	crit, _, ok := o.project.Criterion(criterionID)
	if !ok {
		o.log.Warn("compare: stage2 retry for unknown criterion", zap.String("criterion_id", criterionID))
		return false
	}
	o.log.Info("compare: retrying ranking", zap.String("criterion_id", crit.ID))
	o.launchStage2(o.currentEpoch(), crit, true)
	return true
}

// Wait blocks until the main loop has exited and every launched call has
// settled, or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	if !o.busyLocked() {
		o.mu.Unlock()
		return nil
	}
	if o.idle == nil {
		o.idle = make(chan struct{})
	}
	ch := o.idle
	o.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "compare: wait")
	}
}

// Close pauses an active run, waits for in-flight calls within ctx, then
// cancels anything still outstanding.
func (o *Orchestrator) Close(ctx context.Context) error {
	if o.IsRunning() {
		o.Pause()
	}
	err := o.Wait(ctx)
	o.cancel()
	return err
}

func (o *Orchestrator) loop(ctx context.Context, epoch uint64, sem *semaphore.Weighted, prev, done chan struct{}) {
	defer o.finishLoop(done)

	// A paused loop may still be draining its in-flight calls. done stays
	// open until prev closes, even when this loop is cancelled first, so a
	// later Start chained on done never overlaps the older loop.
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			<-prev
			return
		}
	}

	o.mu.Lock()
	start := o.run.CurrentCriterionIndex
	o.mu.Unlock()

	for i := start; i < len(o.project.Criteria); i++ {
		crit := o.project.Criteria[i]
		if ctx.Err() != nil {
			o.stopAt(epoch, i)
			return
		}
		if !o.apply(epoch, func(run *model.ComparisonRun) writeFunc {
			run.CurrentCriterionIndex = i
			return nil
		}) {
			return
		}
		if o.rowDone(crit.ID) {
			continue
		}

		log := o.log.With(zap.String("criterion_id", crit.ID), zap.Int("index", i))
		log.Debug("compare: researching criterion")

		var wg sync.WaitGroup
		halted := false
		for _, vendor := range o.project.Vendors {
			if !o.needsResearch(crit.ID, vendor.ID) {
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				halted = true
				break
			}
			if ctx.Err() != nil {
				sem.Release(1)
				halted = true
				break
			}
			if !o.claimCell(epoch, crit.ID, vendor.ID) {
				sem.Release(1)
				continue
			}

			wg.Add(1)
			go func(vendor model.Vendor) {
				defer wg.Done()
				defer o.release()
				defer sem.Release(1)
				resp, err := o.researchCell(crit, vendor)
				o.settleCell(epoch, crit, vendor, resp, err, true)
			}(vendor)
		}
		wg.Wait()

		if halted || ctx.Err() != nil {
			o.stopAt(epoch, i)
			return
		}
		if o.stage2Eligible(crit.ID) {
			o.launchStage2(epoch, crit, false)
		} else {
			log.Info("compare: criterion has incomplete cells, ranking deferred")
		}
	}

	o.apply(epoch, func(run *model.ComparisonRun) writeFunc {
		run.CurrentCriterionIndex = len(o.project.Criteria)
		return o.saveRunState(run.ControlState())
	})
	o.log.Info("compare: all criteria processed")
}

func (o *Orchestrator) finishLoop(done chan struct{}) {
	o.mu.Lock()
	if o.loopDone == done {
		o.running = false
		o.loopDone = nil
		o.stopLoop = nil
	}
	close(done)
	o.signalIdleLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) stopAt(epoch uint64, index int) {
	o.apply(epoch, func(run *model.ComparisonRun) writeFunc {
		run.CurrentCriterionIndex = index
		return o.saveRunState(run.ControlState())
	})
	o.log.Info("compare: halted", zap.Int("current_criterion_index", index))
}

func (o *Orchestrator) rowDone(criterionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	row := o.run.Criteria[criterionID]
	return row.Stage1Complete && row.Stage2Status == model.Stage2Completed
}

func (o *Orchestrator) needsResearch(criterionID, vendorID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return needsResearch(o.run.Criteria[criterionID].Cells[vendorID])
}

func needsResearch(c model.Cell) bool {
	return c.State != model.CellStateCompleted && c.State != model.CellStateLoading
}

// claimCell marks a cell loading and counts it in flight. It fails when the
// cell no longer needs research or the epoch is stale.
func (o *Orchestrator) claimCell(epoch uint64, criterionID, vendorID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.epoch != epoch {
		return false
	}
	row := o.run.Criteria[criterionID]
	cell := row.Cells[vendorID]
	if !needsResearch(cell) {
		return false
	}
	row.Cells[vendorID] = cell.Reset(model.CellStateLoading)
	row.Stage1Complete = false
	o.run.ActiveWorkflows++
	o.run.LastUpdated = o.now()
	o.pending++
	return true
}

func (o *Orchestrator) stage2Eligible(criterionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	row := o.run.Criteria[criterionID]
	return row.Stage1Complete &&
		row.Stage2Status != model.Stage2Loading &&
		row.Stage2Status != model.Stage2Completed
}

func (o *Orchestrator) currentEpoch() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.epoch
}

// release marks one launched call as settled.
func (o *Orchestrator) release() {
	o.mu.Lock()
	o.pending--
	o.signalIdleLocked()
	o.mu.Unlock()
}

func (o *Orchestrator) busyLocked() bool {
	return o.running || o.pending > 0
}

func (o *Orchestrator) signalIdleLocked() {
	if !o.busyLocked() && o.idle != nil {
		close(o.idle)
		o.idle = nil
	}
}

// writeFunc persists the outcome of a mutation.
type writeFunc func(ctx context.Context) error

// apply runs mutate under the state lock if epoch is still current, then runs
// the returned write while still holding persistMu. mutate must not take mu.
// It reports whether the mutation was applied.
func (o *Orchestrator) apply(epoch uint64, mutate func(run *model.ComparisonRun) writeFunc) bool {
	o.persistMu.Lock()
	defer o.persistMu.Unlock()

	o.mu.Lock()
	if o.epoch != epoch {
		o.mu.Unlock()
		o.log.Debug("compare: dropping result from a previous run")
		return false
	}
	w := mutate(o.run)
	if o.run.ActiveWorkflows < 0 {
		o.run.ActiveWorkflows = 0
	}
	o.run.LastUpdated = o.now()
	o.mu.Unlock()

	if w != nil {
		o.write(w)
	}
	return true
}

func (o *Orchestrator) write(w writeFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := w(ctx); err != nil {
		o.log.Error("compare: persist failed", zap.Error(err))
	}
}

func (o *Orchestrator) saveRunState(state model.RunState) writeFunc {
	return func(ctx context.Context) error {
		return o.store.SaveRunState(ctx, state)
	}
}
