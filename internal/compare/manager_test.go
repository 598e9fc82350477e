package compare

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarioo/compare-cli/internal/model"
	"github.com/clarioo/compare-cli/internal/store"
	"github.com/clarioo/compare-cli/pkg/workflow"
)

func TestManager_RegisterAndGet(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	fc := &fakeClient{}
	m := NewManager(st, fc, fc, Config{})
	t.Cleanup(func() { _ = m.Close(ctx) })

	p := testProject(2, 2)
	o, err := m.Register(ctx, p)
	require.NoError(t, err)

	got, err := m.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Same(t, o, got)

	ids, err := m.Projects(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID}, ids)

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestManager_RehydratesFromStore(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	fc := &fakeClient{}
	p := testProject(2, 2)

	first := NewManager(st, fc, fc, Config{})
	o, err := first.Register(ctx, p)
	require.NoError(t, err)
	require.True(t, o.Start())
	waitIdle(t, o)
	require.NoError(t, first.Close(ctx))

	second := NewManager(st, fc, fc, Config{})
	t.Cleanup(func() { _ = second.Close(ctx) })
	restored, err := second.Get(ctx, p.ID)
	require.NoError(t, err)

	assert.Equal(t, o.Snapshot().Criteria, restored.Snapshot().Criteria)
	assert.Equal(t, p, restored.Project())

	// Everything is already settled, so a fresh start issues no new research.
	calls := len(fc.calls())
	require.True(t, restored.Start())
	waitIdle(t, restored)
	assert.Len(t, fc.calls(), calls)
}

func TestManager_RegisterWhileRunning(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	fc := &fakeClient{}
	fc.setResearch(func(req workflow.CellRequest) (*workflow.CellResponse, error) {
		<-gate
		return confirmed(req), nil
	})
	m := NewManager(store.NewMemory(), fc, fc, Config{})
	t.Cleanup(func() { _ = m.Close(ctx) })

	p := testProject(1, 2)
	o, err := m.Register(ctx, p)
	require.NoError(t, err)
	require.True(t, o.Start())

	_, err = m.Register(ctx, p)
	assert.ErrorIs(t, err, ErrRunActive)

	close(gate)
	waitIdle(t, o)

	p.Vendors = append(p.Vendors, model.Vendor{ID: "v3", Name: "Vendor 3"})
	replaced, err := m.Register(ctx, p)
	require.NoError(t, err)
	assert.NotSame(t, o, replaced)

	row := replaced.Snapshot().Criteria["c1"]
	assert.Equal(t, model.CellStateCompleted, row.Cells["v1"].State)
	assert.Equal(t, model.CellStatePending, row.Cells["v3"].State)
	assert.False(t, row.Stage1Complete)
}
