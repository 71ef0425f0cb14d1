package guard_test

import (
	"context"
	"testing"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/adapters/memory"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/guard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFamily(t *testing.T, store *memory.Store, childStatuses ...domain.Status) {
	t.Helper()
	ctx := context.Background()
	parent := &domain.UOW{
		ID:         "parent",
		Status:     domain.StatusCompleted,
		Location:   "done",
		Attributes: map[string]any{},
		ChildCount: len(childStatuses),
		Version:    1,
	}
	require.NoError(t, store.Create(ctx, parent, nil))
	for i, st := range childStatuses {
		child := &domain.UOW{
			ID:         "child-" + string(rune('a'+i)),
			ParentID:   domain.StringPtr("parent"),
			Status:     st,
			Location:   "work",
			Attributes: map[string]any{},
			Version:    1,
		}
		require.NoError(t, store.Create(ctx, child, nil))
	}
}

func TestCerberus_ChildHeadBlocksUntilAllReturn(t *testing.T) {
	store := memory.NewStore()
	seedFamily(t, store, domain.StatusCompleted, domain.StatusCompleted, domain.StatusActive)
	c := guard.NewCerberus(store)
	ctx := context.Background()

	res, err := c.Check(ctx, "parent")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSynchronizationIncomplete)
	assert.False(t, res.Passed)
	assert.Equal(t, guard.HeadChild, res.FailedHead)
	assert.Equal(t, 3, res.ChildCount)
	assert.Equal(t, 2, res.FinishedChildCount)
	assert.Equal(t, []string{"child-c"}, res.Pending)
	assert.Contains(t, c.Blocked(), "parent")

	last, err := store.Get(ctx, "child-c")
	require.NoError(t, err)
	last.Status = domain.StatusCompleted
	last.Version = 2
	require.NoError(t, store.Update(ctx, last, 1, nil))

	res, err = c.Check(ctx, "parent")
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 3, res.FinishedChildCount)
	assert.NotContains(t, c.Blocked(), "parent")
}

func TestCerberus_BaseHeadMissingParent(t *testing.T) {
	c := guard.NewCerberus(memory.NewStore())
	res, err := c.Check(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSynchronizationIncomplete)
	assert.ErrorIs(t, err, domain.ErrUOWNotFound)
	assert.Equal(t, guard.HeadBase, res.FailedHead)
}

func TestCerberus_StatusHeadRequiresTerminalParent(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &domain.UOW{
		ID: "solo", Status: domain.StatusActive, Attributes: map[string]any{}, Version: 1,
	}, nil))

	res, err := guard.NewCerberus(store).Check(ctx, "solo")
	require.Error(t, err)
	assert.Equal(t, guard.HeadStatus, res.FailedHead)
}

func TestCerberus_NoChildrenPasses(t *testing.T) {
	store := memory.NewStore()
	seedFamily(t, store)
	res, err := guard.NewCerberus(store).Check(context.Background(), "parent")
	require.NoError(t, err)
	assert.True(t, res.Passed)
}

func TestCerberus_EscalatesOncePastThreshold(t *testing.T) {
	store := memory.NewStore()
	seedFamily(t, store, domain.StatusFailed)
	esc := &escalations{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var syncEvents int
	c := guard.NewCerberus(store,
		guard.WithSyncThreshold(time.Hour),
		guard.WithSyncEscalation(esc.sink()),
		guard.WithSyncClock(func() time.Time { return now }),
		guard.WithSyncHooks(domain.Hooks{OnSync: func(context.Context, *domain.SyncEvent) { syncEvents++ }}),
	)
	ctx := context.Background()

	_, _ = c.Check(ctx, "parent")
	assert.Empty(t, esc.all())

	now = now.Add(2 * time.Hour)
	res, _ := c.Check(ctx, "parent")
	require.NotNil(t, res.BlockedSince)
	assert.Equal(t, now.Add(-2*time.Hour), *res.BlockedSince)
	require.Len(t, esc.all(), 1)
	assert.Equal(t, domain.EscalationSyncBlocked, esc.all()[0].Kind)

	_, _ = c.Check(ctx, "parent")
	assert.Len(t, esc.all(), 1, "escalated once per blocked episode")
	assert.Equal(t, 3, syncEvents)
}
