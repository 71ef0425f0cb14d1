package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/adapters/memory"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/engine"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/persistence"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	wf := &domain.Workflow{
		Name: "review",
		Locations: []domain.Location{
			{ID: "draft", Role: "writer", Policy: &domain.RoutingPolicy{
				Name: "draft",
				Branches: []domain.Branch{
					{Condition: "score >= 8", Destination: "done"},
					{Default: true, Destination: "edit"},
				},
			}},
			{ID: "edit", Role: "editor", Requires: map[string]string{"summary": "string"}, Policy: &domain.RoutingPolicy{
				Name:     "edit",
				Branches: []domain.Branch{{Default: true, Destination: "done"}},
			}},
			{ID: "done", Role: "archivist", Terminal: true},
		},
	}
	eng, err := engine.New(persistence.NewService(memory.NewStore()), wf)
	require.NoError(t, err)
	return eng
}

func TestRunner_NoWork(t *testing.T) {
	eng := newEngine(t)
	r := worker.NewRunner(eng, worker.NewAuto("a-1", "writer", func(context.Context, *domain.UOW) (worker.Result, error) {
		t.Fatal("must not be called")
		return worker.Result{}, nil
	}))

	worked, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
}

func TestRunner_AutoWorkerSubmits(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	root, err := eng.CreateRoot(ctx, "draft", map[string]any{"title": "q3"}, "")
	require.NoError(t, err)

	auto := worker.NewAuto("a-1", "writer", func(_ context.Context, u *domain.UOW) (worker.Result, error) {
		return worker.Result{Attributes: map[string]any{"score": 9}, Rationale: "scored " + u.ID}, nil
	})
	worked, err := worker.NewRunner(eng, auto).RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, worked)

	u, err := eng.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalized, u.Status)
	assert.Equal(t, "done", u.Location)
}

func TestRunner_ProcessErrorReportsFailure(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	root, err := eng.CreateRoot(ctx, "draft", nil, "")
	require.NoError(t, err)

	auto := worker.NewAuto("a-1", "writer", func(context.Context, *domain.UOW) (worker.Result, error) {
		return worker.Result{}, errors.New("disk full")
	})
	worked, err := worker.NewRunner(eng, auto).RunOnce(ctx)
	assert.True(t, worked)
	assert.ErrorContains(t, err, "disk full")

	u, err := eng.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, u.Status)
	assert.Empty(t, u.WorkerID)
}

func TestRunner_BusinessFailure(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	root, err := eng.CreateRoot(ctx, "draft", nil, "")
	require.NoError(t, err)

	auto := worker.NewAuto("a-1", "writer", func(context.Context, *domain.UOW) (worker.Result, error) {
		return worker.Result{Failure: &worker.Failure{Code: "MISSING_SOURCE", Details: "no source document"}}, nil
	})
	_, err = worker.NewRunner(eng, auto).RunOnce(ctx)
	require.NoError(t, err)

	u, err := eng.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, u.Status)
}

func TestRunner_RefusedResultReportsFailure(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	root, err := eng.CreateRoot(ctx, "edit", nil, "")
	require.NoError(t, err)

	auto := worker.NewAuto("e-1", "editor", func(context.Context, *domain.UOW) (worker.Result, error) {
		return worker.Result{Attributes: map[string]any{"summary": 42}}, nil
	})
	worked, err := worker.NewRunner(eng, auto).RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, worked)

	u, err := eng.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, u.Status)

	history, err := eng.History(ctx, root.ID)
	require.NoError(t, err)
	assert.Contains(t, history[len(history)-1].Rationale, "invalid result")
}

func TestRunner_HeartbeatsWhileProcessing(t *testing.T) {
	eng := newEngine(t)
	ctx := context.Background()
	root, err := eng.CreateRoot(ctx, "draft", nil, "")
	require.NoError(t, err)

	slow := worker.NewAuto("a-1", "writer", func(ctx context.Context, u *domain.UOW) (worker.Result, error) {
		time.Sleep(60 * time.Millisecond)
		return worker.Result{Attributes: map[string]any{"score": 1}}, nil
	})
	_, err = worker.NewRunner(eng, slow, worker.WithHeartbeatInterval(10*time.Millisecond)).RunOnce(ctx)
	require.NoError(t, err)

	u, err := eng.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, "edit", u.Location)
	assert.Equal(t, domain.StatusPending, u.Status)
	assert.Nil(t, u.LastHeartbeat, "cleared once the token leaves ACTIVE")

	hist, err := eng.History(ctx, root.ID)
	require.NoError(t, err)
	// Created, queued, claimed, handed off: heartbeats bump the version only.
	assert.Len(t, hist, 4)
	assert.Greater(t, u.Version, int64(4))
}

type fixedModel struct {
	attrs map[string]any
	err   error
}

func (m fixedModel) Decide(context.Context, *domain.UOW) (map[string]any, string, error) {
	return m.attrs, "model says so", m.err
}

func TestAI_RequiredKeys(t *testing.T) {
	ctx := context.Background()
	u := &domain.UOW{ID: "u-1"}

	ok := worker.NewAI("m-1", "editor", fixedModel{attrs: map[string]any{"summary": "fine"}}, "summary")
	res, err := ok.Process(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, "fine", res.Attributes["summary"])
	assert.Equal(t, "model says so", res.Rationale)

	missing := worker.NewAI("m-1", "editor", fixedModel{attrs: map[string]any{}}, "summary")
	_, err = missing.Process(ctx, u)
	assert.ErrorIs(t, err, worker.ErrIncompleteOutput)

	broken := worker.NewAI("m-1", "editor", fixedModel{err: errors.New("rate limited")})
	_, err = broken.Process(ctx, u)
	assert.ErrorContains(t, err, "rate limited")
}

func TestHuman_DecisionFlow(t *testing.T) {
	eng := newEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	root, err := eng.CreateRoot(ctx, "draft", nil, "")
	require.NoError(t, err)

	human := worker.NewHuman("h-1", "writer")
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		task := <-human.Tasks()
		assert.Equal(t, root.ID, task.ID)
		assert.NoError(t, human.Decide(ctx, worker.Result{Attributes: map[string]any{"score": 10}, Rationale: "approved"}))
	}()

	worked, err := worker.NewRunner(eng, human).RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, worked)
	wg.Wait()

	u, err := eng.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalized, u.Status)
}

func TestHuman_ProcessHonorsContext(t *testing.T) {
	human := worker.NewHuman("h-1", "writer")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := human.Process(ctx, &domain.UOW{ID: "u-1"})
	assert.ErrorIs(t, err, context.Canceled)
}
