package chameleon_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	chameleon "github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/config"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/engine"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/observability"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const workflowYAML = `
sweep:
  reclaim_mode: failed
workflow:
  name: expenses
  variables: [amount, approved]
  locations:
    - id: intake
      role: clerk
      policy:
        name: triage
        branches:
          - condition: amount > 1000
            destination: approval
          - default: true
            destination: paid
    - id: approval
      role: manager
      policy:
        name: approve
        branches:
          - condition: approved == true
            destination: paid
    - id: paid
      role: archivist
      terminal: true
`

func newSystem(t *testing.T, store string, opts ...chameleon.Option) *chameleon.System {
	t.Helper()
	cfg, err := config.Parse([]byte(store + workflowYAML))
	require.NoError(t, err)
	sys, err := chameleon.New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { sys.Close() })
	return sys
}

func clerk() worker.Worker {
	return worker.NewAuto("clerk-1", "clerk", func(context.Context, *domain.UOW) (worker.Result, error) {
		return worker.Result{Rationale: "checked receipt"}, nil
	})
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := chameleon.New(nil)
	assert.Error(t, err)

	cfg := config.Default()
	_, err = chameleon.New(&cfg)
	assert.Error(t, err, "a default configuration has no workflow")
}

func TestSystem_EndToEnd(t *testing.T) {
	recorder := &observability.RecordingSink{}
	sys := newSystem(t, `
store:
  backend: memory
  encryption_key: "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
`, chameleon.WithEscalationSink(recorder))
	ctx := context.Background()

	small, err := sys.Engine.CreateRoot(ctx, "intake", map[string]any{"amount": 40}, "lunch")
	require.NoError(t, err)

	worked, err := worker.NewRunner(sys.Engine, clerk()).RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, worked)

	got, err := sys.Engine.Get(ctx, small.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalized, got.Status)
	assert.EqualValues(t, 40, got.Attributes["amount"], "attributes decrypt transparently")

	chain, err := sys.Engine.VerifyChain(ctx, small.ID)
	require.NoError(t, err)
	assert.True(t, chain.Valid())

	report, err := sys.Sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Errors)

	srv, err := sys.HTTPServer()
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "chameleon_transitions_total{")
	assert.Contains(t, string(body), "go_goroutines")

	resp, err = http.Get(ts.URL + "/v1/uows/" + small.ID)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.NotNil(t, sys.MCPServer().MCPServer())
	assert.Empty(t, recorder.Escalations())
}

func TestSystem_WorkerFailureEscalates(t *testing.T) {
	recorder := &observability.RecordingSink{}
	sys := newSystem(t, "store:\n  backend: memory\n", chameleon.WithEscalationSink(recorder))
	ctx := context.Background()

	_, err := sys.Engine.CreateRoot(ctx, "intake", map[string]any{"amount": 5000}, "")
	require.NoError(t, err)
	_, err = worker.NewRunner(sys.Engine, clerk()).RunOnce(ctx)
	require.NoError(t, err)

	broken := worker.NewAuto("mgr-1", "manager", func(context.Context, *domain.UOW) (worker.Result, error) {
		return worker.Result{}, fmt.Errorf("approval service down")
	})
	_, err = worker.NewRunner(sys.Engine, broken).RunOnce(ctx)
	require.NoError(t, err)

	escalations := recorder.Escalations()
	require.Len(t, escalations, 1)
	assert.Equal(t, domain.EscalationWorkerFailure, escalations[0].Kind)
}

func TestSystem_SQLiteSurvivesRestart(t *testing.T) {
	store := fmt.Sprintf("store:\n  backend: sqlite\n  dsn: %s\n", filepath.Join(t.TempDir(), "chameleon.db"))
	ctx := context.Background()

	first := newSystem(t, store)
	root, err := first.Engine.CreateRoot(ctx, "intake", map[string]any{"amount": 2500}, "")
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newSystem(t, store)
	claimed, err := second.Engine.Claim(ctx, "clerk", "clerk-2")
	require.NoError(t, err)
	assert.Equal(t, root.ID, claimed.ID)

	res, err := second.Engine.Submit(ctx, engine.SubmitRequest{UOWID: root.ID, WorkerID: "clerk-2"})
	require.NoError(t, err)
	assert.Equal(t, "approval", res.UOW.Location)
}

func TestSystem_RedisWithDistributedLocks(t *testing.T) {
	mr := miniredis.RunT(t)
	sys := newSystem(t, fmt.Sprintf("store:\n  backend: redis\n  addr: %s\n  distributed_locks: true\n", mr.Addr()))
	ctx := context.Background()

	root, err := sys.Engine.CreateRoot(ctx, "intake", map[string]any{"amount": 1}, "")
	require.NoError(t, err)
	worked, err := worker.NewRunner(sys.Engine, clerk()).RunOnce(ctx)
	require.NoError(t, err)
	require.True(t, worked)

	got, err := sys.Engine.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalized, got.Status)

	keys := mr.Keys()
	assert.True(t, containsPrefix(keys, "chameleon:uow:"), "keys: %v", keys)
	assert.False(t, containsPrefix(keys, "chameleon:lock:"), "locks are released")
}

func containsPrefix(keys []string, prefix string) bool {
	for _, k := range keys {
		if strings.HasPrefix(k, prefix) {
			return true
		}
	}
	return false
}
