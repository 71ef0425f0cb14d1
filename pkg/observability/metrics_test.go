package observability_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/adapters/memory"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/guard"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/observability"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/persistence"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountsCommitsAndRouting(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	ctx := context.Background()

	svc := persistence.NewService(memory.NewStore(), persistence.WithHooks(m.Hooks()))
	u, err := svc.Create(ctx, persistence.NewUOW{Location: "intake", Attributes: map[string]any{"amount": 10}})
	require.NoError(t, err)
	_, err = svc.Commit(ctx, persistence.CommitRequest{UOWID: u.ID, NewStatus: domain.StatusPending})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("", "INITIALIZED", "created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("INITIALIZED", "PENDING", "transition")))

	router := guard.NewRoutingGuard(nil, guard.WithHooks(m.Hooks()))
	policy := domain.RoutingPolicy{
		Name: "triage",
		Branches: []domain.Branch{
			{Condition: "amount >", Destination: "x"},
			{Default: true, Destination: "standard"},
		},
	}
	_, err = router.Evaluate(ctx, &policy, u)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExpressionFailures.WithLabelValues("triage")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoutingDecisions.WithLabelValues("triage", "default")))

	strict := domain.RoutingPolicy{Name: "strict", Branches: []domain.Branch{{Condition: "amount > 100", Destination: "x"}}}
	_, err = router.Evaluate(ctx, &strict, u)
	require.ErrorIs(t, err, domain.ErrPolicyExhausted)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PolicyExhausted.WithLabelValues("strict")))
}

func TestMetrics_SinkCountsAndForwards(t *testing.T) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	rec := &observability.RecordingSink{}
	sink := m.Sink(rec)

	require.NoError(t, sink.Escalate(context.Background(), domain.Escalation{
		Kind:     domain.EscalationIntegrityDrift,
		UOWID:    "u-1",
		Severity: domain.SeverityCritical,
	}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Escalations.WithLabelValues("integrity_drift", "critical")))
	require.Len(t, rec.Escalations(), 1)
	assert.Equal(t, "u-1", rec.Escalations()[0].UOWID)
}

func TestMultiSink_JoinsErrors(t *testing.T) {
	rec := &observability.RecordingSink{}
	boom := errors.New("pager offline")
	failing := ports.EscalationFunc(func(context.Context, domain.Escalation) error { return boom })

	err := observability.MultiSink(failing, nil, rec).Escalate(context.Background(), domain.Escalation{Kind: domain.EscalationQueueTimeout})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, rec.Escalations(), 1, "later sinks still receive the escalation")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	err := observability.LogSink(logger).Escalate(context.Background(), domain.Escalation{
		Kind:     domain.EscalationSyncBlocked,
		UOWID:    "parent-1",
		Severity: domain.SeverityWarning,
		Message:  "parent blocked",
		Details:  map[string]any{"pending": 2},
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "Escalation: parent blocked")
	assert.Contains(t, out, "uow_id=parent-1")
	assert.Contains(t, out, "pending=2")
}
