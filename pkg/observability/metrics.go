package observability

import (
	"context"
	"strconv"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chameleon"

// Metrics holds the Prometheus collectors for one engine.
type Metrics struct {
	Transitions        *prometheus.CounterVec
	RoutingDecisions   *prometheus.CounterVec
	ExpressionFailures *prometheus.CounterVec
	PolicyExhausted    *prometheus.CounterVec
	Reclamations       *prometheus.CounterVec
	SyncChecks         *prometheus.CounterVec
	Escalations        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Committed history entries by status change and event type.",
		}, []string{"from", "to", "event"}),
		RoutingDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routing_decisions_total",
			Help:      "Routing decisions by policy and how the branch was selected.",
		}, []string{"policy", "reason"}),
		ExpressionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expression_failures_total",
			Help:      "Branch conditions that failed to evaluate and were skipped.",
		}, []string{"policy"}),
		PolicyExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "policy_exhausted_total",
			Help:      "Routing attempts where no branch matched.",
		}, []string{"policy"}),
		Reclamations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reclamations_total",
			Help:      "Forced transitions by the liveness sweep.",
		}, []string{"kind", "to", "lost"}),
		SyncChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_checks_total",
			Help:      "Cerberus synchronization checks by outcome and failing head.",
		}, []string{"passed", "failed_head"}),
		Escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Escalations raised to operators.",
		}, []string{"kind", "severity"}),
	}
	reg.MustRegister(
		m.Transitions,
		m.RoutingDecisions,
		m.ExpressionFailures,
		m.PolicyExhausted,
		m.Reclamations,
		m.SyncChecks,
		m.Escalations,
	)
	return m
}

// Hooks returns domain hooks that record into m.
func (m *Metrics) Hooks() domain.Hooks {
	return domain.Hooks{
		OnCommit: func(_ context.Context, e *domain.CommitEvent) {
			if e.Entry == nil {
				return
			}
			m.Transitions.WithLabelValues(
				string(e.Entry.PreviousStatus),
				string(e.Entry.NewStatus),
				string(e.Entry.EventType),
			).Inc()
		},
		OnGuardDecision: func(_ context.Context, e *domain.GuardEvent) {
			switch {
			case e.Failed && e.BranchIndex < 0:
				m.PolicyExhausted.WithLabelValues(e.Policy).Inc()
			case e.Failed:
				m.ExpressionFailures.WithLabelValues(e.Policy).Inc()
			default:
				m.RoutingDecisions.WithLabelValues(e.Policy, e.Reason).Inc()
			}
		},
		OnSync: func(_ context.Context, e *domain.SyncEvent) {
			m.SyncChecks.WithLabelValues(strconv.FormatBool(e.Passed), e.FailedHead).Inc()
		},
		OnReclaim: func(_ context.Context, e *domain.ReclaimEvent) {
			m.Reclamations.WithLabelValues(e.Kind, string(e.To), strconv.FormatBool(e.Lost)).Inc()
		},
	}
}

// Sink wraps next so every escalation is counted before delivery.
func (m *Metrics) Sink(next ports.EscalationSink) ports.EscalationSink {
	return ports.EscalationFunc(func(ctx context.Context, e domain.Escalation) error {
		m.Escalations.WithLabelValues(string(e.Kind), string(e.Severity)).Inc()
		if next == nil {
			return nil
		}
		return next.Escalate(ctx, e)
	})
}
