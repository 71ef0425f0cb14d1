package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/logging"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/expr"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/shadowlog"
)

// Reason tells which rule selected a branch.
type Reason string

const (
	ReasonMatched Reason = "matched"
	ReasonOnError Reason = "on_error"
	ReasonDefault Reason = "default"
)

// BranchFailure is a branch whose condition could not be evaluated.
type BranchFailure struct {
	BranchIndex int    `json:"branch_index"`
	Expression  string `json:"expression"`
	Err         string `json:"error"`
}

// Decision is the outcome of routing one unit of work.
type Decision struct {
	Policy      string          `json:"policy"`
	BranchIndex int             `json:"branch_index"`
	Destination string          `json:"destination"`
	Action      string          `json:"action,omitempty"`
	Reason      Reason          `json:"reason"`
	Failures    []BranchFailure `json:"failures,omitempty"`
}

// RoutingGuard evaluates routing policies under the Silent Failure Protocol:
// a failing condition is logged to the shadow log and skipped, never raised.
type RoutingGuard struct {
	evaluator  *expr.Evaluator
	shadow     *shadowlog.Log
	escalation ports.EscalationSink
	hooks      domain.Hooks
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a RoutingGuard.
type Option func(*RoutingGuard)

// WithShadowLog sets where branch failures are captured.
func WithShadowLog(l *shadowlog.Log) Option {
	return func(g *RoutingGuard) {
		g.shadow = l
	}
}

// WithEscalation sets the sink notified on policy exhaustion.
func WithEscalation(sink ports.EscalationSink) Option {
	return func(g *RoutingGuard) {
		g.escalation = sink
	}
}

// WithHooks registers observability callbacks.
func WithHooks(h domain.Hooks) Option {
	return func(g *RoutingGuard) {
		g.hooks = h
	}
}

// WithLogger configures a logger for the guard.
func WithLogger(logger *slog.Logger) Option {
	return func(g *RoutingGuard) {
		g.logger = logger
	}
}

// NewRoutingGuard creates a guard. A nil evaluator gets the builtin registry.
func NewRoutingGuard(evaluator *expr.Evaluator, opts ...Option) *RoutingGuard {
	if evaluator == nil {
		evaluator = expr.NewEvaluator(nil)
	}
	g := &RoutingGuard{
		evaluator: evaluator,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.shadow == nil {
		g.shadow = shadowlog.New(shadowlog.DefaultCapacity)
	}
	return g
}

// ShadowLog returns the log branch failures are written to.
func (g *RoutingGuard) ShadowLog() *shadowlog.Log {
	return g.shadow
}

// Evaluate selects a branch of policy for uow.
//
// Condition branches are tried in declaration order and the first truthy one
// wins. If none matches, the on_error branch is taken when a condition
// declared before it failed, then the default branch. Otherwise a *PolicyExhaustedError
// is returned and escalated.
func (g *RoutingGuard) Evaluate(ctx context.Context, policy *domain.RoutingPolicy, uow *domain.UOW) (Decision, error) {
	name := ""
	var branches []domain.Branch
	if policy != nil {
		name = policy.Name
		branches = policy.Branches
	}

	vars := domain.BuildEvaluationContext(uow)
	var failures []BranchFailure
	onError, fallback := -1, -1
	// failures declared ahead of the on_error branch
	failedBeforeOnError := 0

	for i, b := range branches {
		switch b.Kind() {
		case domain.BranchDefault:
			if fallback < 0 {
				fallback = i
			}
			continue
		case domain.BranchOnError:
			if onError < 0 {
				onError = i
				failedBeforeOnError = len(failures)
			}
			continue
		}

		ok, err := g.evaluator.EvaluateBool(b.Condition, vars)
		if err != nil {
			failures = append(failures, BranchFailure{BranchIndex: i, Expression: b.Condition, Err: err.Error()})
			g.recordFailure(ctx, name, uow.ID, i, b.Condition, vars, err)
			continue
		}
		if ok {
			return g.decide(ctx, name, uow.ID, i, b, ReasonMatched, failures), nil
		}
	}

	if onError >= 0 && failedBeforeOnError > 0 {
		return g.decide(ctx, name, uow.ID, onError, branches[onError], ReasonOnError, failures), nil
	}
	if fallback >= 0 {
		return g.decide(ctx, name, uow.ID, fallback, branches[fallback], ReasonDefault, failures), nil
	}

	exhausted := &PolicyExhaustedError{Policy: name, UOWID: uow.ID, Failures: len(failures)}
	g.shadow.Record(shadowlog.Entry{
		Kind:        shadowlog.KindPolicyExhausted,
		UOWID:       uow.ID,
		Policy:      name,
		BranchIndex: -1,
		Context:     vars,
		Error:       exhausted.Error(),
	})
	g.emit(ctx, &domain.GuardEvent{
		UOWID:       uow.ID,
		Policy:      name,
		BranchIndex: -1,
		Failed:      true,
		Err:         exhausted,
	})
	g.escalate(ctx, domain.Escalation{
		Kind:     domain.EscalationPolicyExhausted,
		UOWID:    uow.ID,
		Severity: domain.SeverityCritical,
		Message:  exhausted.Error(),
		Details:  map[string]any{"policy": name, "failures": len(failures)},
	})
	return Decision{Policy: name, BranchIndex: -1, Failures: failures}, exhausted
}

func (g *RoutingGuard) decide(ctx context.Context, policy, uowID string, idx int, b domain.Branch, reason Reason, failures []BranchFailure) Decision {
	d := Decision{
		Policy:      policy,
		BranchIndex: idx,
		Destination: b.Destination,
		Action:      b.Action,
		Reason:      reason,
		Failures:    failures,
	}
	g.logger.Debug("Routing decision",
		"uow_id", uowID,
		"policy", policy,
		"branch", idx,
		"destination", d.Destination,
		"reason", reason,
		"failures", len(failures),
	)
	g.emit(ctx, &domain.GuardEvent{
		UOWID:       uowID,
		Policy:      policy,
		BranchIndex: idx,
		Destination: d.Destination,
		Reason:      string(reason),
	})
	return d
}

func (g *RoutingGuard) recordFailure(ctx context.Context, policy, uowID string, idx int, condition string, vars map[string]any, err error) {
	kind := shadowlog.KindEvaluation
	if errors.Is(err, expr.ErrSyntax) {
		kind = shadowlog.KindSyntax
	}
	g.shadow.Record(shadowlog.Entry{
		Kind:        kind,
		UOWID:       uowID,
		Policy:      policy,
		BranchIndex: idx,
		Expression:  condition,
		Context:     vars,
		Error:       err.Error(),
	})
	g.emit(ctx, &domain.GuardEvent{
		UOWID:       uowID,
		Policy:      policy,
		BranchIndex: idx,
		Failed:      true,
		Err:         err,
	})
}

func (g *RoutingGuard) emit(ctx context.Context, e *domain.GuardEvent) {
	if g.hooks.OnGuardDecision == nil {
		return
	}
	e.Timestamp = g.now()
	g.hooks.OnGuardDecision(ctx, e)
}

func (g *RoutingGuard) escalate(ctx context.Context, e domain.Escalation) {
	if g.escalation == nil {
		return
	}
	e.Timestamp = g.now()
	if err := g.escalation.Escalate(ctx, e); err != nil {
		g.logger.Error("Escalation failed", "kind", e.Kind, "uow_id", e.UOWID, "err", err)
	}
}

// String implements fmt.Stringer for log output.
func (d Decision) String() string {
	return fmt.Sprintf("%s[%d] -> %s (%s)", d.Policy, d.BranchIndex, d.Destination, d.Reason)
}
