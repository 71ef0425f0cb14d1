package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/logging"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/guard"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/integrity"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/persistence"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/schema"
)

// Engine exposes the worker-facing operations over a workflow.
// It holds no token state of its own; everything lives in the persistence service.
type Engine struct {
	svc        *persistence.Service
	workflow   *domain.Workflow
	contracts  map[string]schema.Schema
	router     *guard.RoutingGuard
	cerberus   *guard.Cerberus
	escalation ports.EscalationSink
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures the Engine.
type Option func(*Engine)

// WithRouter sets the routing guard.
func WithRouter(g *guard.RoutingGuard) Option {
	return func(e *Engine) {
		e.router = g
	}
}

// WithCerberus sets the synchronization guard.
func WithCerberus(c *guard.Cerberus) Option {
	return func(e *Engine) {
		e.cerberus = c
	}
}

// WithEscalation sets the sink notified of worker-reported failures.
func WithEscalation(sink ports.EscalationSink) Option {
	return func(e *Engine) {
		e.escalation = sink
	}
}

// WithLogger configures a logger for the Engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an engine for workflow.
func New(svc *persistence.Service, workflow *domain.Workflow, opts ...Option) (*Engine, error) {
	if svc == nil {
		return nil, errors.New("engine: persistence service is required")
	}
	if workflow == nil || len(workflow.Locations) == 0 {
		return nil, errors.New("engine: workflow has no locations")
	}
	contracts := make(map[string]schema.Schema)
	for _, loc := range workflow.Locations {
		if len(loc.Requires) == 0 {
			continue
		}
		s, err := schema.ParseTypeMap(loc.Requires)
		if err != nil {
			return nil, fmt.Errorf("engine: location %q requires: %w", loc.ID, err)
		}
		contracts[loc.ID] = s
	}
	e := &Engine{
		svc:       svc,
		workflow:  workflow,
		contracts: contracts,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.router == nil {
		e.router = guard.NewRoutingGuard(nil, guard.WithLogger(e.logger))
	}
	if e.cerberus == nil {
		e.cerberus = guard.NewCerberus(svc.Store(), guard.WithSyncLogger(e.logger))
	}
	return e, nil
}

// Workflow returns the workflow the engine runs.
func (e *Engine) Workflow() *domain.Workflow {
	return e.workflow
}

// Service returns the persistence service for read paths.
func (e *Engine) Service() *persistence.Service {
	return e.svc
}

// Router returns the routing guard.
func (e *Engine) Router() *guard.RoutingGuard {
	return e.router
}

// CreateRoot places a new root token in the queue at location.
func (e *Engine) CreateRoot(ctx context.Context, location string, attributes map[string]any, rationale string) (*domain.UOW, error) {
	if _, err := e.workflow.Location(location); err != nil {
		return nil, err
	}
	u, err := e.svc.Create(ctx, persistence.NewUOW{
		Location:   location,
		Attributes: attributes,
		Rationale:  rationale,
	})
	if err != nil {
		return nil, err
	}
	return e.svc.Commit(ctx, persistence.CommitRequest{
		UOWID:           u.ID,
		ExpectedVersion: u.Version,
		NewStatus:       domain.StatusPending,
		Rationale:       "queued at " + location,
	})
}

// ChildSpec describes one child of a decomposition.
type ChildSpec struct {
	Location   string         `json:"location,omitempty"`
	Attributes map[string]any `json:"attributes"`
}

// Spawn decomposes an ACTIVE parent held by workerID into children and queues them.
func (e *Engine) Spawn(ctx context.Context, parentID, workerID string, specs []ChildSpec) ([]*domain.UOW, error) {
	parent, err := e.svc.Get(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.Status != domain.StatusActive || parent.WorkerID != workerID {
		return nil, &domain.OwnershipError{UOWID: parentID, Reason: workerID + " does not hold the lock"}
	}

	reqs := make([]persistence.NewUOW, len(specs))
	for i, s := range specs {
		if s.Location != "" {
			if _, err := e.workflow.Location(s.Location); err != nil {
				return nil, err
			}
		}
		reqs[i] = persistence.NewUOW{
			Location:   s.Location,
			Attributes: s.Attributes,
			Rationale:  "decomposed from " + parentID,
		}
	}

	children, err := e.svc.Spawn(ctx, parentID, reqs)
	if err != nil {
		return nil, err
	}
	queued := make([]*domain.UOW, 0, len(children))
	for _, c := range children {
		u, err := e.svc.Commit(ctx, persistence.CommitRequest{
			UOWID:           c.ID,
			ExpectedVersion: c.Version,
			NewStatus:       domain.StatusPending,
			Rationale:       "queued at " + c.Location,
		})
		if err != nil {
			return queued, err
		}
		queued = append(queued, u)
	}
	return queued, nil
}

// Claim locks the oldest pending token at any location served by role.
// Returns domain.ErrNoWork when the queues are empty.
func (e *Engine) Claim(ctx context.Context, role, workerID string) (*domain.UOW, error) {
	if workerID == "" {
		return nil, errors.New("claim: worker id is required")
	}
	locations := e.workflow.LocationsForRole(role)
	if len(locations) == 0 {
		return nil, fmt.Errorf("%w: no location serves role %q", domain.ErrUnknownLocation, role)
	}
	return e.svc.Claim(ctx, workerID, locations...)
}

// Heartbeat refreshes the liveness of a token held by workerID.
func (e *Engine) Heartbeat(ctx context.Context, uowID, workerID string) (*domain.UOW, error) {
	return e.svc.Heartbeat(ctx, uowID, workerID)
}

// ReportFailure marks a token held by workerID as FAILED.
func (e *Engine) ReportFailure(ctx context.Context, uowID, workerID, code, details string) (*domain.UOW, error) {
	u, err := e.svc.Commit(ctx, persistence.CommitRequest{
		UOWID:            uowID,
		ExpectedWorkerID: workerID,
		NewStatus:        domain.StatusFailed,
		Rationale:        details,
		Metadata:         map[string]any{"error_code": code},
	})
	if err != nil {
		return nil, err
	}
	e.escalate(ctx, domain.Escalation{
		Kind:     domain.EscalationWorkerFailure,
		UOWID:    uowID,
		Severity: domain.SeverityWarning,
		Message:  fmt.Sprintf("%s: %s", code, details),
		Details:  map[string]any{"worker_id": workerID, "error_code": code},
	})
	return u, nil
}

// Remediate hands a FAILED token to a remediation worker. The token becomes
// ACTIVE under workerID with the corrected attributes and is then submitted
// like any other claim.
func (e *Engine) Remediate(ctx context.Context, uowID, workerID string, attributes map[string]any, rationale string) (*domain.UOW, error) {
	if workerID == "" {
		return nil, errors.New("remediate: worker id is required")
	}
	return e.svc.Commit(ctx, persistence.CommitRequest{
		UOWID:      uowID,
		NewStatus:  domain.StatusActive,
		WorkerID:   workerID,
		Attributes: attributes,
		Rationale:  rationale,
		Metadata:   map[string]any{"remediation": true},
	})
}

// Archive moves a FINALIZED token to ARCHIVED.
func (e *Engine) Archive(ctx context.Context, uowID, rationale string) (*domain.UOW, error) {
	return e.svc.Commit(ctx, persistence.CommitRequest{
		UOWID:     uowID,
		NewStatus: domain.StatusArchived,
		Rationale: rationale,
	})
}

// Get returns a token.
func (e *Engine) Get(ctx context.Context, uowID string) (*domain.UOW, error) {
	return e.svc.Get(ctx, uowID)
}

// History returns the hash-chained history of a token.
func (e *Engine) History(ctx context.Context, uowID string) ([]domain.HistoryEntry, error) {
	return e.svc.History(ctx, uowID)
}

// Audit returns the rejected attempts and drift reports recorded for a unit of work.
func (e *Engine) Audit(ctx context.Context, uowID string) ([]domain.AuditEntry, error) {
	return e.svc.Audit(ctx, uowID)
}

// VerifyChain walks the history hash chain of a unit of work.
func (e *Engine) VerifyChain(ctx context.Context, uowID string) (persistence.ChainReport, error) {
	return e.svc.VerifyChain(ctx, uowID)
}

// VerifyIntegrity recomputes the content hash of a token.
func (e *Engine) VerifyIntegrity(ctx context.Context, uowID string) (integrity.Result, error) {
	return e.svc.VerifyIntegrity(ctx, uowID)
}

func (e *Engine) escalate(ctx context.Context, esc domain.Escalation) {
	if e.escalation == nil {
		return
	}
	esc.Timestamp = e.now()
	if err := e.escalation.Escalate(ctx, esc); err != nil {
		e.logger.Error("Escalation failed", "kind", esc.Kind, "uow_id", esc.UOWID, "err", err)
	}
}
