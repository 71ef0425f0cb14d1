package sweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/logging"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/persistence"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
)

const (
	DefaultInterval         = 30 * time.Second
	DefaultExecutionTimeout = 5 * time.Minute
)

// ReclaimMode is where a token held by an unresponsive worker goes.
type ReclaimMode string

const (
	ReclaimToFailed  ReclaimMode = "failed"
	ReclaimToPending ReclaimMode = "pending"
)

// ParseReclaimMode validates a configured reclaim mode. There is no default.
func ParseReclaimMode(s string) (ReclaimMode, error) {
	switch m := ReclaimMode(s); m {
	case ReclaimToFailed, ReclaimToPending:
		return m, nil
	case "":
		return "", errors.New("reclaim mode is required (failed or pending)")
	default:
		return "", fmt.Errorf("unknown reclaim mode %q (want failed or pending)", s)
	}
}

func (m ReclaimMode) status() domain.Status {
	if m == ReclaimToPending {
		return domain.StatusPending
	}
	return domain.StatusFailed
}

// Config tunes the sweep.
type Config struct {
	Interval         time.Duration
	ExecutionTimeout time.Duration
	// QueueTimeout bounds how long a token may stay PENDING. Zero disables queue checks.
	QueueTimeout time.Duration
	// RecoverableQueue re-queues stale PENDING tokens instead of failing them.
	RecoverableQueue bool
	ReclaimMode      ReclaimMode
}

// Synchronizer resolves parents waiting on their children.
type Synchronizer interface {
	ResolveBlocked(ctx context.Context) (int, error)
}

// Report summarizes one sweep pass.
type Report struct {
	Reclaimed    int `json:"reclaimed"`
	TimedOut     int `json:"timed_out"`
	Requeued     int `json:"requeued"`
	LostRaces    int `json:"lost_races"`
	SyncResolved int `json:"sync_resolved"`
	Errors       int `json:"errors"`
}

// Reclaimer is the liveness sweep. It reclaims tokens from unresponsive
// workers and times out tokens that waited too long in a queue.
type Reclaimer struct {
	svc        *persistence.Service
	cfg        Config
	sync       Synchronizer
	escalation ports.EscalationSink
	hooks      domain.Hooks
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Reclaimer.
type Option func(*Reclaimer)

// WithSynchronizer lets each pass retry blocked parents.
func WithSynchronizer(s Synchronizer) Option {
	return func(r *Reclaimer) {
		r.sync = s
	}
}

// WithEscalation sets the sink notified of queue timeouts.
func WithEscalation(sink ports.EscalationSink) Option {
	return func(r *Reclaimer) {
		r.escalation = sink
	}
}

// WithHooks registers observability callbacks.
func WithHooks(h domain.Hooks) Option {
	return func(r *Reclaimer) {
		r.hooks = h
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reclaimer) {
		r.logger = logger
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reclaimer) {
		r.now = now
	}
}

// New creates a Reclaimer. It fails when the reclaim mode is missing or unknown.
func New(svc *persistence.Service, cfg Config, opts ...Option) (*Reclaimer, error) {
	if _, err := ParseReclaimMode(string(cfg.ReclaimMode)); err != nil {
		return nil, err
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = DefaultExecutionTimeout
	}
	r := &Reclaimer{
		svc:    svc,
		cfg:    cfg,
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run sweeps every interval until ctx is canceled.
func (r *Reclaimer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	r.logger.Info("Liveness sweep started",
		"interval", r.cfg.Interval,
		"execution_timeout", r.cfg.ExecutionTimeout,
		"queue_timeout", r.cfg.QueueTimeout,
		"reclaim_mode", r.cfg.ReclaimMode,
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Error("Sweep pass failed", "err", err)
			}
		}
	}
}

// Sweep runs one pass. It is idempotent: forced commits use the version read
// in this pass, so a token that moved in the meantime is left alone and
// counted as a lost race.
func (r *Reclaimer) Sweep(ctx context.Context) (Report, error) {
	var rep Report
	var errs []error

	if r.cfg.QueueTimeout > 0 {
		if err := r.sweepQueues(ctx, &rep); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.sweepWorkers(ctx, &rep); err != nil {
		errs = append(errs, err)
	}
	if r.sync != nil {
		n, err := r.sync.ResolveBlocked(ctx)
		rep.SyncResolved = n
		if err != nil {
			rep.Errors++
			errs = append(errs, fmt.Errorf("resolve blocked parents: %w", err))
		}
	}

	if rep != (Report{}) {
		r.logger.Info("Sweep pass",
			"reclaimed", rep.Reclaimed,
			"timed_out", rep.TimedOut,
			"requeued", rep.Requeued,
			"lost_races", rep.LostRaces,
			"sync_resolved", rep.SyncResolved,
			"errors", rep.Errors,
		)
	}
	return rep, errors.Join(errs...)
}

func (r *Reclaimer) sweepWorkers(ctx context.Context, rep *Report) error {
	active, err := r.svc.Store().ListByStatus(ctx, domain.StatusActive, "")
	if err != nil {
		return fmt.Errorf("list active: %w", err)
	}
	now := r.now()
	var errs []error
	for _, u := range active {
		// A token without a heartbeat has no live worker behind it.
		rationale := fmt.Sprintf("worker %q never sent a heartbeat", u.WorkerID)
		lastSeen := "none"
		if u.LastHeartbeat != nil {
			silent := now.Sub(*u.LastHeartbeat)
			if silent <= r.cfg.ExecutionTimeout {
				continue
			}
			rationale = fmt.Sprintf("worker %s unresponsive for %s", u.WorkerID, silent.Round(time.Second))
			lastSeen = u.LastHeartbeat.UTC().Format(time.RFC3339Nano)
		}

		target := r.cfg.ReclaimMode.status()
		_, err := r.svc.Commit(ctx, persistence.CommitRequest{
			UOWID:           u.ID,
			ExpectedVersion: u.Version,
			NewStatus:       target,
			EventType:       domain.EventReclamation,
			Requeue:         target == domain.StatusPending,
			Rationale:       rationale,
			Metadata: map[string]any{
				"reclaimed_worker": u.WorkerID,
				"last_heartbeat":   lastSeen,
			},
		})
		ev := &domain.ReclaimEvent{UOWID: u.ID, Kind: "worker", From: u.Status, To: target, WorkerID: u.WorkerID}
		switch {
		case err == nil:
			rep.Reclaimed++
			r.logger.Warn("Reclaimed token from unresponsive worker", "uow_id", u.ID, "worker_id", u.WorkerID, "to", target)
		case errors.Is(err, domain.ErrOwnershipConflict):
			rep.LostRaces++
			ev.Lost = true
		default:
			rep.Errors++
			errs = append(errs, fmt.Errorf("reclaim %s: %w", u.ID, err))
			continue
		}
		r.emit(ctx, ev)
	}
	return errors.Join(errs...)
}

func (r *Reclaimer) sweepQueues(ctx context.Context, rep *Report) error {
	pending, err := r.svc.Store().ListByStatus(ctx, domain.StatusPending, "")
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	now := r.now()
	var errs []error
	for _, u := range pending {
		waited := now.Sub(u.LocationSince)
		if waited <= r.cfg.QueueTimeout {
			continue
		}
		var err error
		if r.cfg.RecoverableQueue {
			err = r.requeue(ctx, u, waited, rep)
		} else {
			err = r.expire(ctx, u, waited, rep)
		}
		if err != nil {
			rep.Errors++
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Reclaimer) requeue(ctx context.Context, u *domain.UOW, waited time.Duration, rep *Report) error {
	_, err := r.svc.Commit(ctx, persistence.CommitRequest{
		UOWID:           u.ID,
		ExpectedVersion: u.Version,
		Requeue:         true,
		EventType:       domain.EventRequeue,
		Rationale:       fmt.Sprintf("queued for %s at %s", waited.Round(time.Second), u.Location),
	})
	ev := &domain.ReclaimEvent{UOWID: u.ID, Kind: "queue", From: u.Status, To: domain.StatusPending}
	switch {
	case err == nil:
		rep.Requeued++
	case errors.Is(err, domain.ErrOwnershipConflict):
		rep.LostRaces++
		ev.Lost = true
	default:
		return fmt.Errorf("requeue %s: %w", u.ID, err)
	}
	r.emit(ctx, ev)
	return nil
}

func (r *Reclaimer) expire(ctx context.Context, u *domain.UOW, waited time.Duration, rep *Report) error {
	reason := fmt.Sprintf("queued for %s at %s", waited.Round(time.Second), u.Location)
	timedOut, err := r.svc.Commit(ctx, persistence.CommitRequest{
		UOWID:           u.ID,
		ExpectedVersion: u.Version,
		NewStatus:       domain.StatusTimeout,
		EventType:       domain.EventTimeout,
		Rationale:       reason,
	})
	if errors.Is(err, domain.ErrOwnershipConflict) {
		rep.LostRaces++
		r.emit(ctx, &domain.ReclaimEvent{UOWID: u.ID, Kind: "queue", From: u.Status, To: domain.StatusTimeout, Lost: true})
		return nil
	}
	if err != nil {
		return fmt.Errorf("time out %s: %w", u.ID, err)
	}

	_, err = r.svc.Commit(ctx, persistence.CommitRequest{
		UOWID:           u.ID,
		ExpectedVersion: timedOut.Version,
		NewStatus:       domain.StatusFailed,
		Rationale:       "queue timeout",
	})
	if err != nil && !errors.Is(err, domain.ErrOwnershipConflict) {
		return fmt.Errorf("fail timed out %s: %w", u.ID, err)
	}

	rep.TimedOut++
	r.emit(ctx, &domain.ReclaimEvent{UOWID: u.ID, Kind: "queue", From: u.Status, To: domain.StatusFailed})
	r.logger.Warn("Queue timeout", "uow_id", u.ID, "location", u.Location, "waited", waited)
	if r.escalation != nil {
		err := r.escalation.Escalate(ctx, domain.Escalation{
			Kind:      domain.EscalationQueueTimeout,
			UOWID:     u.ID,
			Severity:  domain.SeverityWarning,
			Message:   reason,
			Details:   map[string]any{"location": u.Location},
			Timestamp: r.now(),
		})
		if err != nil {
			r.logger.Error("Escalation failed", "uow_id", u.ID, "err", err)
		}
	}
	return nil
}

func (r *Reclaimer) emit(ctx context.Context, e *domain.ReclaimEvent) {
	if r.hooks.OnReclaim == nil {
		return
	}
	e.Timestamp = r.now()
	r.hooks.OnReclaim(ctx, e)
}
