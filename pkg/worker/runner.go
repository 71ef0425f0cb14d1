package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/logging"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/engine"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultPollInterval      = time.Second

	// InvalidResultCode is reported when the engine refuses a result.
	InvalidResultCode = "INVALID_RESULT"
)

// Client is the set of engine operations a runner needs. *engine.Engine
// satisfies it, as does the HTTP client.
type Client interface {
	Claim(ctx context.Context, role, workerID string) (*domain.UOW, error)
	Heartbeat(ctx context.Context, uowID, workerID string) (*domain.UOW, error)
	Submit(ctx context.Context, req engine.SubmitRequest) (*engine.SubmitResult, error)
	ReportFailure(ctx context.Context, uowID, workerID, code, details string) (*domain.UOW, error)
	Spawn(ctx context.Context, parentID, workerID string, specs []engine.ChildSpec) ([]*domain.UOW, error)
}

// Runner drives one worker: claim, heartbeat while processing, then submit
// or report failure.
type Runner struct {
	client    Client
	worker    Worker
	heartbeat time.Duration
	poll      time.Duration
	logger    *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithHeartbeatInterval sets how often liveness is signaled while processing.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(r *Runner) {
		r.heartbeat = d
	}
}

// WithPollInterval sets how long Run waits after finding no work.
func WithPollInterval(d time.Duration) Option {
	return func(r *Runner) {
		r.poll = d
	}
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a runner for w.
func NewRunner(client Client, w Worker, opts ...Option) *Runner {
	r := &Runner{
		client:    client,
		worker:    w,
		heartbeat: DefaultHeartbeatInterval,
		poll:      DefaultPollInterval,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes tokens until ctx is canceled.
func (r *Runner) Run(ctx context.Context) error {
	for {
		worked, err := r.RunOnce(ctx)
		if err != nil && !errors.Is(err, domain.ErrOwnershipConflict) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Error("Worker iteration failed", "worker_id", r.worker.ID(), "err", err)
		}
		if worked {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.poll):
		}
	}
}

// RunOnce claims and processes a single token. It reports false when there
// was nothing to claim.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	id := r.worker.ID()
	u, err := r.client.Claim(ctx, r.worker.Role(), id)
	if errors.Is(err, domain.ErrNoWork) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.logger.Debug("Claimed", "worker_id", id, "uow_id", u.ID, "location", u.Location)

	procCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	done := make(chan struct{})
	go r.keepAlive(procCtx, cancel, u.ID, done)

	res, procErr := r.worker.Process(procCtx, u)
	close(done)

	if cause := context.Cause(procCtx); cause != nil && errors.Is(cause, domain.ErrOwnershipConflict) {
		return true, cause
	}
	if procErr != nil {
		_, err := r.client.ReportFailure(ctx, u.ID, id, "WORKER_ERROR", procErr.Error())
		return true, errors.Join(procErr, err)
	}
	if res.Failure != nil {
		_, err := r.client.ReportFailure(ctx, u.ID, id, res.Failure.Code, res.Failure.Details)
		return true, err
	}
	if len(res.Children) > 0 {
		if _, err := r.client.Spawn(ctx, u.ID, id, res.Children); err != nil {
			return true, err
		}
	}
	out, err := r.client.Submit(ctx, engine.SubmitRequest{
		UOWID:     u.ID,
		WorkerID:  id,
		Result:    res.Attributes,
		Rationale: res.Rationale,
	})
	if errors.Is(err, domain.ErrInvalidResult) {
		r.logger.Warn("Result refused", "worker_id", id, "uow_id", u.ID, "err", err)
		_, ferr := r.client.ReportFailure(ctx, u.ID, id, InvalidResultCode, err.Error())
		return true, ferr
	}
	if err != nil {
		return true, err
	}
	r.logger.Info("Submitted",
		"worker_id", id,
		"uow_id", u.ID,
		"outcome", out.Outcome,
		"location", out.UOW.Location,
	)
	return true, nil
}

// keepAlive heartbeats until done is closed. Losing ownership cancels processing.
func (r *Runner) keepAlive(ctx context.Context, cancel context.CancelCauseFunc, uowID string, done <-chan struct{}) {
	ticker := time.NewTicker(r.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := r.client.Heartbeat(ctx, uowID, r.worker.ID())
			if errors.Is(err, domain.ErrOwnershipConflict) {
				r.logger.Warn("Lost ownership while processing", "uow_id", uowID, "worker_id", r.worker.ID())
				cancel(err)
				return
			}
			if err != nil {
				r.logger.Warn("Heartbeat failed", "uow_id", uowID, "err", err)
			}
		}
	}
}
