package observability

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
)

// LogSink writes escalations to a structured logger. Critical escalations
// are logged at error level.
func LogSink(logger *slog.Logger) ports.EscalationSink {
	return ports.EscalationFunc(func(ctx context.Context, e domain.Escalation) error {
		level := slog.LevelWarn
		if e.Severity == domain.SeverityCritical {
			level = slog.LevelError
		}
		attrs := []any{
			"kind", e.Kind,
			"uow_id", e.UOWID,
			"severity", e.Severity,
		}
		for k, v := range e.Details {
			attrs = append(attrs, k, v)
		}
		logger.Log(ctx, level, "Escalation: "+e.Message, attrs...)
		return nil
	})
}

// MultiSink delivers to every sink and joins their errors.
func MultiSink(sinks ...ports.EscalationSink) ports.EscalationSink {
	return ports.EscalationFunc(func(ctx context.Context, e domain.Escalation) error {
		var errs []error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Escalate(ctx, e); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// RecordingSink keeps escalations in memory for inspection.
type RecordingSink struct {
	mu  sync.Mutex
	got []domain.Escalation
}

func (r *RecordingSink) Escalate(_ context.Context, e domain.Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.Details = domain.CloneAttributes(e.Details)
	r.got = append(r.got, e)
	return nil
}

// Escalations returns a copy of everything recorded so far.
func (r *RecordingSink) Escalations() []domain.Escalation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Escalation(nil), r.got...)
}
