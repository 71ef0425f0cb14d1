package ports

import (
	"context"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
)

// EscalationSink receives events that need operator attention.
// Implementations must be safe for concurrent use.
type EscalationSink interface {
	Escalate(ctx context.Context, e domain.Escalation) error
}

// EscalationFunc adapts a function to EscalationSink.
type EscalationFunc func(ctx context.Context, e domain.Escalation) error

func (f EscalationFunc) Escalate(ctx context.Context, e domain.Escalation) error {
	return f(ctx, e)
}
