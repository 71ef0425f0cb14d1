package ports

import (
	"context"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
)

// UOWStore persists units of work together with their history and audit trails.
//
// Implementations must return copies: mutating a returned value never affects
// stored state. Writes are optimistic: Update succeeds only if the stored
// version still equals expectedVersion, and the record and its history entry
// are written atomically.
type UOWStore interface {
	// Create inserts a new unit of work and its first history entry.
	// Returns domain.ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, uow *domain.UOW, entry *domain.HistoryEntry) error

	// Get retrieves a unit of work by id.
	// Returns domain.ErrUOWNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.UOW, error)

	// Update replaces the record if its stored version equals expectedVersion and,
	// when entry is non-nil, appends entry to the history in the same write.
	// Returns domain.ErrVersionConflict on a version mismatch and
	// domain.ErrUOWNotFound if the record is gone.
	Update(ctx context.Context, uow *domain.UOW, expectedVersion int64, entry *domain.HistoryEntry) error

	// History returns the history entries of a unit of work ordered by Seq.
	History(ctx context.Context, id string) ([]domain.HistoryEntry, error)

	// AppendAudit records an event outside the history chain.
	AppendAudit(ctx context.Context, entry domain.AuditEntry) error

	// Audit returns the audit entries of a unit of work in insertion order.
	Audit(ctx context.Context, id string) ([]domain.AuditEntry, error)

	// ListChildren returns the units of work whose parent is parentID.
	ListChildren(ctx context.Context, parentID string) ([]*domain.UOW, error)

	// ListByStatus returns units of work in status, optionally restricted to a
	// location ("" matches all), ordered by LocationSince ascending.
	ListByStatus(ctx context.Context, status domain.Status, location string) ([]*domain.UOW, error)
}
