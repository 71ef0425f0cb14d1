package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
)

// Store implements ports.UOWStore in memory.
// Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	data    map[string]*domain.UOW
	history map[string][]domain.HistoryEntry
	audit   map[string][]domain.AuditEntry
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data:    make(map[string]*domain.UOW),
		history: make(map[string][]domain.HistoryEntry),
		audit:   make(map[string][]domain.AuditEntry),
	}
}

// Create inserts a unit of work and its first history entry.
func (s *Store) Create(ctx context.Context, uow *domain.UOW, entry *domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[uow.ID]; exists {
		return domain.ErrAlreadyExists
	}
	s.data[uow.ID] = uow.Clone()
	if entry != nil {
		s.history[uow.ID] = append(s.history[uow.ID], cloneEntry(*entry))
	}
	return nil
}

// Get retrieves a copy of the unit of work.
func (s *Store) Get(ctx context.Context, id string) (*domain.UOW, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.data[id]
	if !ok {
		return nil, domain.ErrUOWNotFound
	}
	return u.Clone(), nil
}

// Update replaces the record if the stored version matches.
func (s *Store) Update(ctx context.Context, uow *domain.UOW, expectedVersion int64, entry *domain.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data[uow.ID]
	if !ok {
		return domain.ErrUOWNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrVersionConflict
	}
	s.data[uow.ID] = uow.Clone()
	if entry != nil {
		s.history[uow.ID] = append(s.history[uow.ID], cloneEntry(*entry))
	}
	return nil
}

// History returns the history entries ordered by sequence.
func (s *Store) History(ctx context.Context, id string) ([]domain.HistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.history[id]
	out := make([]domain.HistoryEntry, len(src))
	for i, e := range src {
		out[i] = cloneEntry(e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// AppendAudit records an audit entry.
func (s *Store) AppendAudit(ctx context.Context, entry domain.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.Metadata = domain.CloneAttributes(entry.Metadata)
	s.audit[entry.UOWID] = append(s.audit[entry.UOWID], entry)
	return nil
}

// Audit returns the audit entries in insertion order.
func (s *Store) Audit(ctx context.Context, id string) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.audit[id]
	out := make([]domain.AuditEntry, len(src))
	for i, e := range src {
		e.Metadata = domain.CloneAttributes(e.Metadata)
		out[i] = e
	}
	return out, nil
}

// ListChildren returns the children of parentID.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*domain.UOW, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.UOW
	for _, u := range s.data {
		if u.Parent() == parentID {
			out = append(out, u.Clone())
		}
	}
	sortByLocationSince(out)
	return out, nil
}

// ListByStatus returns units of work in status, oldest at their location first.
func (s *Store) ListByStatus(ctx context.Context, status domain.Status, location string) ([]*domain.UOW, error) {
	status = status.Canonical()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.UOW
	for _, u := range s.data {
		if u.Status.Canonical() != status {
			continue
		}
		if location != "" && u.Location != location {
			continue
		}
		out = append(out, u.Clone())
	}
	sortByLocationSince(out)
	return out, nil
}

func sortByLocationSince(us []*domain.UOW) {
	sort.Slice(us, func(i, j int) bool {
		if us[i].LocationSince.Equal(us[j].LocationSince) {
			return us[i].ID < us[j].ID
		}
		return us[i].LocationSince.Before(us[j].LocationSince)
	})
}

func cloneEntry(e domain.HistoryEntry) domain.HistoryEntry {
	if e.PreviousStateHash != nil {
		h := *e.PreviousStateHash
		e.PreviousStateHash = &h
	}
	if e.WorkerID != nil {
		w := *e.WorkerID
		e.WorkerID = &w
	}
	e.Metadata = domain.CloneAttributes(e.Metadata)
	return e
}
