package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/logging"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/integrity"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockTTL bounds how long a distributed lock is held if its owner dies.
const DefaultLockTTL = 30 * time.Second

// Service is the only writer of units of work. Every state change goes through
// Commit, which validates the transition, recomputes the content hash and
// appends to the hash-chained history in one optimistic write.
type Service struct {
	store      ports.UOWStore
	locks      *keyedLocks
	locker     ports.DistributedLocker
	lockTTL    time.Duration
	escalation ports.EscalationSink
	hooks      domain.Hooks
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
}

// Option configures the Service.
type Option func(*Service)

// WithLocker enables distributed locking across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(s *Service) {
		s.locker = locker
	}
}

// WithLockTTL sets the distributed lock expiry.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Service.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithEscalation sets the sink notified on integrity drift.
func WithEscalation(sink ports.EscalationSink) Option {
	return func(s *Service) {
		s.escalation = sink
	}
}

// WithHooks registers observability callbacks.
func WithHooks(h domain.Hooks) Option {
	return func(s *Service) {
		s.hooks = h
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator overrides UUID generation, for tests.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		s.newID = fn
	}
}

// NewService creates a persistence service over store.
func NewService(store ports.UOWStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.locks = newKeyedLocks(s.locker, s.lockTTL, s.logger)
	return s
}

// Store returns the underlying store for read paths.
func (s *Service) Store() ports.UOWStore {
	return s.store
}

// NewUOW describes a unit of work to create.
type NewUOW struct {
	ID         string // generated when empty
	ParentID   *string
	Location   string
	Status     domain.Status // INITIALIZED for roots and CREATED for children when empty
	Attributes map[string]any
	Origin     string
	Rationale  string
}

// Create inserts a unit of work with its first history entry.
func (s *Service) Create(ctx context.Context, req NewUOW) (*domain.UOW, error) {
	u, entry, err := s.build(req)
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, u, entry); err != nil {
		return nil, fmt.Errorf("create %s: %w", u.ID, err)
	}
	s.logger.Debug("Unit of work created", "uow_id", u.ID, "status", u.Status, "location", u.Location)
	s.emitCommit(ctx, nil, u, entry)
	return u.Clone(), nil
}

func (s *Service) build(req NewUOW) (*domain.UOW, *domain.HistoryEntry, error) {
	id := req.ID
	if id == "" {
		id = s.newID()
	}
	status := req.Status.Canonical()
	if status == "" {
		status = domain.StatusInitialized
		if req.ParentID != nil {
			status = domain.StatusCreated
		}
	}
	if status != domain.StatusInitialized && status != domain.StatusCreated {
		return nil, nil, fmt.Errorf("create %s: initial status must be %s or %s, got %s",
			id, domain.StatusInitialized, domain.StatusCreated, status)
	}

	attrs, err := domain.NormalizeAttributes(req.Attributes)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", id, err)
	}
	if attrs == nil {
		attrs = make(map[string]any)
	}
	hash, err := integrity.Hash(attrs)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	u := &domain.UOW{
		ID:            id,
		ParentID:      req.ParentID,
		Status:        status,
		Location:      req.Location,
		Attributes:    attrs,
		ContentHash:   hash,
		Version:       1,
		HistorySeq:    1,
		Origin:        req.Origin,
		LocationSince: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	entry := &domain.HistoryEntry{
		ID:           s.newID(),
		UOWID:        id,
		Seq:          1,
		EventType:    domain.EventCreated,
		NewStatus:    status,
		NewStateHash: hash,
		NewLocation:  req.Location,
		Timestamp:    now,
		Rationale:    req.Rationale,
	}
	return u, entry, nil
}

// Spawn creates children of parentID in CREATED status and raises the parent's
// child count by their number.
func (s *Service) Spawn(ctx context.Context, parentID string, children []NewUOW) ([]*domain.UOW, error) {
	if len(children) == 0 {
		return nil, nil
	}
	var created []*domain.UOW
	err := s.locks.withLock(ctx, parentID, func(ctx context.Context) error {
		parent, err := s.store.Get(ctx, parentID)
		if err != nil {
			return fmt.Errorf("load parent %s: %w", parentID, err)
		}
		if parent.Status.IsFinal() {
			return fmt.Errorf("spawn under %s: parent is %s: %w", parentID, parent.Status, domain.ErrIllegalTransition)
		}

		ids := make([]string, 0, len(children))
		for _, req := range children {
			req.ParentID = domain.StringPtr(parentID)
			req.Status = domain.StatusCreated
			if req.Location == "" {
				req.Location = parent.Location
			}
			child, err := s.Create(ctx, req)
			if err != nil {
				return err
			}
			created = append(created, child)
			ids = append(ids, child.ID)
		}

		next := parent.Clone()
		next.ChildCount += len(created)
		_, err = s.write(ctx, parent, next, writeOpts{
			event:     domain.EventUpdate,
			force:     true,
			rationale: fmt.Sprintf("spawned %d children", len(created)),
			metadata:  map[string]any{"children": ids},
		})
		return err
	})
	return created, err
}

// CommitRequest describes one state change.
type CommitRequest struct {
	UOWID string

	// ExpectedVersion, when non-zero, must equal the stored version.
	ExpectedVersion int64
	// ExpectedWorkerID, when set, must hold the ACTIVE lock on the unit of work.
	ExpectedWorkerID string

	NewStatus   domain.Status // unchanged when empty
	NewLocation string        // unchanged when empty
	// WorkerID takes the lock for this worker. The lock is released whenever
	// the new status is not ACTIVE.
	WorkerID string

	// Attributes are normalized, then merged into the current attributes.
	// A nil value deletes the key.
	Attributes map[string]any

	Rationale string
	Metadata  map[string]any
	// EventType overrides the derived history event type.
	EventType domain.EventType
	// Requeue refreshes LocationSince even if the location is unchanged.
	Requeue bool
	// ForceHistory appends a history entry even if nothing hashed changed.
	ForceHistory bool
}

// Commit applies req atomically. Illegal transitions are rejected without any
// write and leave an audit trace. Stale writers get domain.ErrOwnershipConflict.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*domain.UOW, error) {
	var (
		result     *domain.UOW
		recountFor string
	)
	err := s.locks.withLock(ctx, req.UOWID, func(ctx context.Context) error {
		current, err := s.store.Get(ctx, req.UOWID)
		if err != nil {
			return err
		}

		if req.ExpectedVersion != 0 && current.Version != req.ExpectedVersion {
			return &domain.OwnershipError{
				UOWID:  current.ID,
				Reason: fmt.Sprintf("version %d, expected %d", current.Version, req.ExpectedVersion),
			}
		}
		if req.ExpectedWorkerID != "" && !holds(current, req.ExpectedWorkerID) {
			return &domain.OwnershipError{UOWID: current.ID, Reason: req.ExpectedWorkerID + " does not hold the lock"}
		}

		if err := s.checkIntegrity(ctx, current); err != nil {
			return err
		}

		target := req.NewStatus.Canonical()
		if target == "" {
			target = current.Status
		}
		if target != current.Status {
			if err := domain.ValidateTransition(current.Status, target); err != nil {
				s.reject(ctx, current, target, actor(req, current), err, req.Metadata)
				return err
			}
		}

		next := current.Clone()
		next.Status = target
		if req.NewLocation != "" {
			next.Location = req.NewLocation
		}
		patch, err := domain.NormalizeAttributes(req.Attributes)
		if err != nil {
			return fmt.Errorf("commit %s: %w", current.ID, err)
		}
		next.Attributes = merge(next.Attributes, patch)
		if req.WorkerID != "" {
			next.WorkerID = req.WorkerID
			hb := s.now()
			next.LastHeartbeat = &hb
		}
		if target != domain.StatusActive {
			next.WorkerID = ""
			next.LastHeartbeat = nil
		} else if next.WorkerID == "" {
			err := fmt.Errorf("%s without a worker: %w", target, domain.ErrIllegalTransition)
			s.reject(ctx, current, target, "", err, req.Metadata)
			return err
		}

		result, err = s.write(ctx, current, next, writeOpts{
			event:     req.EventType,
			force:     req.ForceHistory,
			requeue:   req.Requeue,
			rationale: req.Rationale,
			metadata:  req.Metadata,
			worker:    actor(req, current),
		})
		if err != nil {
			return err
		}
		if result.ParentID != nil && current.Status.IsTerminal() != result.Status.IsTerminal() {
			recountFor = *result.ParentID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if recountFor != "" {
		if err := s.RecountChildren(ctx, recountFor); err != nil {
			s.logger.Warn("Child accounting deferred", "parent_id", recountFor, "err", err)
		}
	}
	return result, nil
}

type writeOpts struct {
	event     domain.EventType
	force     bool
	requeue   bool
	rationale string
	metadata  map[string]any
	worker    string
}

// write stores next over current with a version check, appending a history
// entry when status, location or content hash changed.
func (s *Service) write(ctx context.Context, current, next *domain.UOW, o writeOpts) (*domain.UOW, error) {
	hash, err := integrity.Hash(next.Attributes)
	if err != nil {
		return nil, err
	}
	now := s.now()
	next.ContentHash = hash
	next.Version = current.Version + 1
	next.UpdatedAt = now
	if next.Location != current.Location || o.requeue {
		next.LocationSince = now
	}

	statusChanged := next.Status != current.Status
	locationChanged := next.Location != current.Location
	hashChanged := hash != current.ContentHash

	var entry *domain.HistoryEntry
	if statusChanged || locationChanged || hashChanged || o.force || o.requeue {
		next.HistorySeq = current.HistorySeq + 1

		event := o.event
		if event == "" {
			event = deriveEvent(current, next)
		}

		metadata := domain.CloneAttributes(o.metadata)
		if delta := domain.AttributeDelta(current.Attributes, next.Attributes); len(delta) > 0 {
			if metadata == nil {
				metadata = make(map[string]any)
			}
			metadata["changed_attributes"] = domain.ChangedKeys(delta)
		}

		var prev *string
		if current.ContentHash != "" {
			prev = domain.StringPtr(current.ContentHash)
		}
		var worker *string
		if o.worker != "" {
			worker = domain.StringPtr(o.worker)
		}

		entry = &domain.HistoryEntry{
			ID:                s.newID(),
			UOWID:             next.ID,
			Seq:               next.HistorySeq,
			EventType:         event,
			PreviousStatus:    current.Status,
			NewStatus:         next.Status,
			PreviousStateHash: prev,
			NewStateHash:      hash,
			PreviousLocation:  current.Location,
			NewLocation:       next.Location,
			WorkerID:          worker,
			Timestamp:         now,
			Rationale:         o.rationale,
			Metadata:          metadata,
		}
	}

	if err := s.store.Update(ctx, next, current.Version, entry); err != nil {
		if errors.Is(err, domain.ErrVersionConflict) {
			return nil, &domain.OwnershipError{UOWID: current.ID, Reason: "concurrent write"}
		}
		return nil, fmt.Errorf("update %s: %w", current.ID, err)
	}

	if entry != nil {
		s.logger.Debug("Committed",
			"uow_id", next.ID,
			"event", entry.EventType,
			"from", current.Status,
			"to", next.Status,
			"location", next.Location,
			"seq", entry.Seq,
		)
	}
	s.emitCommit(ctx, current, next, entry)
	return next.Clone(), nil
}

func deriveEvent(current, next *domain.UOW) domain.EventType {
	switch {
	case next.Location != current.Location && current.Status == domain.StatusActive && next.Status == domain.StatusPending:
		return domain.EventHandoff
	case next.Status != current.Status:
		return domain.EventTransition
	case next.Location != current.Location:
		return domain.EventHandoff
	default:
		return domain.EventUpdate
	}
}

func holds(u *domain.UOW, workerID string) bool {
	return u.Status.Canonical() == domain.StatusActive && u.WorkerID == workerID
}

func actor(req CommitRequest, current *domain.UOW) string {
	switch {
	case req.WorkerID != "":
		return req.WorkerID
	case req.ExpectedWorkerID != "":
		return req.ExpectedWorkerID
	default:
		return current.WorkerID
	}
}

func merge(base, patch map[string]any) map[string]any {
	if base == nil {
		base = make(map[string]any)
	}
	for k, v := range patch {
		if v == nil {
			delete(base, k)
			continue
		}
		base[k] = v
	}
	return base
}

// Heartbeat refreshes the liveness timestamp of an ACTIVE unit of work held by workerID.
// Heartbeats are not recorded in the history.
func (s *Service) Heartbeat(ctx context.Context, uowID, workerID string) (*domain.UOW, error) {
	var result *domain.UOW
	err := s.locks.withLock(ctx, uowID, func(ctx context.Context) error {
		current, err := s.store.Get(ctx, uowID)
		if err != nil {
			return err
		}
		if !holds(current, workerID) {
			return &domain.OwnershipError{UOWID: uowID, Reason: workerID + " does not hold the lock"}
		}
		next := current.Clone()
		hb := s.now()
		next.LastHeartbeat = &hb
		next.UpdatedAt = hb
		next.Version = current.Version + 1
		if err := s.store.Update(ctx, next, current.Version, nil); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				return &domain.OwnershipError{UOWID: uowID, Reason: "concurrent write"}
			}
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result.Clone(), nil
}

// Claim locks the oldest PENDING unit of work at any of locations for workerID.
// Candidates that are taken concurrently are skipped. Returns domain.ErrNoWork
// when nothing could be claimed.
func (s *Service) Claim(ctx context.Context, workerID string, locations ...string) (*domain.UOW, error) {
	var candidates []*domain.UOW
	for _, loc := range locations {
		pending, err := s.store.ListByStatus(ctx, domain.StatusPending, loc)
		if err != nil {
			return nil, fmt.Errorf("list pending at %s: %w", loc, err)
		}
		candidates = append(candidates, pending...)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].LocationSince.Before(candidates[j].LocationSince)
	})

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		u, err := s.Commit(ctx, CommitRequest{
			UOWID:           c.ID,
			ExpectedVersion: c.Version,
			NewStatus:       domain.StatusActive,
			WorkerID:        workerID,
			Rationale:       "claimed by " + workerID,
		})
		switch {
		case err == nil:
			return u, nil
		case errors.Is(err, domain.ErrOwnershipConflict), errors.Is(err, domain.ErrIllegalTransition):
			continue
		case errors.Is(err, domain.ErrIntegrityDrift):
			// Drifted tokens are quarantined for operators; keep looking.
			continue
		default:
			return nil, err
		}
	}
	return nil, domain.ErrNoWork
}

// RecountChildren recomputes a parent's finished child count from its
// children. The count never exceeds the recorded child count.
func (s *Service) RecountChildren(ctx context.Context, parentID string) error {
	return s.locks.withLock(ctx, parentID, func(ctx context.Context) error {
		parent, err := s.store.Get(ctx, parentID)
		if err != nil {
			return err
		}
		children, err := s.store.ListChildren(ctx, parentID)
		if err != nil {
			return err
		}
		finished := 0
		for _, c := range children {
			if c.Status.IsTerminal() {
				finished++
			}
		}
		if finished > parent.ChildCount {
			finished = parent.ChildCount
		}
		if finished == parent.FinishedChildCount {
			return nil
		}
		next := parent.Clone()
		next.FinishedChildCount = finished
		next.UpdatedAt = s.now()
		next.Version = parent.Version + 1
		if err := s.store.Update(ctx, next, parent.Version, nil); err != nil {
			return fmt.Errorf("update child count of %s: %w", parentID, err)
		}
		return nil
	})
}

// Get returns a unit of work.
func (s *Service) Get(ctx context.Context, id string) (*domain.UOW, error) {
	return s.store.Get(ctx, id)
}

// History returns the hash-chained history of a unit of work.
func (s *Service) History(ctx context.Context, id string) ([]domain.HistoryEntry, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id)
}

// Audit returns the audit trail of a unit of work.
func (s *Service) Audit(ctx context.Context, id string) ([]domain.AuditEntry, error) {
	return s.store.Audit(ctx, id)
}

// VerifyIntegrity recomputes the content hash of a unit of work. Drift is
// recorded in the audit trail and escalated, never repaired.
func (s *Service) VerifyIntegrity(ctx context.Context, id string) (integrity.Result, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return integrity.Result{}, err
	}
	res, err := integrity.Verify(u)
	if err != nil {
		return res, err
	}
	if !res.IsValid {
		s.reportDrift(ctx, u, res)
	}
	return res, nil
}

// ChainReport is the outcome of VerifyChain.
type ChainReport struct {
	UOWID       string                 `json:"uow_id"`
	Entries     int                    `json:"entries"`
	Breaks      []integrity.ChainBreak `json:"breaks,omitempty"`
	HeadMatches bool                   `json:"head_matches"`
}

// Valid reports whether the chain is unbroken and ends at the current hash.
func (r ChainReport) Valid() bool {
	return len(r.Breaks) == 0 && r.HeadMatches
}

// VerifyChain checks the history hash chain of a unit of work and that its
// last entry matches the stored content hash.
func (s *Service) VerifyChain(ctx context.Context, id string) (ChainReport, error) {
	u, err := s.store.Get(ctx, id)
	if err != nil {
		return ChainReport{}, err
	}
	entries, err := s.store.History(ctx, id)
	if err != nil {
		return ChainReport{}, err
	}
	report := ChainReport{
		UOWID:   id,
		Entries: len(entries),
		Breaks:  integrity.VerifyChain(entries),
	}
	if n := len(entries); n > 0 {
		report.HeadMatches = entries[n-1].NewStateHash == u.ContentHash
	}
	return report, nil
}

func (s *Service) checkIntegrity(ctx context.Context, u *domain.UOW) error {
	res, err := integrity.Verify(u)
	if err != nil {
		return err
	}
	if res.IsValid {
		return nil
	}
	s.reportDrift(ctx, u, res)
	return &integrity.DriftError{Result: res}
}

func (s *Service) reportDrift(ctx context.Context, u *domain.UOW, res integrity.Result) {
	now := s.now()
	s.logger.Error("Integrity drift detected",
		"uow_id", u.ID,
		"stored", res.StoredHash,
		"computed", res.CurrentHash,
	)
	details := map[string]any{"stored_hash": res.StoredHash, "current_hash": res.CurrentHash}
	if err := s.store.AppendAudit(ctx, domain.AuditEntry{
		ID:        s.newID(),
		UOWID:     u.ID,
		EventType: domain.EventIntegrityDrift,
		Status:    u.Status,
		Timestamp: now,
		Reason:    "stored content hash does not match attributes",
		Metadata:  details,
	}); err != nil {
		s.logger.Error("Failed to audit integrity drift", "uow_id", u.ID, "err", err)
	}
	s.escalate(ctx, domain.Escalation{
		Kind:      domain.EscalationIntegrityDrift,
		UOWID:     u.ID,
		Severity:  domain.SeverityCritical,
		Message:   "content hash mismatch",
		Details:   details,
		Timestamp: now,
	})
}

func (s *Service) reject(ctx context.Context, u *domain.UOW, requested domain.Status, worker string, cause error, metadata map[string]any) {
	var w *string
	if worker != "" {
		w = domain.StringPtr(worker)
	}
	err := s.store.AppendAudit(ctx, domain.AuditEntry{
		ID:        s.newID(),
		UOWID:     u.ID,
		EventType: domain.EventRejectedTransition,
		Status:    u.Status,
		Requested: requested,
		WorkerID:  w,
		Timestamp: s.now(),
		Reason:    cause.Error(),
		Metadata:  domain.CloneAttributes(metadata),
	})
	if err != nil {
		s.logger.Error("Failed to audit rejected transition", "uow_id", u.ID, "err", err)
	}
	s.logger.Warn("Transition rejected", "uow_id", u.ID, "from", u.Status, "to", requested)
}

func (s *Service) escalate(ctx context.Context, e domain.Escalation) {
	if s.escalation == nil {
		return
	}
	if err := s.escalation.Escalate(ctx, e); err != nil {
		s.logger.Error("Escalation failed", "kind", e.Kind, "uow_id", e.UOWID, "err", err)
	}
}

func (s *Service) emitCommit(ctx context.Context, prev, u *domain.UOW, entry *domain.HistoryEntry) {
	if s.hooks.OnCommit == nil {
		return
	}
	e := &domain.CommitEvent{Timestamp: s.now(), UOW: u.Clone(), Entry: entry}
	if prev != nil {
		e.Previous = prev.Clone()
	}
	s.hooks.OnCommit(ctx, e)
}
