package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/logging"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
)

// Head names one of the three synchronization checks.
type Head string

const (
	HeadBase   Head = "base"
	HeadChild  Head = "child"
	HeadStatus Head = "status"
)

// DefaultSyncEscalationThreshold is how long a parent may wait on its children
// before the block is escalated.
const DefaultSyncEscalationThreshold = 30 * time.Minute

// SyncResult is the outcome of one synchronization check.
type SyncResult struct {
	ParentID           string     `json:"parent_id"`
	Passed             bool       `json:"passed"`
	FailedHead         Head       `json:"failed_head,omitempty"`
	ChildCount         int        `json:"child_count"`
	FinishedChildCount int        `json:"finished_child_count"`
	Pending            []string   `json:"pending,omitempty"`
	BlockedSince       *time.Time `json:"blocked_since,omitempty"`
}

// Cerberus gates finalization of a parent on the return of all its children.
// Counts are recomputed by live query on every check.
type Cerberus struct {
	store      ports.UOWStore
	threshold  time.Duration
	escalation ports.EscalationSink
	hooks      domain.Hooks
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.Mutex
	blocked   map[string]time.Time
	escalated map[string]bool
}

// CerberusOption configures a Cerberus.
type CerberusOption func(*Cerberus)

// WithSyncThreshold sets how long a parent may stay blocked before escalation.
func WithSyncThreshold(d time.Duration) CerberusOption {
	return func(c *Cerberus) {
		c.threshold = d
	}
}

// WithSyncEscalation sets the sink notified when a parent stays blocked too long.
func WithSyncEscalation(sink ports.EscalationSink) CerberusOption {
	return func(c *Cerberus) {
		c.escalation = sink
	}
}

// WithSyncHooks registers observability callbacks.
func WithSyncHooks(h domain.Hooks) CerberusOption {
	return func(c *Cerberus) {
		c.hooks = h
	}
}

// WithSyncLogger configures a logger.
func WithSyncLogger(logger *slog.Logger) CerberusOption {
	return func(c *Cerberus) {
		c.logger = logger
	}
}

// WithSyncClock overrides time.Now, for tests.
func WithSyncClock(now func() time.Time) CerberusOption {
	return func(c *Cerberus) {
		c.now = now
	}
}

// NewCerberus creates a synchronization guard reading from store.
func NewCerberus(store ports.UOWStore, opts ...CerberusOption) *Cerberus {
	c := &Cerberus{
		store:     store,
		threshold: DefaultSyncEscalationThreshold,
		logger:    logging.NewNop(),
		now:       time.Now,
		blocked:   make(map[string]time.Time),
		escalated: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check runs the base, child and status heads against parentID.
// A failing check returns the result and a *SyncError matching
// domain.ErrSynchronizationIncomplete.
func (c *Cerberus) Check(ctx context.Context, parentID string) (SyncResult, error) {
	res := SyncResult{ParentID: parentID}

	parent, err := c.store.Get(ctx, parentID)
	if err != nil {
		if !errors.Is(err, domain.ErrUOWNotFound) {
			return res, fmt.Errorf("load parent %s: %w", parentID, err)
		}
		res.FailedHead = HeadBase
		return c.fail(ctx, res, err)
	}
	res.ChildCount = parent.ChildCount

	// Base head.
	if parent.ID == "" || parent.Attributes == nil {
		res.FailedHead = HeadBase
		return c.fail(ctx, res, nil)
	}

	children, err := c.store.ListChildren(ctx, parentID)
	if err != nil {
		return res, fmt.Errorf("list children of %s: %w", parentID, err)
	}
	for _, child := range children {
		if child.Status.IsTerminal() {
			res.FinishedChildCount++
		} else {
			res.Pending = append(res.Pending, child.ID)
		}
	}

	// Child head.
	if res.FinishedChildCount != parent.ChildCount {
		res.FailedHead = HeadChild
		return c.fail(ctx, res, nil)
	}

	// Status head.
	if !parent.Status.IsTerminal() || len(res.Pending) > 0 {
		res.FailedHead = HeadStatus
		return c.fail(ctx, res, nil)
	}

	res.Passed = true
	c.mu.Lock()
	delete(c.blocked, parentID)
	delete(c.escalated, parentID)
	c.mu.Unlock()

	c.emit(ctx, res)
	return res, nil
}

func (c *Cerberus) fail(ctx context.Context, res SyncResult, cause error) (SyncResult, error) {
	now := c.now()

	c.mu.Lock()
	since, ok := c.blocked[res.ParentID]
	if !ok {
		since = now
		c.blocked[res.ParentID] = since
	}
	overdue := c.threshold > 0 && now.Sub(since) >= c.threshold && !c.escalated[res.ParentID]
	if overdue {
		c.escalated[res.ParentID] = true
	}
	c.mu.Unlock()

	res.BlockedSince = &since
	c.logger.Debug("Synchronization incomplete",
		"parent_id", res.ParentID,
		"head", res.FailedHead,
		"child_count", res.ChildCount,
		"finished", res.FinishedChildCount,
	)
	if overdue {
		c.escalate(ctx, res, now.Sub(since))
	}
	c.emit(ctx, res)
	return res, &SyncError{Result: res, Err: cause}
}

func (c *Cerberus) escalate(ctx context.Context, res SyncResult, waited time.Duration) {
	c.logger.Warn("Synchronization blocked past threshold",
		"parent_id", res.ParentID,
		"head", res.FailedHead,
		"waited", waited,
	)
	if c.escalation == nil {
		return
	}
	err := c.escalation.Escalate(ctx, domain.Escalation{
		Kind:      domain.EscalationSyncBlocked,
		UOWID:     res.ParentID,
		Severity:  domain.SeverityWarning,
		Message:   fmt.Sprintf("parent blocked on %s head for %s", res.FailedHead, waited.Round(time.Second)),
		Timestamp: c.now(),
		Details: map[string]any{
			"head":                 string(res.FailedHead),
			"child_count":          res.ChildCount,
			"finished_child_count": res.FinishedChildCount,
			"pending":              res.Pending,
		},
	})
	if err != nil {
		c.logger.Error("Escalation failed", "parent_id", res.ParentID, "err", err)
	}
}

func (c *Cerberus) emit(ctx context.Context, res SyncResult) {
	if c.hooks.OnSync == nil {
		return
	}
	c.hooks.OnSync(ctx, &domain.SyncEvent{
		Timestamp:  c.now(),
		ParentID:   res.ParentID,
		Passed:     res.Passed,
		FailedHead: string(res.FailedHead),
	})
}

// Blocked returns the parents currently waiting and since when.
func (c *Cerberus) Blocked() map[string]time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]time.Time, len(c.blocked))
	for id, since := range c.blocked {
		out[id] = since
	}
	return out
}

// Forget drops blocked-since tracking for a parent that left the wait state
// by other means.
func (c *Cerberus) Forget(parentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.blocked, parentID)
	delete(c.escalated, parentID)
}
