package shadowlog

import (
	"log/slog"
	"sync"
	"time"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/internal/logging"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
)

// Kind classifies a captured failure.
type Kind string

const (
	KindSyntax          Kind = "syntax"
	KindEvaluation      Kind = "evaluation"
	KindPolicyExhausted Kind = "policy_exhausted"
)

// Entry is one captured evaluation or routing failure with its full context.
type Entry struct {
	Seq         uint64         `json:"seq"`
	Timestamp   time.Time      `json:"timestamp"`
	Kind        Kind           `json:"kind"`
	UOWID       string         `json:"uow_id"`
	Policy      string         `json:"policy,omitempty"`
	BranchIndex int            `json:"branch_index"`
	Expression  string         `json:"expression,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	Error       string         `json:"error"`
}

// Filter selects entries in Query. Zero fields match everything.
type Filter struct {
	UOWID      string
	Policy     string
	Expression string
	Kind       Kind
	Since      time.Time
	Limit      int
}

func (f Filter) match(e *Entry) bool {
	if f.UOWID != "" && e.UOWID != f.UOWID {
		return false
	}
	if f.Policy != "" && e.Policy != f.Policy {
		return false
	}
	if f.Expression != "" && e.Expression != f.Expression {
		return false
	}
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// Log is a bounded ring buffer of failures. When full, the oldest entry is
// overwritten. Safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	buf     []Entry
	next    int
	full    bool
	seq     uint64
	dropped uint64

	logger   *slog.Logger
	observer func(Entry)
	now      func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithLogger mirrors every recorded entry to logger at warn level.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// WithObserver registers a callback invoked after each Record, outside the lock.
func WithObserver(fn func(Entry)) Option {
	return func(l *Log) {
		l.observer = fn
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1024

// New creates a log holding at most capacity entries.
func New(capacity int, opts ...Option) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l := &Log{
		buf:    make([]Entry, capacity),
		logger: logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record stores a copy of e, stamping its sequence number and time.
func (l *Log) Record(e Entry) Entry {
	e.Context = domain.CloneAttributes(e.Context)
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}

	l.mu.Lock()
	l.seq++
	e.Seq = l.seq
	if l.full {
		l.dropped++
	}
	l.buf[l.next] = e
	l.next = (l.next + 1) % len(l.buf)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()

	l.logger.Warn("Routing failure captured",
		"kind", e.Kind,
		"uow_id", e.UOWID,
		"policy", e.Policy,
		"branch", e.BranchIndex,
		"expression", e.Expression,
		"err", e.Error,
	)
	if l.observer != nil {
		l.observer(e)
	}
	return e
}

// Entries returns all retained entries, oldest first.
func (l *Log) Entries() []Entry {
	return l.Query(Filter{})
}

// Query returns retained entries matching f, oldest first.
// With f.Limit > 0 only the newest Limit matches are returned.
func (l *Log) Query(f Filter) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	l.each(func(e *Entry) {
		if f.match(e) {
			c := *e
			c.Context = domain.CloneAttributes(e.Context)
			out = append(out, c)
		}
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

func (l *Log) each(fn func(*Entry)) {
	if l.full {
		for i := l.next; i < len(l.buf); i++ {
			fn(&l.buf[i])
		}
	}
	for i := 0; i < l.next; i++ {
		fn(&l.buf[i])
	}
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.full {
		return len(l.buf)
	}
	return l.next
}

// Capacity returns the maximum number of retained entries.
func (l *Log) Capacity() int {
	return len(l.buf)
}

// Dropped returns how many entries were overwritten.
func (l *Log) Dropped() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dropped
}

// Clear discards all entries. Sequence numbers keep increasing.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = make([]Entry, len(l.buf))
	l.next = 0
	l.full = false
}
