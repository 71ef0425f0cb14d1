package domain

import (
	"context"
	"time"
)

// CommitEvent is emitted after a transition is durably recorded.
type CommitEvent struct {
	Timestamp time.Time
	Previous  *UOW // nil on creation
	UOW       *UOW
	Entry     *HistoryEntry // nil when the commit did not append history
}

// GuardEvent is emitted for every routing decision and every silent failure.
type GuardEvent struct {
	Timestamp   time.Time
	UOWID       string
	Policy      string
	BranchIndex int
	Destination string
	Reason      string
	Failed      bool
	Err         error
}

// SyncEvent is emitted for every synchronization check.
type SyncEvent struct {
	Timestamp  time.Time
	ParentID   string
	Passed     bool
	FailedHead string
}

// ReclaimEvent is emitted when the liveness sweep forces a transition.
type ReclaimEvent struct {
	Timestamp time.Time
	UOWID     string
	Kind      string // "worker" or "queue"
	From      Status
	To        Status
	WorkerID  string
	Lost      bool // a legitimate commit won the race
}

// Hooks defines callbacks for engine observability.
type Hooks struct {
	OnCommit        func(context.Context, *CommitEvent)
	OnGuardDecision func(context.Context, *GuardEvent)
	OnSync          func(context.Context, *SyncEvent)
	OnReclaim       func(context.Context, *ReclaimEvent)
}

// Merge returns hooks that call h first and then other.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnCommit:        chain(h.OnCommit, other.OnCommit),
		OnGuardDecision: chain(h.OnGuardDecision, other.OnGuardDecision),
		OnSync:          chain(h.OnSync, other.OnSync),
		OnReclaim:       chain(h.OnReclaim, other.OnReclaim),
	}
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
