package domain

import "strings"

// Status is the lifecycle status of a unit of work.
type Status string

const (
	StatusInitialized Status = "INITIALIZED" // Created by an origin stage, not yet queued
	StatusCreated     Status = "CREATED"     // Child born from decomposition of a parent
	StatusPending     Status = "PENDING"     // Queued and visible to workers
	StatusActive      Status = "ACTIVE"      // Locked by a worker
	StatusCompleted   Status = "COMPLETED"   // Worker success
	StatusFailed      Status = "FAILED"      // Worker error or guard rejection
	StatusRemediated  Status = "REMEDIATED"  // Fixed by error handling, ready to rejoin the flow
	StatusTimeout     Status = "TIMEOUT"     // Sat in a queue past its threshold
	StatusFinalized   Status = "FINALIZED"   // Terminal success
	StatusArchived    Status = "ARCHIVED"    // Terminal, post-cleanup
)

// StatusInProgress is accepted on input as an alias of StatusActive.
const StatusInProgress Status = "IN_PROGRESS"

// AllStatuses lists every canonical status.
var AllStatuses = []Status{
	StatusInitialized,
	StatusCreated,
	StatusPending,
	StatusActive,
	StatusCompleted,
	StatusFailed,
	StatusRemediated,
	StatusTimeout,
	StatusFinalized,
	StatusArchived,
}

// transitions is the authoritative table of legal moves.
var transitions = map[Status][]Status{
	StatusInitialized: {StatusPending},
	StatusCreated:     {StatusPending},
	StatusPending:     {StatusActive, StatusTimeout},
	StatusActive:      {StatusCompleted, StatusFailed, StatusPending},
	StatusFailed:      {StatusActive, StatusFinalized},
	StatusRemediated:  {StatusPending},
	StatusTimeout:     {StatusFailed},
	StatusCompleted:   {StatusFinalized},
	StatusFinalized:   {StatusArchived},
}

// ParseStatus normalizes a status string. IN_PROGRESS maps to ACTIVE.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if st == StatusInProgress {
		return StatusActive, true
	}
	for _, known := range AllStatuses {
		if st == known {
			return st, true
		}
	}
	return "", false
}

// Canonical returns the canonical spelling of s.
func (s Status) Canonical() Status {
	if s == StatusInProgress {
		return StatusActive
	}
	return s
}

// IsTerminal reports whether a unit of work in this status counts as returned
// for synchronization purposes.
func (s Status) IsTerminal() bool {
	switch s.Canonical() {
	case StatusCompleted, StatusFinalized:
		return true
	}
	return false
}

// IsFinal reports whether no further work can ever happen in this status.
func (s Status) IsFinal() bool {
	switch s.Canonical() {
	case StatusFinalized, StatusArchived:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal move.
func CanTransition(from, to Status) bool {
	from, to = from.Canonical(), to.Canonical()
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns an *IllegalTransitionError when from -> to is not allowed.
func ValidateTransition(from, to Status) error {
	if CanTransition(from, to) {
		return nil
	}
	return &IllegalTransitionError{From: from.Canonical(), To: to.Canonical()}
}

// NextStatuses returns the statuses reachable from s in one move.
func NextStatuses(s Status) []Status {
	next := transitions[s.Canonical()]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}
