package domain

import "time"

// EventType classifies history and audit entries.
type EventType string

const (
	EventCreated     EventType = "created"
	EventTransition  EventType = "transition"
	EventHandoff     EventType = "handoff"
	EventUpdate      EventType = "update"
	EventReclamation EventType = "reclamation"
	EventRequeue     EventType = "requeue"
	EventTimeout     EventType = "timeout"

	// Audit-only events. They never join the hash chain.
	EventRejectedTransition EventType = "rejected_transition"
	EventIntegrityDrift     EventType = "integrity_drift"
)

// HistoryEntry is the immutable record of one committed transition.
type HistoryEntry struct {
	ID    string `json:"id"`
	UOWID string `json:"uow_id"`
	// Seq orders entries of one unit of work, starting at 1.
	Seq int64 `json:"seq"`

	EventType EventType `json:"event_type"`

	PreviousStatus Status `json:"previous_status,omitempty"`
	NewStatus      Status `json:"new_status"`

	PreviousStateHash *string `json:"previous_state_hash"`
	NewStateHash      string  `json:"new_state_hash"`

	PreviousLocation string `json:"previous_location,omitempty"`
	NewLocation      string `json:"new_location"`

	WorkerID  *string        `json:"worker_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Rationale string         `json:"rationale,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// AuditEntry records an attempt that did not become part of the history chain,
// such as a rejected transition or a detected integrity drift.
type AuditEntry struct {
	ID        string         `json:"id"`
	UOWID     string         `json:"uow_id"`
	EventType EventType      `json:"event_type"`
	Status    Status         `json:"status"`
	Requested Status         `json:"requested,omitempty"`
	WorkerID  *string        `json:"worker_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Reason    string         `json:"reason"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}
