package domain

import "time"

// EscalationKind classifies an escalation.
type EscalationKind string

const (
	EscalationPolicyExhausted EscalationKind = "policy_exhausted"
	EscalationIntegrityDrift  EscalationKind = "integrity_drift"
	EscalationSyncBlocked     EscalationKind = "sync_blocked"
	EscalationQueueTimeout    EscalationKind = "queue_timeout"
	EscalationWorkerFailure   EscalationKind = "worker_failure"
)

// Severity of an escalation.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Escalation is a notification that a unit of work needs operator attention.
type Escalation struct {
	Kind      EscalationKind `json:"kind"`
	UOWID     string         `json:"uow_id"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
