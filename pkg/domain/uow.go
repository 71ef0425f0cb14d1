package domain

import "time"

// UOW is the unit of work: the token routed through the workflow graph.
type UOW struct {
	ID       string  `json:"id"`
	ParentID *string `json:"parent_id,omitempty"`

	Status   Status `json:"status"`
	Location string `json:"location"`

	// Attributes is the business payload. ContentHash is its digest as of the last commit.
	Attributes  map[string]any `json:"attributes"`
	ContentHash string         `json:"content_hash"`

	// WorkerID is the holder of the lock while ACTIVE.
	WorkerID      string     `json:"worker_id,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`

	ChildCount         int `json:"child_count"`
	FinishedChildCount int `json:"finished_child_count"`

	// Version increases by one on every write and backs optimistic concurrency.
	Version int64 `json:"version"`
	// HistorySeq is the sequence number of the latest history entry.
	HistorySeq int64 `json:"history_seq"`

	// Origin references an external workflow this token was delegated from.
	Origin string `json:"origin,omitempty"`

	LocationSince time.Time `json:"location_since"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IsRoot reports whether the unit of work has no parent.
func (u *UOW) IsRoot() bool {
	return u.ParentID == nil || *u.ParentID == ""
}

// Parent returns the parent id or "" for roots.
func (u *UOW) Parent() string {
	if u.ParentID == nil {
		return ""
	}
	return *u.ParentID
}

// Clone returns a deep copy safe for independent mutation.
func (u *UOW) Clone() *UOW {
	if u == nil {
		return nil
	}
	c := *u
	if u.ParentID != nil {
		p := *u.ParentID
		c.ParentID = &p
	}
	if u.LastHeartbeat != nil {
		hb := *u.LastHeartbeat
		c.LastHeartbeat = &hb
	}
	c.Attributes = CloneAttributes(u.Attributes)
	return &c
}

// CloneAttributes deep-copies nested maps and slices of an attribute set.
func CloneAttributes(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneAttributes(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// StringPtr is a small helper for optional identifiers.
func StringPtr(s string) *string {
	return &s
}
