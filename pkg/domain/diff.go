package domain

import (
	"reflect"
	"sort"
)

// UOWDiff represents the changes between two snapshots of a unit of work.
type UOWDiff struct {
	ID string `json:"id"`

	Status   *Status `json:"status,omitempty"`
	Location *string `json:"location,omitempty"`

	// Attributes contains only changed, added or deleted keys.
	// For deletions, the key is present with a nil value.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Diff calculates the difference between old and new.
// If old is nil, it returns a diff representing the entire new snapshot.
func Diff(old, new *UOW) *UOWDiff {
	if new == nil {
		return nil
	}

	diff := &UOWDiff{ID: new.ID}

	if old == nil || old.Status != new.Status {
		st := new.Status
		diff.Status = &st
	}
	if old == nil || old.Location != new.Location {
		loc := new.Location
		diff.Location = &loc
	}

	var oldAttrs map[string]any
	if old != nil {
		oldAttrs = old.Attributes
	}
	diff.Attributes = AttributeDelta(oldAttrs, new.Attributes)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

// AttributeDelta returns added or modified keys with their new value and deleted keys with nil.
func AttributeDelta(old, new map[string]any) map[string]any {
	delta := make(map[string]any)

	for k, newVal := range new {
		oldVal, exists := old[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}
	for k := range old {
		if _, exists := new[k]; !exists {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

// ChangedKeys returns the sorted keys of a delta.
func ChangedKeys(delta map[string]any) []string {
	keys := make([]string, 0, len(delta))
	for k := range delta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *UOWDiff) IsEmpty() bool {
	return d.Status == nil && d.Location == nil && len(d.Attributes) == 0
}
