package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiff(t *testing.T) {
	pending := StatusPending
	queue := "review"

	tests := []struct {
		name     string
		old      *UOW
		new      *UOW
		wantDiff *UOWDiff
	}{
		{
			name: "Initial Load (Old is Nil)",
			old:  nil,
			new: &UOW{
				ID:         "u-1",
				Status:     StatusPending,
				Location:   "review",
				Attributes: map[string]any{"a": 1},
			},
			wantDiff: &UOWDiff{
				ID:         "u-1",
				Status:     &pending,
				Location:   &queue,
				Attributes: map[string]any{"a": 1},
			},
		},
		{
			name:     "No Changes",
			old:      &UOW{ID: "u-1", Status: StatusPending, Location: "review", Attributes: map[string]any{"a": 1}},
			new:      &UOW{ID: "u-1", Status: StatusPending, Location: "review", Attributes: map[string]any{"a": 1}},
			wantDiff: nil,
		},
		{
			name: "Attribute Added, Modified and Deleted",
			old:  &UOW{ID: "u-1", Status: StatusPending, Location: "review", Attributes: map[string]any{"a": 1, "b": 2}},
			new:  &UOW{ID: "u-1", Status: StatusPending, Location: "review", Attributes: map[string]any{"a": 5, "c": 3}},
			wantDiff: &UOWDiff{
				ID:         "u-1",
				Attributes: map[string]any{"a": 5, "b": nil, "c": 3},
			},
		},
		{
			name: "Status Change Only",
			old:  &UOW{ID: "u-1", Status: StatusActive, Location: "review"},
			new:  &UOW{ID: "u-1", Status: StatusPending, Location: "review"},
			wantDiff: &UOWDiff{
				ID:     "u-1",
				Status: &pending,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.old, tt.new)
			assert.Equal(t, tt.wantDiff, got)
		})
	}
}

func TestChangedKeys_Sorted(t *testing.T) {
	keys := ChangedKeys(map[string]any{"zeta": 1, "alpha": nil, "mid": true})
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, keys)
}
