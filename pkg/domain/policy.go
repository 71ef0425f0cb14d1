package domain

// BranchKind tells the routing guard how to treat a branch.
type BranchKind string

const (
	BranchCondition BranchKind = "condition"
	BranchDefault   BranchKind = "default"
	BranchOnError   BranchKind = "on_error"
)

// Branch is one entry of a routing policy.
type Branch struct {
	Condition   string `json:"condition,omitempty" yaml:"condition,omitempty" mapstructure:"condition"`
	Destination string `json:"destination" yaml:"destination" mapstructure:"destination"`
	Default     bool   `json:"default,omitempty" yaml:"default,omitempty" mapstructure:"default"`
	OnError     bool   `json:"on_error,omitempty" yaml:"on_error,omitempty" mapstructure:"on_error"`
	// Action is an opaque label handed back with the decision (e.g. "escalate").
	Action string `json:"action,omitempty" yaml:"action,omitempty" mapstructure:"action"`
}

// Kind returns how the branch participates in evaluation.
func (b Branch) Kind() BranchKind {
	switch {
	case b.OnError:
		return BranchOnError
	case b.Default:
		return BranchDefault
	default:
		return BranchCondition
	}
}

// RoutingPolicy is an ordered list of branches. Declaration order is the tie-break.
type RoutingPolicy struct {
	Name     string   `json:"name" yaml:"name" mapstructure:"name"`
	Branches []Branch `json:"branches" yaml:"branches" mapstructure:"branches"`
}
