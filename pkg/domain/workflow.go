package domain

import "fmt"

// Location is a named holding area where units of work wait between stages.
type Location struct {
	ID   string `json:"id" yaml:"id" mapstructure:"id"`
	Role string `json:"role" yaml:"role" mapstructure:"role"`
	// Terminal marks the finalization stage. Tokens routed here complete.
	Terminal bool `json:"terminal,omitempty" yaml:"terminal,omitempty" mapstructure:"terminal"`
	// Policy decides where a token goes after a worker submits it here.
	Policy *RoutingPolicy `json:"policy,omitempty" yaml:"policy,omitempty" mapstructure:"policy"`
	// Requires maps attribute names to type strings (e.g. "bool", "[string]", "int?")
	// that a submission from this location must satisfy.
	Requires map[string]string `json:"requires,omitempty" yaml:"requires,omitempty" mapstructure:"requires"`
}

// Workflow is the read-only graph of locations a deployment runs.
type Workflow struct {
	Name      string     `json:"name" yaml:"name" mapstructure:"name"`
	Locations []Location `json:"locations" yaml:"locations" mapstructure:"locations"`
}

// Location looks up a location by id.
func (w *Workflow) Location(id string) (*Location, error) {
	for i := range w.Locations {
		if w.Locations[i].ID == id {
			return &w.Locations[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownLocation, id)
}

// LocationsForRole returns the ids of locations served by a role.
func (w *Workflow) LocationsForRole(role string) []string {
	var ids []string
	for _, l := range w.Locations {
		if l.Role == role {
			ids = append(ids, l.ID)
		}
	}
	return ids
}
