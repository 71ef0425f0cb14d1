package dsl

import (
	"errors"
	"fmt"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/guard"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/schema"
)

// Builder manages the workflow construction.
type Builder struct {
	name      string
	order     []string
	locations map[string]*LocationBuilder
	variables []string
}

// New creates a new workflow builder.
func New(name string) *Builder {
	return &Builder{
		name:      name,
		locations: make(map[string]*LocationBuilder),
	}
}

// Variables restricts the names conditions may reference. Without it any
// name is accepted.
func (b *Builder) Variables(names ...string) *Builder {
	b.variables = append(b.variables, names...)
	return b
}

// Add creates a new location in the workflow.
// If the location already exists, it returns the existing builder.
func (b *Builder) Add(id string) *LocationBuilder {
	if lb, ok := b.locations[id]; ok {
		return lb
	}
	lb := &LocationBuilder{location: domain.Location{ID: id}}
	b.locations[id] = lb
	b.order = append(b.order, id)
	return lb
}

// Build validates every policy and destination and returns the workflow with
// locations in declaration order.
func (b *Builder) Build() (*domain.Workflow, error) {
	var allowed map[string]bool
	if len(b.variables) > 0 {
		allowed = guard.AllowedVariables(b.variables...)
	}

	wf := &domain.Workflow{Name: b.name, Locations: make([]domain.Location, 0, len(b.order))}
	var errs []error
	if b.name == "" {
		errs = append(errs, errors.New("workflow name is required"))
	}
	for _, id := range b.order {
		loc := b.locations[id].Build()
		if loc.Role == "" {
			errs = append(errs, fmt.Errorf("location %q has no role", id))
		}
		if _, err := schema.ParseTypeMap(loc.Requires); err != nil {
			errs = append(errs, fmt.Errorf("location %q requires: %w", id, err))
		}
		if loc.Policy == nil {
			if !loc.Terminal {
				errs = append(errs, fmt.Errorf("location %q needs a routing policy", id))
			}
		} else {
			if err := guard.ValidatePolicy(loc.Policy, allowed, nil); err != nil {
				errs = append(errs, fmt.Errorf("location %q: %w", id, err))
			}
			for i, br := range loc.Policy.Branches {
				if _, ok := b.locations[br.Destination]; !ok {
					errs = append(errs, fmt.Errorf("location %q branch %d: unknown destination %q", id, i, br.Destination))
				}
			}
		}
		wf.Locations = append(wf.Locations, loc)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("failed to build workflow %q: %w", b.name, err)
	}
	return wf, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *domain.Workflow {
	wf, err := b.Build()
	if err != nil {
		panic(err)
	}
	return wf
}
