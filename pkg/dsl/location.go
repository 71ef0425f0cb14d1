package dsl

import "github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"

// LocationBuilder provides a fluent API for configuring a location.
type LocationBuilder struct {
	location domain.Location
}

// Role sets the worker role that claims tokens here.
func (l *LocationBuilder) Role(role string) *LocationBuilder {
	l.location.Role = role
	return l
}

// Policy names the routing policy. Branch, Go and Error create it on demand.
func (l *LocationBuilder) Policy(name string) *LocationBuilder {
	l.policy().Name = name
	return l
}

// Branch adds a conditional branch to the target location.
func (l *LocationBuilder) Branch(condition string, target string) *LocationBuilder {
	return l.add(domain.Branch{Condition: condition, Destination: target})
}

// Go adds the default branch, taken when no condition matched.
func (l *LocationBuilder) Go(target string) *LocationBuilder {
	return l.add(domain.Branch{Default: true, Destination: target})
}

// Error adds the branch taken when a condition cannot be evaluated.
func (l *LocationBuilder) Error(target string) *LocationBuilder {
	return l.add(domain.Branch{OnError: true, Destination: target})
}

// Action labels the most recently added branch.
func (l *LocationBuilder) Action(label string) *LocationBuilder {
	if p := l.location.Policy; p != nil && len(p.Branches) > 0 {
		p.Branches[len(p.Branches)-1].Action = label
	}
	return l
}

// Requires declares an attribute a submission from here must carry, as a
// type string such as "bool", "[string]" or "int?".
func (l *LocationBuilder) Requires(attribute, typ string) *LocationBuilder {
	if l.location.Requires == nil {
		l.location.Requires = make(map[string]string)
	}
	l.location.Requires[attribute] = typ
	return l
}

// Terminal marks the location as the end of the flow and drops any policy.
func (l *LocationBuilder) Terminal() *LocationBuilder {
	l.location.Terminal = true
	l.location.Policy = nil
	return l
}

// Build returns a copy of the underlying domain.Location.
// This is primarily used by the Builder, but exposed for advanced usage.
func (l *LocationBuilder) Build() domain.Location {
	loc := l.location
	if l.location.Requires != nil {
		loc.Requires = make(map[string]string, len(l.location.Requires))
		for k, v := range l.location.Requires {
			loc.Requires[k] = v
		}
	}
	if l.location.Policy != nil {
		p := *l.location.Policy
		p.Branches = append([]domain.Branch(nil), p.Branches...)
		loc.Policy = &p
	}
	return loc
}

func (l *LocationBuilder) policy() *domain.RoutingPolicy {
	if l.location.Policy == nil {
		l.location.Policy = &domain.RoutingPolicy{Name: l.location.ID}
	}
	return l.location.Policy
}

func (l *LocationBuilder) add(b domain.Branch) *LocationBuilder {
	p := l.policy()
	p.Branches = append(p.Branches, b)
	return l
}
