package guard

import (
	"fmt"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/expr"
)

// AllowedVariables builds the permitted-name set for ValidatePolicy from the
// given attribute names plus the reserved evaluation-context names.
func AllowedVariables(attributes ...string) map[string]bool {
	allowed := make(map[string]bool, len(attributes)+len(domain.ReservedVariables))
	for _, name := range attributes {
		allowed[name] = true
	}
	for _, name := range domain.ReservedVariables {
		allowed[name] = true
	}
	return allowed
}

// ValidatePolicy checks a policy at authoring time. Conditions are parsed and
// walked but never executed. A nil allowedVars accepts any variable name; a nil
// registry gets the builtin helpers.
//
// All problems are reported together as an *AggregateError.
func ValidatePolicy(policy *domain.RoutingPolicy, allowedVars map[string]bool, reg *expr.FunctionRegistry) error {
	if policy == nil {
		return &AggregateError{Errors: []error{&PolicyError{Branch: -1, Reason: "policy is nil"}}}
	}
	if reg == nil {
		reg = expr.NewDefaultRegistry()
	}

	var errs []error
	add := func(branch int, format string, args ...any) {
		errs = append(errs, &PolicyError{Policy: policy.Name, Branch: branch, Reason: fmt.Sprintf(format, args...)})
	}

	if len(policy.Branches) == 0 {
		add(-1, "no branches")
	}

	defaults, onErrors := 0, 0
	for i, b := range policy.Branches {
		if b.Destination == "" {
			add(i, "destination is required")
		}
		if b.Default && b.OnError {
			add(i, "a branch cannot be both default and on_error")
			continue
		}

		switch b.Kind() {
		case domain.BranchDefault:
			defaults++
			if b.Condition != "" {
				add(i, "default branch must not have a condition")
			}
		case domain.BranchOnError:
			onErrors++
			if b.Condition != "" {
				add(i, "on_error branch must not have a condition")
			}
		default:
			if b.Condition == "" {
				add(i, "condition is required")
				continue
			}
			prog, err := expr.Compile(b.Condition)
			if err != nil {
				add(i, "%v", err)
				continue
			}
			if err := prog.Validate(allowedVars, reg); err != nil {
				add(i, "%v", err)
			}
		}
	}

	if defaults > 1 {
		add(-1, "at most one default branch is allowed, found %d", defaults)
	}
	if onErrors > 1 {
		add(-1, "at most one on_error branch is allowed, found %d", onErrors)
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
