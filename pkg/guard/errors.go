package guard

import (
	"fmt"
	"strings"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
)

// PolicyExhaustedError is returned when no branch matched and the policy has no
// usable fallback.
type PolicyExhaustedError struct {
	Policy   string
	UOWID    string
	Failures int
}

func (e *PolicyExhaustedError) Error() string {
	return fmt.Sprintf("policy %q exhausted for %s (%d branch failures)", e.Policy, e.UOWID, e.Failures)
}

func (e *PolicyExhaustedError) Is(target error) bool { return target == domain.ErrPolicyExhausted }

// SyncError carries the result of a failed synchronization check.
// It is a wait state, not a failure of the parent.
type SyncError struct {
	Result SyncResult
	Err    error
}

func (e *SyncError) Error() string {
	msg := fmt.Sprintf("synchronization incomplete for %s: %s head failed", e.Result.ParentID, e.Result.FailedHead)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncError) Is(target error) bool { return target == domain.ErrSynchronizationIncomplete }

func (e *SyncError) Unwrap() error { return e.Err }

// PolicyError is a single authoring problem in a routing policy.
type PolicyError struct {
	Policy string
	Branch int // -1 for policy-level problems
	Reason string
}

func (e *PolicyError) Error() string {
	if e.Branch < 0 {
		return fmt.Sprintf("policy %q: %s", e.Policy, e.Reason)
	}
	return fmt.Sprintf("policy %q branch %d: %s", e.Policy, e.Branch, e.Reason)
}

// AggregateError collects every problem found while validating.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return b.String()
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// ValidationErrors returns all validation errors if err is an AggregateError.
// Otherwise returns nil.
func ValidationErrors(err error) []error {
	if aggr, ok := err.(*AggregateError); ok {
		return aggr.Errors
	}
	return nil
}
