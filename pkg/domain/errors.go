package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUOWNotFound is returned when a unit of work cannot be found in the store.
	ErrUOWNotFound = errors.New("unit of work not found")

	// ErrIllegalTransition is returned when a status change is not in the lifecycle table.
	ErrIllegalTransition = errors.New("illegal transition")

	// ErrOwnershipConflict is returned to a stale writer that lost a race. The caller must re-claim.
	ErrOwnershipConflict = errors.New("ownership conflict")

	// ErrVersionConflict is returned by stores when an optimistic write observes a newer version.
	ErrVersionConflict = errors.New("version conflict")

	// ErrPolicyExhausted is returned when no routing branch matched and no fallback exists.
	ErrPolicyExhausted = errors.New("routing policy exhausted")

	// ErrSynchronizationIncomplete signals the wait state of a parent whose children are outstanding.
	ErrSynchronizationIncomplete = errors.New("synchronization incomplete")

	// ErrIntegrityDrift is returned when a stored content hash no longer matches the attributes.
	ErrIntegrityDrift = errors.New("integrity drift")

	// ErrNoWork is returned by claim when nothing is pending for the role.
	ErrNoWork = errors.New("no work available")

	// ErrAlreadyExists is returned when creating a unit of work whose id is taken.
	ErrAlreadyExists = errors.New("unit of work already exists")

	// ErrUnknownLocation is returned when a location is not part of the workflow.
	ErrUnknownLocation = errors.New("unknown location")

	// ErrInvalidResult is returned when a submission does not satisfy its location's contract.
	// The worker keeps the token and may resubmit.
	ErrInvalidResult = errors.New("invalid result")
)

// IllegalTransitionError describes a rejected status change.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// OwnershipError describes why a commit was rejected as stale.
type OwnershipError struct {
	UOWID  string
	Reason string
}

func (e *OwnershipError) Error() string {
	return fmt.Sprintf("ownership conflict on %s: %s", e.UOWID, e.Reason)
}

func (e *OwnershipError) Is(target error) bool {
	return target == ErrOwnershipConflict
}
