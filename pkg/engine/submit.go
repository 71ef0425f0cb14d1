package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/guard"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/persistence"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/schema"
)

// Outcome tells what a submission led to.
type Outcome string

const (
	// OutcomeHandoff means the token was queued at its next location.
	OutcomeHandoff Outcome = "handoff"
	// OutcomeCompleted means the token reached a terminal location and waits
	// for synchronization.
	OutcomeCompleted Outcome = "completed"
	// OutcomeFinalized means the token reached a terminal location and passed synchronization.
	OutcomeFinalized Outcome = "finalized"
	// OutcomeRejected means the routing policy was exhausted and the token failed.
	OutcomeRejected Outcome = "rejected"
)

// SubmitRequest carries a worker's result.
type SubmitRequest struct {
	UOWID     string         `json:"uow_id"`
	WorkerID  string         `json:"worker_id"`
	Result    map[string]any `json:"result,omitempty"`
	Rationale string         `json:"rationale,omitempty"`
}

// SubmitResult describes what happened to a submitted token.
type SubmitResult struct {
	UOW      *domain.UOW       `json:"uow"`
	Decision guard.Decision    `json:"decision"`
	Outcome  Outcome           `json:"outcome"`
	Sync     *guard.SyncResult `json:"sync,omitempty"`
}

// Submit merges a worker's result, routes the token with its location's policy
// and commits the move in one write. Only the worker holding the lock may submit.
// A result that breaks the location's contract is refused with ErrInvalidResult
// and nothing is written.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	current, err := e.svc.Get(ctx, req.UOWID)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.StatusActive || current.WorkerID != req.WorkerID {
		return nil, &domain.OwnershipError{UOWID: req.UOWID, Reason: req.WorkerID + " does not hold the lock"}
	}

	loc, err := e.workflow.Location(current.Location)
	if err != nil {
		return nil, err
	}

	result, err := domain.NormalizeAttributes(req.Result)
	if err != nil {
		return nil, fmt.Errorf("%w at %s: %w", domain.ErrInvalidResult, loc.ID, err)
	}
	preview := current.Clone()
	for k, v := range domain.CloneAttributes(result) {
		if v == nil {
			delete(preview.Attributes, k)
			continue
		}
		if preview.Attributes == nil {
			preview.Attributes = make(map[string]any)
		}
		preview.Attributes[k] = v
	}
	if contract, ok := e.contracts[loc.ID]; ok {
		if err := schema.Validate(contract, preview.Attributes); err != nil {
			return nil, fmt.Errorf("%w at %s: %w", domain.ErrInvalidResult, loc.ID, err)
		}
	}

	decision, routeErr := e.router.Evaluate(ctx, loc.Policy, preview)
	commit := persistence.CommitRequest{
		UOWID:            req.UOWID,
		ExpectedWorkerID: req.WorkerID,
		Attributes:       result,
		Rationale:        req.Rationale,
		Metadata:         decisionMetadata(decision),
	}

	var dest *domain.Location
	if routeErr == nil {
		dest, err = e.workflow.Location(decision.Destination)
		if err != nil {
			routeErr = err
			e.escalate(ctx, domain.Escalation{
				Kind:     domain.EscalationPolicyExhausted,
				UOWID:    req.UOWID,
				Severity: domain.SeverityCritical,
				Message:  "policy routed to an unknown location",
				Details:  map[string]any{"policy": decision.Policy, "destination": decision.Destination},
			})
		}
	}

	if routeErr != nil {
		commit.NewStatus = domain.StatusFailed
		commit.Metadata["guard_rejection"] = routeErr.Error()
		u, err := e.svc.Commit(ctx, commit)
		if err != nil {
			return nil, err
		}
		return &SubmitResult{UOW: u, Decision: decision, Outcome: OutcomeRejected}, nil
	}

	commit.NewLocation = dest.ID
	if dest.Terminal {
		commit.NewStatus = domain.StatusCompleted
	} else {
		commit.NewStatus = domain.StatusPending
		commit.EventType = domain.EventHandoff
	}

	u, err := e.svc.Commit(ctx, commit)
	if err != nil {
		return nil, err
	}
	res := &SubmitResult{UOW: u, Decision: decision, Outcome: OutcomeHandoff}
	if !dest.Terminal {
		return res, nil
	}

	res.Outcome = OutcomeCompleted
	if u.IsRoot() {
		sync, finalized, err := e.tryFinalize(ctx, u.ID)
		if err != nil {
			return res, err
		}
		res.Sync = &sync
		if finalized != nil {
			res.UOW = finalized
			res.Outcome = OutcomeFinalized
		}
		return res, nil
	}

	// A returning child may be the last one its parent waits for.
	if _, _, err := e.tryFinalize(ctx, u.Parent()); err != nil {
		e.logger.Warn("Parent synchronization deferred", "parent_id", u.Parent(), "err", err)
	}
	return res, nil
}

func decisionMetadata(d guard.Decision) map[string]any {
	md := map[string]any{
		"policy":       d.Policy,
		"branch_index": d.BranchIndex,
	}
	if d.Reason != "" {
		md["reason"] = string(d.Reason)
	}
	if d.Action != "" {
		md["action"] = d.Action
	}
	if len(d.Failures) > 0 {
		md["branch_failures"] = len(d.Failures)
	}
	return md
}

// Finalize closes a token. A COMPLETED root is finalized only if synchronization
// passes, taking its completed children along. A FAILED token is finalized
// directly, which abandons it.
func (e *Engine) Finalize(ctx context.Context, uowID, rationale string) (*domain.UOW, error) {
	u, err := e.svc.Get(ctx, uowID)
	if err != nil {
		return nil, err
	}
	if u.Status == domain.StatusFailed {
		abandoned, err := e.svc.Commit(ctx, persistence.CommitRequest{
			UOWID:           uowID,
			ExpectedVersion: u.Version,
			NewStatus:       domain.StatusFinalized,
			Rationale:       rationale,
			Metadata:        map[string]any{"abandoned": true},
		})
		if err != nil {
			return nil, err
		}
		e.cerberus.Forget(uowID)
		return abandoned, nil
	}
	if u.Status != domain.StatusCompleted || !u.IsRoot() {
		return nil, &domain.IllegalTransitionError{From: u.Status, To: domain.StatusFinalized}
	}
	sync, finalized, err := e.tryFinalize(ctx, uowID)
	if err != nil {
		return nil, err
	}
	if finalized == nil {
		if !sync.Passed {
			return nil, &guard.SyncError{Result: sync}
		}
		return nil, &domain.OwnershipError{UOWID: uowID, Reason: "finalized concurrently"}
	}
	return finalized, nil
}

// tryFinalize runs the synchronization guard on a COMPLETED root and finalizes
// it with its children when every head passes. A parent still waiting returns
// a nil token and no error.
func (e *Engine) tryFinalize(ctx context.Context, parentID string) (guard.SyncResult, *domain.UOW, error) {
	parent, err := e.svc.Get(ctx, parentID)
	if err != nil {
		return guard.SyncResult{ParentID: parentID}, nil, err
	}
	if parent.Status != domain.StatusCompleted || !parent.IsRoot() {
		return guard.SyncResult{ParentID: parentID}, nil, nil
	}

	sync, err := e.cerberus.Check(ctx, parentID)
	if errors.Is(err, domain.ErrSynchronizationIncomplete) {
		return sync, nil, nil
	}
	if err != nil {
		return sync, nil, err
	}

	finalized, err := e.svc.Commit(ctx, persistence.CommitRequest{
		UOWID:           parentID,
		ExpectedVersion: parent.Version,
		NewStatus:       domain.StatusFinalized,
		Rationale:       "synchronization passed",
		Metadata:        map[string]any{"child_count": sync.ChildCount},
	})
	if errors.Is(err, domain.ErrOwnershipConflict) {
		// Someone else finalized or touched it first.
		return sync, nil, nil
	}
	if err != nil {
		return sync, nil, err
	}

	children, err := e.svc.Store().ListChildren(ctx, parentID)
	if err != nil {
		return sync, finalized, err
	}
	for _, c := range children {
		if c.Status != domain.StatusCompleted {
			continue
		}
		_, err := e.svc.Commit(ctx, persistence.CommitRequest{
			UOWID:           c.ID,
			ExpectedVersion: c.Version,
			NewStatus:       domain.StatusFinalized,
			Rationale:       "finalized with parent " + parentID,
		})
		if err != nil && !errors.Is(err, domain.ErrOwnershipConflict) {
			return sync, finalized, err
		}
	}
	e.logger.Info("Finalized", "uow_id", parentID, "children", len(children))
	return sync, finalized, nil
}

// ResolveBlocked retries synchronization for every completed root waiting at
// a terminal location and returns how many were finalized. Parents tracked as
// blocked that are no longer completed roots are forgotten.
func (e *Engine) ResolveBlocked(ctx context.Context) (int, error) {
	// Snapshot first so a root blocked during the listing is not forgotten.
	blocked := e.cerberus.Blocked()
	completed, err := e.svc.Store().ListByStatus(ctx, domain.StatusCompleted, "")
	if err != nil {
		return 0, err
	}
	waiting := make(map[string]bool, len(completed))
	for _, u := range completed {
		if u.IsRoot() {
			waiting[u.ID] = true
		}
	}
	for id := range blocked {
		if !waiting[id] {
			e.cerberus.Forget(id)
		}
	}

	var errs []error
	resolved := 0
	for _, u := range completed {
		if !u.IsRoot() {
			continue
		}
		_, finalized, err := e.tryFinalize(ctx, u.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if finalized != nil {
			resolved++
		}
	}
	return resolved, errors.Join(errs...)
}
