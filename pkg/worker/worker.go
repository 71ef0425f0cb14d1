package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/engine"
)

// Failure is a business failure reported by a worker instead of a result.
type Failure struct {
	Code    string `json:"code"`
	Details string `json:"details"`
}

// Result is what a worker hands back after processing a token.
type Result struct {
	Attributes map[string]any     `json:"attributes,omitempty"`
	Rationale  string             `json:"rationale,omitempty"`
	Children   []engine.ChildSpec `json:"children,omitempty"`
	Failure    *Failure           `json:"failure,omitempty"`
}

// Worker is anything that can process tokens for one role. Human, AI and
// automated workers are interchangeable behind it.
type Worker interface {
	ID() string
	Role() string
	Process(ctx context.Context, uow *domain.UOW) (Result, error)
}

// AutoFunc is the deterministic processing step of an Auto worker.
type AutoFunc func(ctx context.Context, uow *domain.UOW) (Result, error)

// Auto is a worker backed by plain code.
type Auto struct {
	id, role string
	fn       AutoFunc
}

// NewAuto creates an automated worker.
func NewAuto(id, role string, fn AutoFunc) *Auto {
	return &Auto{id: id, role: role, fn: fn}
}

func (a *Auto) ID() string   { return a.id }
func (a *Auto) Role() string { return a.role }

func (a *Auto) Process(ctx context.Context, uow *domain.UOW) (Result, error) {
	return a.fn(ctx, uow)
}

// Model produces attributes and a rationale for a token.
type Model interface {
	Decide(ctx context.Context, uow *domain.UOW) (attributes map[string]any, rationale string, err error)
}

// ErrIncompleteOutput is returned when a model omits a required attribute.
var ErrIncompleteOutput = errors.New("model output incomplete")

// AI is a worker that delegates to a Model. Required keys must be present in
// every model output.
type AI struct {
	id, role string
	model    Model
	required []string
}

// NewAI creates a model-backed worker.
func NewAI(id, role string, model Model, requiredKeys ...string) *AI {
	return &AI{id: id, role: role, model: model, required: requiredKeys}
}

func (a *AI) ID() string   { return a.id }
func (a *AI) Role() string { return a.role }

func (a *AI) Process(ctx context.Context, uow *domain.UOW) (Result, error) {
	attrs, rationale, err := a.model.Decide(ctx, uow)
	if err != nil {
		return Result{}, fmt.Errorf("model: %w", err)
	}
	for _, k := range a.required {
		if _, ok := attrs[k]; !ok {
			return Result{}, fmt.Errorf("%w: missing %q", ErrIncompleteOutput, k)
		}
	}
	return Result{Attributes: attrs, Rationale: rationale}, nil
}

// Human is a worker whose results come from a person. Claimed tokens are
// published on Tasks and Process blocks until Decide supplies the result.
type Human struct {
	id, role  string
	tasks     chan *domain.UOW
	decisions chan Result
}

// NewHuman creates a human worker.
func NewHuman(id, role string) *Human {
	return &Human{
		id:        id,
		role:      role,
		tasks:     make(chan *domain.UOW),
		decisions: make(chan Result),
	}
}

func (h *Human) ID() string   { return h.id }
func (h *Human) Role() string { return h.role }

// Tasks delivers tokens awaiting a decision.
func (h *Human) Tasks() <-chan *domain.UOW {
	return h.tasks
}

// Decide supplies the result for the token currently being processed.
func (h *Human) Decide(ctx context.Context, r Result) error {
	select {
	case h.decisions <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Human) Process(ctx context.Context, uow *domain.UOW) (Result, error) {
	select {
	case h.tasks <- uow:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	select {
	case r := <-h.decisions:
		return r, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
