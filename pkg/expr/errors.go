package expr

import (
	"errors"
	"fmt"
)

var (
	// ErrSyntax matches every *SyntaxError.
	ErrSyntax = errors.New("expression syntax error")

	// ErrEvaluation matches every *EvaluationError.
	ErrEvaluation = errors.New("expression evaluation error")

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("expression validation error")

	// ErrDuplicateFunction is returned when registering a name twice.
	ErrDuplicateFunction = errors.New("function already registered")

	// ErrInvalidFunction is returned when registering an empty name or nil function.
	ErrInvalidFunction = errors.New("invalid function registration")
)

// SyntaxError reports a malformed or forbidden construct.
type SyntaxError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d in %q: %s", e.Pos, e.Expr, e.Msg)
}

func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// EvaluationError reports a failure while computing a value: an undefined
// variable, an unknown function, a type mismatch or a division by zero.
type EvaluationError struct {
	Expr string
	Msg  string
	Err  error
}

func (e *EvaluationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("evaluating %q: %s: %v", e.Expr, e.Msg, e.Err)
	}
	return fmt.Sprintf("evaluating %q: %s", e.Expr, e.Msg)
}

func (e *EvaluationError) Is(target error) bool { return target == ErrEvaluation }

func (e *EvaluationError) Unwrap() error { return e.Err }

// ValidationError reports a name or operator outside the permitted set.
type ValidationError struct {
	Expr string
	Name string
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid expression %q: %s %q", e.Expr, e.Msg, e.Name)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
