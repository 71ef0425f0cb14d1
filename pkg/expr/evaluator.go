package expr

import "sync"

// Evaluator compiles expressions once and evaluates them against a registry.
// Safe for concurrent use.
type Evaluator struct {
	registry *FunctionRegistry

	mu    sync.RWMutex
	cache map[string]*Program
	limit int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithCacheSize bounds the number of compiled programs kept. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(e *Evaluator) {
		e.limit = n
	}
}

// NewEvaluator creates an evaluator. A nil registry gets the builtin helpers.
func NewEvaluator(reg *FunctionRegistry, opts ...Option) *Evaluator {
	if reg == nil {
		reg = NewDefaultRegistry()
	}
	e := &Evaluator{
		registry: reg,
		cache:    make(map[string]*Program),
		limit:    512,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the function registry used for calls.
func (e *Evaluator) Registry() *FunctionRegistry {
	return e.registry
}

// Compile returns the cached program for src, parsing it on first use.
// Syntax errors are not cached.
func (e *Evaluator) Compile(src string) (*Program, error) {
	e.mu.RLock()
	prog, ok := e.cache[src]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := Compile(src)
	if err != nil {
		return nil, err
	}

	if e.limit > 0 {
		e.mu.Lock()
		if len(e.cache) >= e.limit {
			// Reset once full.
			e.cache = make(map[string]*Program)
		}
		e.cache[src] = prog
		e.mu.Unlock()
	}
	return prog, nil
}

// Evaluate parses and evaluates src against vars.
func (e *Evaluator) Evaluate(src string, vars map[string]any) (any, error) {
	prog, err := e.Compile(src)
	if err != nil {
		return nil, err
	}
	return prog.Eval(vars, e.registry)
}

// EvaluateBool parses and evaluates src, applying truthiness to the result.
func (e *Evaluator) EvaluateBool(src string, vars map[string]any) (bool, error) {
	prog, err := e.Compile(src)
	if err != nil {
		return false, err
	}
	return prog.EvalBool(vars, e.registry)
}

// Validate checks src against the permitted variables without evaluating it.
func (e *Evaluator) Validate(src string, allowedVars map[string]bool) error {
	prog, err := e.Compile(src)
	if err != nil {
		return err
	}
	return prog.Validate(allowedVars, e.registry)
}
