package expr

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

// Function is a pure helper callable from expressions.
// Arguments arrive already normalized (int64, float64, string, bool, nil).
type Function func(args ...any) (any, error)

// FunctionRegistry manages the functions an expression may call.
// It is owned by an engine instance; there is no process-wide registry.
type FunctionRegistry struct {
	mu    sync.RWMutex
	funcs map[string]Function
}

// NewRegistry creates an empty registry.
func NewRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		funcs: make(map[string]Function),
	}
}

// NewDefaultRegistry creates a registry pre-seeded with the builtin helpers.
func NewDefaultRegistry() *FunctionRegistry {
	r := NewRegistry()
	for name, fn := range builtins {
		r.funcs[name] = fn
	}
	return r
}

// Register adds a function. Duplicate names are rejected.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	if name == "" || fn == nil || !isValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidFunction, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFunction, name)
	}
	r.funcs[name] = fn
	return nil
}

// Lookup returns the function registered under name.
func (r *FunctionRegistry) Lookup(name string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Has reports whether name is registered.
func (r *FunctionRegistry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the registered names in sorted order.
func (r *FunctionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func isValidName(name string) bool {
	if !isIdentStart(name[0]) {
		return false
	}
	for i := 1; i < len(name); i++ {
		if !isIdentPart(name[i]) {
			return false
		}
	}
	_, reserved := forbiddenKeywords[name]
	switch name {
	case "and", "or", "not", "true", "false", "null", "True", "False", "None":
		reserved = true
	}
	return !reserved
}

var builtins = map[string]Function{
	"abs":   fnAbs,
	"min":   func(args ...any) (any, error) { return extreme("min", args, -1) },
	"max":   func(args ...any) (any, error) { return extreme("max", args, 1) },
	"round": fnRound,
	"floor": func(args ...any) (any, error) { return roundWith("floor", args, math.Floor) },
	"ceil":  func(args ...any) (any, error) { return roundWith("ceil", args, math.Ceil) },
	"int":   fnInt,
	"float": fnFloat,
	"len":   fnLen,
	"lower": func(args ...any) (any, error) { return mapString("lower", args, strings.ToLower) },
	"upper": func(args ...any) (any, error) { return mapString("upper", args, strings.ToUpper) },
}

func arity(name string, args []any, min, max int) error {
	if len(args) < min || len(args) > max {
		if min == max {
			return fmt.Errorf("%s() takes exactly %d argument(s) (%d given)", name, min, len(args))
		}
		return fmt.Errorf("%s() takes %d to %d arguments (%d given)", name, min, max, len(args))
	}
	return nil
}

func fnAbs(args ...any) (any, error) {
	if err := arity("abs", args, 1, 1); err != nil {
		return nil, err
	}
	n, ok := numeric(normalize(args[0]))
	if !ok {
		return nil, fmt.Errorf("bad operand type for abs(): '%s'", typeName(args[0]))
	}
	if i, isInt := n.(int64); isInt {
		if i < 0 {
			return -i, nil
		}
		return i, nil
	}
	return math.Abs(n.(float64)), nil
}

func extreme(name string, args []any, sign int) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%s expected at least 1 argument, got 0", name)
	}
	first := normalize(args[0])
	best, ok := numeric(first)
	if !ok {
		return nil, fmt.Errorf("%s() arguments must be numbers, got '%s'", name, typeName(first))
	}
	for _, a := range args[1:] {
		v := normalize(a)
		num, ok := numeric(v)
		if !ok {
			return nil, fmt.Errorf("%s() arguments must be numbers, got '%s'", name, typeName(v))
		}
		if (sign < 0 && toFloat(num) < toFloat(best)) || (sign > 0 && toFloat(num) > toFloat(best)) {
			best = num
		}
	}
	return best, nil
}

// fnRound follows banker's rounding. With one argument it returns an int.
func fnRound(args ...any) (any, error) {
	if err := arity("round", args, 1, 2); err != nil {
		return nil, err
	}
	n, ok := numeric(normalize(args[0]))
	if !ok {
		return nil, fmt.Errorf("round() argument must be a number, got '%s'", typeName(args[0]))
	}
	if len(args) == 1 {
		if i, isInt := n.(int64); isInt {
			return i, nil
		}
		return int64(math.RoundToEven(n.(float64))), nil
	}
	digits, ok := normalize(args[1]).(int64)
	if !ok {
		return nil, fmt.Errorf("round() ndigits must be an int, got '%s'", typeName(args[1]))
	}
	scale := math.Pow(10, float64(digits))
	return math.RoundToEven(toFloat(n)*scale) / scale, nil
}

func roundWith(name string, args []any, fn func(float64) float64) (any, error) {
	if err := arity(name, args, 1, 1); err != nil {
		return nil, err
	}
	n, ok := numeric(normalize(args[0]))
	if !ok {
		return nil, fmt.Errorf("%s() argument must be a number, got '%s'", name, typeName(args[0]))
	}
	if i, isInt := n.(int64); isInt {
		return i, nil
	}
	return int64(fn(n.(float64))), nil
}

func fnInt(args ...any) (any, error) {
	if err := arity("int", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := normalize(args[0]).(type) {
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid literal for int(): %q", v)
		}
		return i, nil
	default:
		n, ok := numeric(v)
		if !ok {
			return nil, fmt.Errorf("int() argument must be a string or a number, not '%s'", typeName(v))
		}
		if f, isFloat := n.(float64); isFloat {
			return int64(math.Trunc(f)), nil
		}
		return n, nil
	}
}

func fnFloat(args ...any) (any, error) {
	if err := arity("float", args, 1, 1); err != nil {
		return nil, err
	}
	switch v := normalize(args[0]).(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("could not convert string to float: %q", v)
		}
		return f, nil
	default:
		n, ok := numeric(v)
		if !ok {
			return nil, fmt.Errorf("float() argument must be a string or a number, not '%s'", typeName(v))
		}
		return toFloat(n), nil
	}
}

func fnLen(args ...any) (any, error) {
	if err := arity("len", args, 1, 1); err != nil {
		return nil, err
	}
	if s, ok := args[0].(string); ok {
		return int64(utf8.RuneCountInString(s)), nil
	}
	rv := reflect.ValueOf(args[0])
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return int64(rv.Len()), nil
	}
	return nil, fmt.Errorf("object of type '%s' has no len()", typeName(args[0]))
}

func mapString(name string, args []any, fn func(string) string) (any, error) {
	if err := arity(name, args, 1, 1); err != nil {
		return nil, err
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%s() argument must be a string, not '%s'", name, typeName(args[0]))
	}
	return fn(s), nil
}
