package schema

import (
	"fmt"
	"reflect"
	"strings"
)

// Type defines the contract for field validation.
type Type interface {
	// Name returns the type string it was parsed from (e.g. "int", "[string]").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

type scalar struct {
	name  string
	check func(any) bool
}

func (t scalar) Name() string { return t.name }

func (t scalar) Validate(value any) error {
	if !t.check(value) {
		return fmt.Errorf("expected %s, got %T", t.name, value)
	}
	return nil
}

var builtins = map[string]Type{
	"string": scalar{"string", func(v any) bool { _, ok := v.(string); return ok }},
	"bool":   scalar{"bool", func(v any) bool { _, ok := v.(bool); return ok }},
	"int":    scalar{"int", isInt},
	"float":  scalar{"float", isNumber},
	"object": scalar{"object", func(v any) bool { _, ok := v.(map[string]any); return ok }},
	"any":    scalar{"any", func(v any) bool { return v != nil }},
}

func isInt(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return n == float64(int64(n))
	case float32:
		return n == float32(int64(n))
	}
	return false
}

func isNumber(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return isInt(v)
}

type sliceType struct {
	elem Type
}

func (t sliceType) Name() string { return "[" + t.elem.Name() + "]" }

func (t sliceType) Validate(value any) error {
	rv := reflect.ValueOf(value)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return fmt.Errorf("expected %s, got %T", t.Name(), value)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := t.elem.Validate(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

type optional struct {
	Type
}

func (t optional) Name() string { return t.Type.Name() + "?" }

// Optional reports whether t accepts a missing or null value.
func Optional(t Type) bool {
	_, ok := t.(optional)
	return ok
}

// ParseType converts a type string to a Type.
// Supports "string", "int", "float", "bool", "object", "any", slices such as
// "[int]" and a trailing "?" for optional fields.
func ParseType(typeStr string) (Type, error) {
	s := strings.TrimSpace(typeStr)
	if rest, ok := strings.CutSuffix(s, "?"); ok {
		t, err := ParseType(rest)
		if err != nil {
			return nil, err
		}
		if Optional(t) {
			return nil, fmt.Errorf("unsupported type: %s", typeStr)
		}
		return optional{t}, nil
	}
	if len(s) > 2 && s[0] == '[' && s[len(s)-1] == ']' {
		elem, err := ParseType(s[1 : len(s)-1])
		if err != nil {
			return nil, err
		}
		if Optional(elem) {
			return nil, fmt.Errorf("unsupported type: %s", typeStr)
		}
		return sliceType{elem: elem}, nil
	}
	if t, ok := builtins[s]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("unsupported type: %s", typeStr)
}
