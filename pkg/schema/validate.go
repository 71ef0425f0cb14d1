package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Schema is a map of field names to their expected types.
type Schema map[string]Type

// ParseTypeMap converts a map of field names to type strings into a Schema.
// Every bad type string is reported.
func ParseTypeMap(typeMap map[string]string) (Schema, error) {
	result := make(Schema, len(typeMap))
	var errs []error
	for _, key := range sortedKeys(typeMap) {
		t, err := ParseType(typeMap[key])
		if err != nil {
			errs = append(errs, fmt.Errorf("field %s: %w", key, err))
			continue
		}
		result[key] = t
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return result, nil
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Key    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Key, e.Reason)
}

// AggregateError represents multiple validation failures, ordered by field.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(e.Errors), strings.Join(parts, "; "))
}

func (e *AggregateError) Unwrap() []error { return e.Errors }

// ValidationErrors returns all validation errors carried by err.
func ValidationErrors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}

// Validate checks data against the schema. Fields not named by the schema
// are ignored.
func Validate(s Schema, data map[string]any) error {
	var errs []error
	for _, key := range sortedKeys(s) {
		t := s[key]
		value, ok := data[key]
		if !ok || value == nil {
			if !Optional(t) {
				errs = append(errs, &ValidationError{Key: key, Reason: "required"})
			}
			continue
		}
		if err := t.Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: key, Reason: err.Error()})
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
