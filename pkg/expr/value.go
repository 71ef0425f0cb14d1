package expr

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// normalize maps Go values onto the evaluator's small value domain:
// nil, bool, int64, float64, string. Anything else passes through and can
// only be compared for equality or handed to a function.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, int64, float64, string:
		return t
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return uintValue(uint64(t))
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return uintValue(t)
	case float32:
		return float64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	return v
}

func uintValue(u uint64) any {
	if u > math.MaxInt64 {
		return float64(u)
	}
	return int64(u)
}

// Truthy applies Python truthiness: nil, false, zero, "" and empty collections are false.
func Truthy(v any) bool {
	switch t := normalize(v).(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	}
	return true
}

// numeric returns the value as int64 or float64. Booleans count as 0/1.
func numeric(v any) (any, bool) {
	switch t := v.(type) {
	case int64, float64:
		return t, true
	case bool:
		if t {
			return int64(1), true
		}
		return int64(0), true
	}
	return nil, false
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case float64:
		return t
	}
	return math.NaN()
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	}
	return fmt.Sprintf("%T", v)
}
