package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// maxExactInt is the largest magnitude a float64 holds without rounding.
const maxExactInt = 1 << 53

// NormalizeAttributes returns attrs in the shape they have after a JSON round
// trip: maps, slices, strings, bools, nil and numbers. Integers beyond float64
// precision stay int64; every other number is a float64. Attributes are hashed
// and stored in this form so durable stores read back what was hashed.
func NormalizeAttributes(attrs map[string]any) (map[string]any, error) {
	if attrs == nil {
		return nil, nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("normalize attributes: %w", err)
	}
	return DecodeAttributes(raw)
}

// DecodeAttributes decodes a JSON object into normalized attributes.
// Empty input and null decode to nil.
func DecodeAttributes(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	for k, v := range attrs {
		attrs[k] = fromJSONNumbers(v)
	}
	return attrs, nil
}

func fromJSONNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil && (i > maxExactInt || i < -maxExactInt) {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, e := range t {
			t[k] = fromJSONNumbers(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = fromJSONNumbers(e)
		}
		return t
	default:
		return v
	}
}

// UnmarshalJSON decodes attributes with NormalizeAttributes' number rules.
func (u *UOW) UnmarshalJSON(data []byte) error {
	type plain UOW
	aux := struct {
		*plain
		Attributes json.RawMessage `json:"attributes"`
	}{plain: (*plain)(u)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	attrs, err := DecodeAttributes(aux.Attributes)
	if err != nil {
		return err
	}
	u.Attributes = attrs
	return nil
}
