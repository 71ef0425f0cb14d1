package schema_test

import (
	"encoding/json"
	"testing"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		wantErr bool
	}{
		{in: "string", name: "string"},
		{in: " int ", name: "int"},
		{in: "[float]", name: "[float]"},
		{in: "[[bool]]", name: "[[bool]]"},
		{in: "object?", name: "object?"},
		{in: "[string]?", name: "[string]?"},
		{in: "decimal", wantErr: true},
		{in: "[int?]", wantErr: true},
		{in: "int??", wantErr: true},
		{in: "[]", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			typ, err := schema.ParseType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, typ.Name())
		})
	}
}

func TestTypes_Validate(t *testing.T) {
	tests := []struct {
		typ   string
		ok    []any
		notOK []any
	}{
		{typ: "string", ok: []any{"", "x"}, notOK: []any{1, true}},
		{typ: "bool", ok: []any{true, false}, notOK: []any{"true", 0}},
		{typ: "int", ok: []any{1, int64(2), 3.0}, notOK: []any{3.5, "3"}},
		{typ: "float", ok: []any{1, 2.5}, notOK: []any{"2.5", false}},
		{typ: "object", ok: []any{map[string]any{}}, notOK: []any{[]any{}, "x"}},
		{typ: "any", ok: []any{1, "x", []any{}}, notOK: []any{nil}},
		{typ: "[int]", ok: []any{[]any{1.0, 2.0}, []int{}}, notOK: []any{[]any{1.5}, "x", nil}},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			typ, err := schema.ParseType(tt.typ)
			require.NoError(t, err)
			for _, v := range tt.ok {
				assert.NoError(t, typ.Validate(v), "%v", v)
			}
			for _, v := range tt.notOK {
				assert.Error(t, typ.Validate(v), "%v", v)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	s, err := schema.ParseTypeMap(map[string]string{
		"approved": "bool",
		"amount":   "float",
		"tags":     "[string]",
		"note":     "string?",
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"approved":true,"amount":12,"tags":["a"],"extra":1}`), &decoded))
	assert.NoError(t, schema.Validate(s, decoded), "optional fields may be absent and extra fields are ignored")

	decoded["note"] = nil
	assert.NoError(t, schema.Validate(s, decoded), "optional fields may be null")

	err = schema.Validate(s, map[string]any{"amount": "lots", "tags": []any{"a", 2.0}, "note": 5})
	require.Error(t, err)
	errs := schema.ValidationErrors(err)
	require.Len(t, errs, 4)
	assert.EqualError(t, errs[0], `field "amount": expected float, got string`)
	assert.EqualError(t, errs[1], `field "approved": required`)
	assert.Contains(t, errs[2].Error(), `field "note"`)
	assert.Contains(t, errs[3].Error(), "element 1: expected string, got float64")
	assert.Contains(t, err.Error(), "4 validation errors")

	var single *schema.ValidationError
	assert.ErrorAs(t, err, &single)
	assert.Nil(t, schema.ValidationErrors(nil))
}

func TestParseTypeMap_ReportsEveryField(t *testing.T) {
	_, err := schema.ParseTypeMap(map[string]string{"a": "nope", "b": "int", "c": "[huh]"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field a: unsupported type: nope")
	assert.Contains(t, err.Error(), "field c: unsupported type: huh")
}
