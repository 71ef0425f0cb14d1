package expr_test

import (
	"testing"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Builtins(t *testing.T) {
	ev := expr.NewEvaluator(expr.NewDefaultRegistry())

	tests := []struct {
		src  string
		want any
	}{
		{"abs(-3)", int64(3)},
		{"abs(-2.5)", 2.5},
		{"min(3, 1, 2)", int64(1)},
		{"max(1, 2.5)", 2.5},
		{"round(2.5)", int64(2)},
		{"round(3.5)", int64(4)},
		{"round(2.675, 1)", 2.7},
		{"floor(2.9)", int64(2)},
		{"ceil(2.1)", int64(3)},
		{"int('12')", int64(12)},
		{"int(9.99)", int64(9)},
		{"float(2)", 2.0},
		{"len('héllo')", int64(5)},
		{"len(tags)", int64(2)},
		{"lower('EU')", "eu"},
		{"upper(region)", "EU"},
	}
	vars := map[string]any{"tags": []any{"a", "b"}, "region": "eu"}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			got, err := ev.Evaluate(tt.src, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegistry_RegisterRejectsDuplicatesAndBadNames(t *testing.T) {
	reg := expr.NewDefaultRegistry()

	err := reg.Register("abs", func(args ...any) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, expr.ErrDuplicateFunction)

	for _, name := range []string{"", "1x", "and", "lambda", "a.b"} {
		err := reg.Register(name, func(args ...any) (any, error) { return nil, nil })
		assert.ErrorIs(t, err, expr.ErrInvalidFunction, name)
	}
	assert.ErrorIs(t, reg.Register("nilfn", nil), expr.ErrInvalidFunction)
}

func TestRegistry_CustomFunction(t *testing.T) {
	reg := expr.NewDefaultRegistry()
	require.NoError(t, reg.Register("double", func(args ...any) (any, error) {
		return args[0].(int64) * 2, nil
	}))
	assert.Contains(t, reg.Names(), "double")

	ev := expr.NewEvaluator(reg)
	got, err := ev.EvaluateBool("double(n) == 8", map[string]any{"n": 4})
	require.NoError(t, err)
	assert.True(t, got)
}

func TestRegistry_InstancesAreIsolated(t *testing.T) {
	a := expr.NewDefaultRegistry()
	b := expr.NewDefaultRegistry()
	require.NoError(t, a.Register("only_a", func(args ...any) (any, error) { return true, nil }))

	assert.True(t, a.Has("only_a"))
	assert.False(t, b.Has("only_a"))
}
