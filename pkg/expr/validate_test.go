package expr_test

import (
	"testing"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/expr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_NamesAgainstPermittedSet(t *testing.T) {
	ev := expr.NewEvaluator(nil)
	allowed := map[string]bool{"amount": true, "region": true}

	assert.NoError(t, ev.Validate("amount > 10 and upper(region) == 'EU'", allowed))

	err := ev.Validate("amount > limit", allowed)
	assert.ErrorIs(t, err, expr.ErrValidation)
	assert.Contains(t, err.Error(), "limit")

	err = ev.Validate("__import__('os')", allowed)
	assert.ErrorIs(t, err, expr.ErrValidation)
	assert.Contains(t, err.Error(), "unknown function")

	// nil allow-list skips variable checks but still checks functions.
	assert.NoError(t, ev.Validate("anything > 1", nil))
}

func TestValidate_DoesNotExecute(t *testing.T) {
	reg := expr.NewDefaultRegistry()
	called := false
	require.NoError(t, reg.Register("side_effect", func(args ...any) (any, error) {
		called = true
		return true, nil
	}))
	ev := expr.NewEvaluator(reg)

	require.NoError(t, ev.Validate("side_effect() and 1 / 0", nil))
	assert.False(t, called)
}

func TestProgram_IdentifiersAndFunctions(t *testing.T) {
	prog, err := expr.Compile("max(a, b) > a + c")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, prog.Identifiers())
	assert.Equal(t, []string{"max"}, prog.Functions())
}
