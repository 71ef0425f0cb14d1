package chameleon_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	chameleon "github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runConsole(t *testing.T, sys *chameleon.System, role, input string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := worker.NewHuman("person-1", role)
	var out bytes.Buffer
	console := &chameleon.Console{Input: strings.NewReader(input), Output: &out}
	done := make(chan error, 1)
	go func() { done <- console.Run(ctx, h) }()

	worked, err := worker.NewRunner(sys.Engine, h).RunOnce(ctx)
	require.True(t, worked)
	cancel()
	<-done
	return out.String(), err
}

func TestConsole_Submit(t *testing.T) {
	sys := newSystem(t, "store:\n  backend: memory\n")
	ctx := context.Background()
	root, err := sys.Engine.CreateRoot(ctx, "intake", map[string]any{"amount": 3000, "note": "hotel"}, "")
	require.NoError(t, err)
	_, err = worker.NewRunner(sys.Engine, clerk()).RunOnce(ctx)
	require.NoError(t, err)

	out, err := runConsole(t, sys, "manager", "approved=true\n-note\nwhy within budget\nbogus\nsubmit\n")
	require.NoError(t, err)
	assert.Contains(t, out, root.ID+" at approval")
	assert.Contains(t, out, "**amount**: `3000`")
	assert.Contains(t, out, `unknown command "bogus"`)

	got, err := sys.Engine.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFinalized, got.Status)
	assert.Equal(t, true, got.Attributes["approved"])
	assert.NotContains(t, got.Attributes, "note")

	history, err := sys.Engine.History(ctx, root.ID)
	require.NoError(t, err)
	var rationales []string
	for _, e := range history {
		rationales = append(rationales, e.Rationale)
	}
	assert.Contains(t, rationales, "within budget")
}

func TestConsole_Fail(t *testing.T) {
	sys := newSystem(t, "store:\n  backend: memory\n")
	ctx := context.Background()
	root, err := sys.Engine.CreateRoot(ctx, "intake", map[string]any{"amount": 10}, "")
	require.NoError(t, err)

	_, err = runConsole(t, sys, "clerk", "fail MISSING_RECEIPT no receipt attached\n")
	require.NoError(t, err)

	got, err := sys.Engine.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
}

func TestConsole_EOFAbandons(t *testing.T) {
	sys := newSystem(t, "store:\n  backend: memory\n")
	ctx := context.Background()
	root, err := sys.Engine.CreateRoot(ctx, "intake", map[string]any{"amount": 10}, "")
	require.NoError(t, err)

	_, err = runConsole(t, sys, "clerk", "amount=11")
	require.NoError(t, err)

	got, err := sys.Engine.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.EqualValues(t, 10, got.Attributes["amount"])
}

func TestConsole_RequiresIO(t *testing.T) {
	err := (&chameleon.Console{}).Run(context.Background(), worker.NewHuman("p", "clerk"))
	assert.Error(t, err)
}
