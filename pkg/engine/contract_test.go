package engine_test

import (
	"context"
	"testing"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/adapters/memory"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/dsl"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/engine"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/persistence"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_ResultContract(t *testing.T) {
	b := dsl.New("claims")
	b.Add("assess").Role("assessor").
		Requires("approved", "bool").
		Requires("reason", "string?").
		Branch("approved == true", "paid").
		Go("rejected")
	b.Add("paid").Role("archivist").Terminal()
	b.Add("rejected").Role("archivist").Terminal()

	eng, err := engine.New(persistence.NewService(memory.NewStore()), b.MustBuild())
	require.NoError(t, err)
	ctx := context.Background()

	root, err := eng.CreateRoot(ctx, "assess", map[string]any{"claim": "c-1"}, "")
	require.NoError(t, err)
	_, err = eng.Claim(ctx, "assessor", "w-1")
	require.NoError(t, err)

	_, err = eng.Submit(ctx, engine.SubmitRequest{UOWID: root.ID, WorkerID: "w-1", Result: map[string]any{"approved": "yes"}})
	require.ErrorIs(t, err, domain.ErrInvalidResult)
	require.Len(t, schema.ValidationErrors(err), 1)
	assert.Contains(t, err.Error(), `field "approved": expected bool, got string`)

	u, err := eng.Get(ctx, root.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, u.Status, "a refused result writes nothing")
	assert.Equal(t, "w-1", u.WorkerID)
	assert.NotContains(t, u.Attributes, "approved")

	res, err := eng.Submit(ctx, engine.SubmitRequest{UOWID: root.ID, WorkerID: "w-1", Result: map[string]any{"approved": true}})
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeFinalized, res.Outcome)
	assert.Equal(t, "paid", res.UOW.Location)
}

func TestEngine_New_RejectsBadContract(t *testing.T) {
	wf := &domain.Workflow{Name: "wf", Locations: []domain.Location{
		{ID: "a", Role: "r", Requires: map[string]string{"x": "decimal"}, Policy: &domain.RoutingPolicy{
			Branches: []domain.Branch{{Default: true, Destination: "done"}},
		}},
		{ID: "done", Role: "r", Terminal: true},
	}}
	_, err := engine.New(persistence.NewService(memory.NewStore()), wf)
	assert.ErrorContains(t, err, `location "a" requires`)
}
