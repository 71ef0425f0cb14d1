package validator

import (
	"testing"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func policy(dests ...string) *domain.RoutingPolicy {
	p := &domain.RoutingPolicy{Name: "p"}
	for _, d := range dests {
		p.Branches = append(p.Branches, domain.Branch{Condition: "x", Destination: d})
	}
	return p
}

func TestCheck_Valid(t *testing.T) {
	wf := &domain.Workflow{Locations: []domain.Location{
		{ID: "intake", Policy: policy("review", "done")},
		{ID: "review", Policy: policy("intake", "done")},
		{ID: "done", Terminal: true},
	}}
	require.NoError(t, Check(wf))
	assert.Equal(t, []string{"intake"}, Analyze(wf).EntryPoints)
}

func TestCheck_Problems(t *testing.T) {
	wf := &domain.Workflow{Locations: []domain.Location{
		{ID: "intake", Policy: policy("loop", "ghost")},
		{ID: "loop", Policy: policy("loop")},
		{ID: "done", Terminal: true},
	}}
	rep := Analyze(wf)
	assert.Equal(t, []string{"intake -> ghost"}, rep.Missing)
	assert.Equal(t, []string{"intake", "loop"}, rep.Stranded)
	assert.Equal(t, []string{"intake"}, rep.EntryPoints, "a self loop is not an entry")

	err := Check(wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Missing location: 'intake -> ghost'")
	assert.Contains(t, err.Error(), "No terminal location reachable from 'loop'")
}

func TestCheck_NoEntryPoint(t *testing.T) {
	wf := &domain.Workflow{Locations: []domain.Location{
		{ID: "a", Policy: policy("b")},
		{ID: "b", Policy: policy("a", "done")},
		{ID: "done", Terminal: true},
	}}
	err := Check(wf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "No entry point")
}
