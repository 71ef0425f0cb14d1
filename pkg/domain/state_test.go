package domain_test

import (
	"errors"
	"testing"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition_LegalTable(t *testing.T) {
	legal := []struct{ from, to domain.Status }{
		{domain.StatusInitialized, domain.StatusPending},
		{domain.StatusCreated, domain.StatusPending},
		{domain.StatusPending, domain.StatusActive},
		{domain.StatusActive, domain.StatusCompleted},
		{domain.StatusActive, domain.StatusFailed},
		{domain.StatusActive, domain.StatusPending},
		{domain.StatusFailed, domain.StatusActive},
		{domain.StatusFailed, domain.StatusFinalized},
		{domain.StatusRemediated, domain.StatusPending},
		{domain.StatusPending, domain.StatusTimeout},
		{domain.StatusTimeout, domain.StatusFailed},
		{domain.StatusCompleted, domain.StatusFinalized},
		{domain.StatusFinalized, domain.StatusArchived},
	}
	for _, tc := range legal {
		assert.True(t, domain.CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}
}

func TestValidateTransition_RejectsEverythingElse(t *testing.T) {
	allowed := 0
	for _, from := range domain.AllStatuses {
		for _, to := range domain.AllStatuses {
			err := domain.ValidateTransition(from, to)
			if err == nil {
				allowed++
				continue
			}
			assert.ErrorIs(t, err, domain.ErrIllegalTransition)
			var ite *domain.IllegalTransitionError
			require.True(t, errors.As(err, &ite))
			assert.Equal(t, from, ite.From)
			assert.Equal(t, to, ite.To)
		}
	}
	assert.Equal(t, 13, allowed, "the lifecycle table has exactly 13 legal moves")
}

func TestStatus_InProgressAlias(t *testing.T) {
	st, ok := domain.ParseStatus("in_progress")
	require.True(t, ok)
	assert.Equal(t, domain.StatusActive, st)
	assert.True(t, domain.CanTransition(domain.StatusInProgress, domain.StatusCompleted))

	_, ok = domain.ParseStatus("bogus")
	assert.False(t, ok)
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, domain.StatusCompleted.IsTerminal())
	assert.True(t, domain.StatusFinalized.IsTerminal())
	assert.False(t, domain.StatusFailed.IsTerminal())
	assert.False(t, domain.StatusActive.IsTerminal())
	assert.True(t, domain.StatusArchived.IsFinal())
	assert.False(t, domain.StatusCompleted.IsFinal())
}

func TestBuildEvaluationContext_ReservedNamesShadowAttributes(t *testing.T) {
	u := &domain.UOW{
		ID:                 "u-1",
		ParentID:           domain.StringPtr("p-1"),
		Status:             domain.StatusActive,
		WorkerID:           "worker-7",
		ChildCount:         3,
		FinishedChildCount: 1,
		Attributes:         map[string]any{"amount": 10, "status": "spoofed"},
	}
	vars := domain.BuildEvaluationContext(u)

	assert.Equal(t, 10, vars["amount"])
	assert.Equal(t, "ACTIVE", vars["status"])
	assert.Equal(t, int64(3), vars["child_count"])
	assert.Equal(t, int64(1), vars["finished_child_count"])
	assert.Equal(t, "p-1", vars["parent_id"])
	assert.Equal(t, "u-1", vars["uow_id"])
	for _, v := range vars {
		assert.NotEqual(t, "worker-7", v, "worker identity must not leak into the context")
	}

	// Mutating the context must not touch the token.
	vars["amount"] = 99
	assert.Equal(t, 10, u.Attributes["amount"])
}
