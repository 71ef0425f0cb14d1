package integrity_test

import (
	"encoding/json"
	"testing"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/integrity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_DeterministicAcrossKeyOrderAndNumberTypes(t *testing.T) {
	a := map[string]any{"amount": 75000, "region": "EU", "nested": map[string]any{"z": 1, "a": []any{1.0, "x"}}}
	b := map[string]any{"nested": map[string]any{"a": []any{int64(1), "x"}, "z": 1.0}, "region": "EU", "amount": float64(75000)}
	c := map[string]any{"amount": json.Number("75000"), "region": "EU", "nested": map[string]any{"z": json.Number("1"), "a": []any{1, "x"}}}

	ha, err := integrity.Hash(a)
	require.NoError(t, err)
	hb, err := integrity.Hash(b)
	require.NoError(t, err)
	hc, err := integrity.Hash(c)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Equal(t, ha, hc)
	assert.Len(t, ha, 64)
}

func TestHash_DistinguishesValues(t *testing.T) {
	h1 := integrity.MustHash(map[string]any{"amount": 1})
	h2 := integrity.MustHash(map[string]any{"amount": 1.5})
	h3 := integrity.MustHash(map[string]any{"amount": "1"})
	assert.NotEqual(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}

func TestHash_NilAndEmptyAreEqual(t *testing.T) {
	assert.Equal(t, integrity.MustHash(nil), integrity.MustHash(map[string]any{}))
}

func TestHash_RoundTripThroughJSON(t *testing.T) {
	attrs := map[string]any{"amount": 42, "ratio": 0.25, "tags": []string{"a", "b"}, "ok": true}
	before := integrity.MustHash(attrs)

	raw, err := json.Marshal(attrs)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, before, integrity.MustHash(decoded))
}

func TestVerify_DetectsOutOfBandMutation(t *testing.T) {
	u := &domain.UOW{ID: "u-1", Attributes: map[string]any{"amount": 10}}
	u.ContentHash = integrity.MustHash(u.Attributes)

	res, err := integrity.Verify(u)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
	assert.NoError(t, integrity.Check(u))

	u.Attributes["amount"] = 11
	res, err = integrity.Verify(u)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	assert.NotEqual(t, res.StoredHash, res.CurrentHash)

	err = integrity.Check(u)
	assert.ErrorIs(t, err, domain.ErrIntegrityDrift)
	got, ok := integrity.IsDrift(err)
	assert.True(t, ok)
	assert.Equal(t, res, got)
}

func TestVerifyChain(t *testing.T) {
	h := func(s string) *string { return &s }
	good := []domain.HistoryEntry{
		{Seq: 1, PreviousStateHash: nil, NewStateHash: "a"},
		{Seq: 2, PreviousStateHash: h("a"), NewStateHash: "b"},
		{Seq: 3, PreviousStateHash: h("b"), NewStateHash: "b"},
	}
	assert.Empty(t, integrity.VerifyChain(good))

	broken := []domain.HistoryEntry{
		{Seq: 1, PreviousStateHash: h("x"), NewStateHash: "a"},
		{Seq: 2, PreviousStateHash: h("a"), NewStateHash: "b"},
		{Seq: 3, PreviousStateHash: h("zzz"), NewStateHash: "c"},
	}
	breaks := integrity.VerifyChain(broken)
	require.Len(t, breaks, 2)
	assert.Equal(t, int64(1), breaks[0].Seq)
	assert.Equal(t, int64(3), breaks[1].Seq)
	assert.Equal(t, "b", *breaks[1].Expected)
}
