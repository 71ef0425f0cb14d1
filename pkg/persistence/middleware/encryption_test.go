package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/adapters/memory"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/persistence/middleware"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	_, err := io.ReadFull(rand.Reader, k)
	require.NoError(t, err)
	return k
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ports.RunUOWStoreContract(t, mw(memory.NewStore()))
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	ctx := context.Background()

	u := &domain.UOW{
		ID:         "secret-uow",
		Status:     domain.StatusPending,
		Location:   "review",
		Attributes: map[string]any{"iban": "DE89370400440532013000"},
		Version:    1,
	}
	require.NoError(t, secure.Create(ctx, u, nil))
	assert.Equal(t, "DE89370400440532013000", u.Attributes["iban"], "caller's copy is untouched")

	raw, err := underlying.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.NotContains(t, raw.Attributes, "iban")
	assert.Contains(t, raw.Attributes, middleware.EnvelopeKey)
	assert.Equal(t, domain.StatusPending, raw.Status, "routing fields stay in clear")

	loaded, err := secure.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "DE89370400440532013000", loaded.Attributes["iban"])
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	oldStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlying)
	u := &domain.UOW{ID: "rotate", Status: domain.StatusPending, Attributes: map[string]any{"data": "old"}, Version: 1}
	require.NoError(t, oldStore.Create(ctx, u, nil))

	newStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlying)

	loaded, err := newStore.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "old", loaded.Attributes["data"])

	loaded.Attributes["data"] = "new"
	loaded.Version = 2
	require.NoError(t, newStore.Update(ctx, loaded, 1, nil))

	_, err = oldStore.Get(ctx, u.ID)
	assert.Error(t, err, "old key alone cannot read records sealed with the new key")
}

func TestEncryptionMiddleware_RejectsPlainRecords(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, underlying.Create(ctx, &domain.UOW{ID: "plain", Attributes: map[string]any{"a": "b"}, Version: 1}, nil))

	secure := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlying)
	_, err := secure.Get(ctx, "plain")
	assert.Error(t, err)
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	assert.Panics(t, func() {
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	})
}
