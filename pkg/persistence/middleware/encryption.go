package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/domain"
	"github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001/pkg/ports"
)

// EnvelopeKey is the single attribute an encrypted record carries at rest.
const EnvelopeKey = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	ports.UOWStore
	keys *keyring
}

// NewEncryptionMiddleware creates a middleware that encrypts unit of work
// attributes at rest using AES-GCM. Status, location and the content hash stay
// in clear so routing queries and integrity checks keep working; the hash is
// always computed over the decrypted attributes.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	keys, err := newKeyring(config)
	if err != nil {
		panic(err)
	}
	return func(next ports.UOWStore) ports.UOWStore {
		return &encryptionMiddleware{UOWStore: next, keys: keys}
	}
}

func (m *encryptionMiddleware) Create(ctx context.Context, uow *domain.UOW, entry *domain.HistoryEntry) error {
	sealed, err := m.seal(uow)
	if err != nil {
		return err
	}
	return m.UOWStore.Create(ctx, sealed, entry)
}

func (m *encryptionMiddleware) Update(ctx context.Context, uow *domain.UOW, expectedVersion int64, entry *domain.HistoryEntry) error {
	sealed, err := m.seal(uow)
	if err != nil {
		return err
	}
	return m.UOWStore.Update(ctx, sealed, expectedVersion, entry)
}

func (m *encryptionMiddleware) Get(ctx context.Context, id string) (*domain.UOW, error) {
	u, err := m.UOWStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.open(u)
}

func (m *encryptionMiddleware) ListChildren(ctx context.Context, parentID string) ([]*domain.UOW, error) {
	us, err := m.UOWStore.ListChildren(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return m.openAll(us)
}

func (m *encryptionMiddleware) ListByStatus(ctx context.Context, status domain.Status, location string) ([]*domain.UOW, error) {
	us, err := m.UOWStore.ListByStatus(ctx, status, location)
	if err != nil {
		return nil, err
	}
	return m.openAll(us)
}

func (m *encryptionMiddleware) seal(u *domain.UOW) (*domain.UOW, error) {
	plainText, err := json.Marshal(u.Attributes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal attributes: %w", err)
	}
	ciphertext, err := m.keys.seal(plainText)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt attributes: %w", err)
	}

	envelope := u.Clone()
	envelope.Attributes = map[string]any{
		EnvelopeKey: base64.StdEncoding.EncodeToString(ciphertext),
	}
	return envelope, nil
}

func (m *encryptionMiddleware) open(u *domain.UOW) (*domain.UOW, error) {
	encryptedStr, ok := u.Attributes[EnvelopeKey].(string)
	if !ok {
		// Fail secure: a configured key means every record must be sealed.
		return nil, errors.New("unit of work is missing encrypted data envelope")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := m.keys.open(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt attributes: %w", err)
	}

	attrs, err := domain.DecodeAttributes(plainText)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted attributes: %w", err)
	}
	u.Attributes = attrs
	return u, nil
}

func (m *encryptionMiddleware) openAll(us []*domain.UOW) ([]*domain.UOW, error) {
	for i, u := range us {
		opened, err := m.open(u)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", u.ID, err)
		}
		us[i] = opened
	}
	return us, nil
}

// keyring holds one AEAD per key. The first one seals; all of them are tried
// in order to open.
type keyring struct {
	aeads []cipher.AEAD
}

func newKeyring(config EncryptionConfig) (*keyring, error) {
	k := &keyring{}
	for i, key := range append([][]byte{config.ActiveKey}, config.FallbackKeys...) {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", i, err)
		}
		k.aeads = append(k.aeads, gcm)
	}
	return k, nil
}

// seal returns nonce || ciphertext under the active key.
func (k *keyring) seal(plaintext []byte) ([]byte, error) {
	active := k.aeads[0]
	nonce := make([]byte, active.NonceSize(), active.NonceSize()+len(plaintext)+active.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return active.Seal(nonce, nonce, plaintext, nil), nil
}

func (k *keyring) open(sealed []byte) ([]byte, error) {
	for _, aead := range k.aeads {
		n := aead.NonceSize()
		if len(sealed) < n {
			return nil, errors.New("ciphertext too short")
		}
		if plain, err := aead.Open(nil, sealed[:n], sealed[n:], nil); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}
