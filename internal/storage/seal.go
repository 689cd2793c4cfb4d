package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/local/minitools/internal/store"
)

// sealMagic prefixes sealed payloads:
// magic(8) + salt(16) + nonce(12) + ciphertext + tag(16)
const sealMagic = "GCM3NCR0"

// DefaultIterations is the PBKDF2 work factor.
const DefaultIterations = 100000

// ErrNotSealed is returned by Open for data without the seal header.
var ErrNotSealed = errors.New("data is not sealed")

// Sealed wraps an artifact store and encrypts everything at rest with a
// key derived from a shared secret.
type Sealed struct {
	inner      store.ArtifactStore
	secret     []byte
	iterations int
}

// NewSealed returns inner unchanged when secret is empty.
func NewSealed(inner store.ArtifactStore, secret string) store.ArtifactStore {
	if secret == "" {
		return inner
	}
	return &Sealed{inner: inner, secret: []byte(secret), iterations: DefaultIterations}
}

func (s *Sealed) Put(ctx context.Context, key string, data []byte) error {
	sealed, err := seal(data, s.secret, s.iterations)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, key, sealed)
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return open(b, s.secret, s.iterations)
}

func (s *Sealed) Delete(ctx context.Context, key string) error { return s.inner.Delete(ctx, key) }

func newGCM(secret, salt []byte, iterations int) (cipher.AEAD, error) {
	key := pbkdf2.Key(secret, salt, iterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func seal(data, secret []byte, iterations int) ([]byte, error) {
	salt := make([]byte, 16)
	nonce := make([]byte, 12)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	gcm, err := newGCM(secret, salt, iterations)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(sealMagic)+len(salt)+len(nonce)+len(data)+gcm.Overhead())
	out = append(out, sealMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return gcm.Seal(out, nonce, data, nil), nil
}

func open(b, secret []byte, iterations int) ([]byte, error) {
	if len(b) < 8+16+12+16 || string(b[:8]) != sealMagic {
		return nil, ErrNotSealed
	}
	salt := b[8:24]
	nonce := b[24:36]
	gcm, err := newGCM(secret, salt, iterations)
	if err != nil {
		return nil, err
	}
	plain, err := gcm.Open(nil, nonce, b[36:], nil)
	if err != nil {
		return nil, fmt.Errorf("GCM decryption failed: %w", err)
	}
	return plain, nil
}
