package cache

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/tink-crypto/tink-go/v2/tink"
)

// sealedFormat prefixes every sealed value; the version allows a later
// change of encoding without misreading entries written by older bridges.
const sealedFormat = "yw1."

// sealedKeySuffix marks the storage keys of sealed entries. Sealed and plain
// entries never share a key, and both stay below the cache namespace.
const sealedKeySuffix = ".sealed"

// ErrNotSealed is returned when a stored value was not written by a Sealer,
// for example by a bridge running without encryption.
var ErrNotSealed = errors.New("cache entry is not sealed")

// Sealer protects serialized entries before they reach Valkey. The logical
// cache key (namespace included) is bound to every sealed value, so a value
// copied to another key cannot be opened there.
type Sealer interface {
	Seal(ctx context.Context, key string, plaintext []byte) (string, error)
	Open(ctx context.Context, key string, sealed string) ([]byte, error)

	// StorageKey maps a logical cache key to the Valkey key.
	StorageKey(key string) string

	Close() error
}

// plainSealer stores entries as they are.
type plainSealer struct{}

func (plainSealer) Seal(_ context.Context, _ string, plaintext []byte) (string, error) {
	return string(plaintext), nil
}

func (plainSealer) Open(_ context.Context, _ string, sealed string) ([]byte, error) {
	return []byte(sealed), nil
}

func (plainSealer) StorageKey(key string) string { return key }

func (plainSealer) Close() error { return nil }

// AEADSealer seals entries with a Tink AEAD primitive.
type AEADSealer struct {
	aead tink.AEAD
}

func NewAEADSealer(aead tink.AEAD) *AEADSealer {
	return &AEADSealer{aead: aead}
}

func (s *AEADSealer) Seal(_ context.Context, key string, plaintext []byte) (string, error) {
	ciphertext, err := s.aead.Encrypt(plaintext, []byte(key))
	if err != nil {
		return "", fmt.Errorf("sealing %q: %w", key, err)
	}

	return sealedFormat + base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

func (s *AEADSealer) Open(_ context.Context, key string, sealed string) ([]byte, error) {
	encoded, ok := strings.CutPrefix(sealed, sealedFormat)
	if !ok {
		return nil, ErrNotSealed
	}

	ciphertext, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("sealed value for %q is malformed: %w", key, err)
	}

	plaintext, err := s.aead.Decrypt(ciphertext, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", key, err)
	}

	return plaintext, nil
}

func (s *AEADSealer) StorageKey(key string) string {
	return key + sealedKeySuffix
}

// Close releases the primitive when it holds resources, as a refreshing
// keyset does.
func (s *AEADSealer) Close() error {
	if closer, ok := s.aead.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
