package cache

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youthweb/youthweb-bridge/internal/cache/encryption"
)

func newAEADSealer(t *testing.T) *AEADSealer {
	t.Helper()
	aead, err := encryption.NewTestAEAD()
	require.NoError(t, err)
	return NewAEADSealer(aead)
}

func TestPlainSealer(t *testing.T) {
	var s Sealer = plainSealer{}
	input := []byte(`{"value":"access-token"}`)

	sealed, err := s.Seal(t.Context(), "php_youthweb_api.access_token", input)
	require.NoError(t, err)
	assert.Equal(t, string(input), sealed)

	opened, err := s.Open(t.Context(), "php_youthweb_api.access_token", sealed)
	require.NoError(t, err)
	assert.Equal(t, input, opened)

	assert.Equal(t, "php_youthweb_api.state", s.StorageKey("php_youthweb_api.state"))
	assert.NoError(t, s.Close())
}

func TestAEADSealer_RoundTrip(t *testing.T) {
	s := newAEADSealer(t)
	input := []byte(`{"value":"access-token","expiresAt":"2026-10-19T12:00:00Z"}`)

	sealed, err := s.Seal(t.Context(), "php_youthweb_api.access_token", input)
	require.NoError(t, err)
	assert.Regexp(t, `^yw1\.[A-Za-z0-9_-]+$`, sealed)
	assert.NotContains(t, sealed, "access-token")

	opened, err := s.Open(t.Context(), "php_youthweb_api.access_token", sealed)
	require.NoError(t, err)
	assert.Equal(t, input, opened)
}

func TestAEADSealer_StorageKeyStaysInNamespace(t *testing.T) {
	s := newAEADSealer(t)

	key := s.StorageKey("php_youthweb_api.access_token")

	assert.Equal(t, "php_youthweb_api.access_token.sealed", key)
	assert.NoError(t, ValidateKey(key))
}

func TestAEADSealer_OpenErrors(t *testing.T) {
	s := newAEADSealer(t)

	forState, err := s.Seal(t.Context(), "php_youthweb_api.state", []byte(`"state"`))
	require.NoError(t, err)

	tests := []struct {
		name    string
		value   string
		wantErr string
	}{
		{name: "plain entry", value: `{"value":"token"}`, wantErr: ErrNotSealed.Error()},
		{name: "malformed", value: "yw1.not base64!!", wantErr: "malformed"},
		{name: "not ciphertext", value: "yw1." + base64.RawURLEncoding.EncodeToString([]byte("garbage")), wantErr: "opening"},
		{name: "sealed for another key", value: forState, wantErr: "opening"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Open(t.Context(), "php_youthweb_api.access_token", tt.value)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}

	_, err = s.Open(t.Context(), "php_youthweb_api.access_token", "plain")
	assert.ErrorIs(t, err, ErrNotSealed)
}

func TestAEADSealer_ClosesAEAD(t *testing.T) {
	aead := &closableAEAD{}
	require.NoError(t, NewAEADSealer(aead).Close())
	assert.True(t, aead.closed)

	assert.NoError(t, newAEADSealer(t).Close(), "aead without Close")
}

type closableAEAD struct {
	closed bool
}

func (c *closableAEAD) Encrypt(plaintext, _ []byte) ([]byte, error) {
	return plaintext, nil
}

func (c *closableAEAD) Decrypt(ciphertext, _ []byte) ([]byte, error) {
	return ciphertext, nil
}

func (c *closableAEAD) Close() error {
	c.closed = true
	return nil
}
