//go:build integration

package main

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youthweb/youthweb-bridge/internal/config"
	"github.com/youthweb/youthweb-bridge/internal/testhelpers"
)

// WithValkeyCache runs the bridge against the given Valkey instance.
func WithValkeyCache(instance *testhelpers.ValkeyInstance) BridgeTestHarnessOption {
	return func(t *testing.T, cfg *config.Config) {
		cfg.Cache = instance.Cache
	}
}

func TestBridgeValkey_AuthorizationFlow(t *testing.T) {
	valkey := testhelpers.StartValkey(t)
	h := NewBridgeTestHarness(t, WithValkeyCache(valkey))

	assert.Equal(t, false, h.Get("/status").JSON(t)["authorized"])

	h.Authorize()

	assert.Equal(t, true, h.Get("/status").JSON(t)["authorized"])

	// the consumed state is gone; only the sealed token remains
	assert.Equal(t, []string{"php_youthweb_api.access_token.sealed"}, valkey.StoredKeys(t))
	assert.NotContains(t, valkey.StoredValue(t, "php_youthweb_api.access_token.sealed"), h.YouthwebMock.Token())

	resp := h.Get("/me")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Bearer test-access-token", h.YouthwebMock.LastAuthHeader())
}

func TestBridgeValkey_TokenSurvivesRestart(t *testing.T) {
	shared := WithValkeyCache(testhelpers.StartValkey(t, testhelpers.Namespaced("bridge_restart")))

	first := NewBridgeTestHarness(t, shared)
	first.Authorize()

	// a second bridge sharing the cache sees the stored token
	second := NewBridgeTestHarness(t, shared)
	require.Equal(t, first.YouthwebMock.Token(), second.YouthwebMock.Token())

	assert.Equal(t, true, second.Get("/status").JSON(t)["authorized"])
}
