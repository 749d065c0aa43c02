//go:build integration

package testhelpers

import (
	"context"
	"crypto/rand"
	"path/filepath"
	"slices"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/valkey-io/valkey-go"
	"github.com/youthweb/youthweb-bridge/internal/cache/encryption"
	"github.com/youthweb/youthweb-bridge/internal/config"
)

const (
	valkeyImage = "valkey/valkey:9-alpine"
	valkeyPort  = nat.Port("6379/tcp")
)

// ValkeyInstance is a disposable, password protected Valkey server.
type ValkeyInstance struct {
	// Cache points a bridge at the server. Entries are sealed with a keyset
	// written below t.TempDir() unless Unsealed is given.
	Cache config.CacheConfig

	client valkey.Client
}

// ValkeyOption adjusts the cache configuration handed to the bridge.
type ValkeyOption func(cfg *config.CacheConfig)

// Unsealed stores entries without encryption.
func Unsealed() ValkeyOption {
	return func(cfg *config.CacheConfig) {
		cfg.Encryption = config.CacheEncryptionConfig{}
	}
}

// Namespaced replaces the default php_youthweb_api namespace.
func Namespaced(namespace string) ValkeyOption {
	return func(cfg *config.CacheConfig) {
		cfg.Namespace = namespace
	}
}

// StartValkey runs a Valkey container for the duration of the test.
func StartValkey(t *testing.T, opts ...ValkeyOption) *ValkeyInstance {
	t.Helper()
	ctx := context.Background()

	password := rand.Text()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        valkeyImage,
			Cmd:          []string{"valkey-server", "--requirepass", password, "--save", ""},
			ExposedPorts: []string{string(valkeyPort)},
			WaitingFor: wait.ForAll(
				wait.ForLog("Ready to accept connections"),
				wait.ForListeningPort(valkeyPort),
			),
		},
		Started: true,
		Logger:  log.TestLogger(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	mapped, err := container.MappedPort(ctx, valkeyPort)
	require.NoError(t, err)

	// 127.0.0.1 rather than localhost, which may resolve to IPv6 first
	address := "127.0.0.1:" + mapped.Port()

	keysetFile := filepath.Join(t.TempDir(), "cache-keyset.json")
	require.NoError(t, encryption.WriteCleartextKeyset(keysetFile))

	cfg := config.CacheConfig{
		Type:      "valkey",
		Namespace: "php_youthweb_api",
		MaxSize:   100,
		Valkey: config.ValkeyConfig{
			Address:  address,
			Username: "default",
			Password: password,
		},
		Encryption: config.CacheEncryptionConfig{
			Enabled:    true,
			KeysetFile: keysetFile,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:  []string{address},
		Username:     "default",
		Password:     password,
		DisableCache: true,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return &ValkeyInstance{Cache: cfg, client: client}
}

// Client is a direct connection to the server, bypassing any bridge cache.
func (v *ValkeyInstance) Client() valkey.Client {
	return v.client
}

// StoredKeys lists the keys below the cache namespace, sorted.
func (v *ValkeyInstance) StoredKeys(t *testing.T) []string {
	t.Helper()

	cmd := v.client.B().Keys().Pattern(v.Cache.Namespace + ".*").Build()
	keys, err := v.client.Do(context.Background(), cmd).AsStrSlice()
	require.NoError(t, err)

	slices.Sort(keys)
	return keys
}

// StoredValue returns the raw value of key as the bridge wrote it.
func (v *ValkeyInstance) StoredValue(t *testing.T, key string) string {
	t.Helper()

	value, err := v.client.Do(context.Background(), v.client.B().Get().Key(key).Build()).ToString()
	require.NoError(t, err)
	return value
}
