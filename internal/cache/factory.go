package cache

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/valkey-io/valkey-go"
	"github.com/youthweb/youthweb-bridge/internal/cache/encryption"
	"github.com/youthweb/youthweb-bridge/internal/config"
)

// DefaultTTL bounds entries that were saved without an expiry.
const DefaultTTL = 30 * 24 * time.Hour

// NewFromConfig creates a cache pool based on the provided configuration.
//
// The cache type must be "null", "memory" or "valkey". Any other value returns
// an error. For "valkey", cacheConfig.Valkey.Address must be provided.
func NewFromConfig(ctx context.Context, cacheConfig config.CacheConfig) (Pool, error) {
	switch cacheConfig.Type {
	case "null":
		log.Warn().
			Str("cache_type", "null").
			Msg("no cache configured: authorized endpoints will be unavailable")

		return NewNullPool(), nil

	case "valkey":
		log.Info().
			Str("cache_type", "valkey").
			Str("address", cacheConfig.Valkey.Address).
			Bool("tls", cacheConfig.Valkey.TLS).
			Bool("encryption", cacheConfig.Encryption.Enabled).
			Msg("initializing distributed cache")

		store, err := newValkeyStore(ctx, cacheConfig)
		if err != nil {
			return nil, err
		}

		return NewStorePool(NewInstrumented(store, "distributed")), nil

	case "memory":
		log.Info().
			Str("cache_type", "memory").
			Int("max_size", cacheConfig.MaxSize).
			Msg("initializing in-memory cache")

		memory, err := NewMemory[Entry](DefaultTTL, cacheConfig.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}

		return NewStorePool(NewInstrumented(memory, "memory")), nil

	default:
		return nil, fmt.Errorf("invalid cache type %q: must be one of \"null\", \"memory\" or \"valkey\"", cacheConfig.Type)
	}
}

func newValkeyStore(ctx context.Context, cacheConfig config.CacheConfig) (*Distributed[Entry], error) {
	if cacheConfig.Valkey.Address == "" {
		return nil, fmt.Errorf("valkey address is required when cache type is valkey")
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{cacheConfig.Valkey.Address},
		AuthCredentialsFn: StaticCredentialsFn(
			cacheConfig.Valkey.Username,
			cacheConfig.Valkey.Password,
		),
	}

	if cacheConfig.Valkey.TLS {
		valkeyOpts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	valkeyClient, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	sealer, err := newSealer(ctx, cacheConfig.Encryption)
	if err != nil {
		valkeyClient.Close()
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}

	distributed, err := NewDistributed[Entry](valkeyClient, DefaultTTL, sealer)
	if err != nil {
		if sealer != nil {
			_ = sealer.Close()
		}
		valkeyClient.Close()
		return nil, fmt.Errorf("failed to create distributed cache: %w", err)
	}

	return distributed, nil
}

// newSealer returns nil when encryption is disabled.
func newSealer(ctx context.Context, cfg config.CacheEncryptionConfig) (Sealer, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var (
		aead *encryption.RefreshableAEAD
		err  error
	)
	switch {
	case cfg.KeysetFile != "":
		log.Warn().Str("path", cfg.KeysetFile).Msg("cache encryption using cleartext keyset file")
		aead, err = encryption.NewRefreshableAEADFromFile(ctx, cfg.KeysetFile)
	default:
		aead, err = encryption.NewRefreshableAEAD(ctx, cfg.KeysetURI, cfg.KMSEnvelopeKeyURI)
	}
	if err != nil {
		return nil, err
	}

	log.Info().Msg("cache encryption enabled with automatic keyset refresh")

	return NewInstrumentedSealer(NewAEADSealer(aead)), nil
}
