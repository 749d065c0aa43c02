package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/valkey-io/valkey-go"
)

// Distributed implements Store using Valkey with server-assisted
// client-side caching.
// The generic type T represents the value type being cached.
type Distributed[T any] struct {
	client valkey.Client
	ttl    time.Duration
	sealer Sealer
}

// NewDistributed creates a new Valkey-backed cache with server-assisted client-side caching.
// The ttl parameter is applied to writes that carry no ttl of their own.
// A nil sealer stores entries unsealed.
func NewDistributed[T any](valkeyClient valkey.Client, ttl time.Duration, sealer Sealer) (*Distributed[T], error) {
	if sealer == nil {
		sealer = plainSealer{}
	}
	return &Distributed[T]{
		client: valkeyClient,
		ttl:    ttl,
		sealer: sealer,
	}, nil
}

// Get retrieves a value from the cache using server-assisted client-side caching.
// Returns the value, whether it was found, and any error.
// An entry that cannot be opened is reported as an error and removed, so the
// next lookup is a plain miss.
func (d *Distributed[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	storageKey := d.sealer.StorageKey(key)

	// The client-side copy never outlives the server entry: valkey-go caps
	// the local ttl at the key's PTTL.
	cmd := d.client.B().Get().Key(storageKey).Cache()
	result := d.client.DoCache(ctx, cmd, d.ttl)

	if err := result.Error(); err != nil {
		// Key not found is not an error in our semantics
		if valkey.IsValkeyNil(err) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("failed to get cached value: %w", err)
	}

	val, err := result.ToString()
	if err != nil {
		return zero, false, fmt.Errorf("failed to convert cached value to string: %w", err)
	}

	data, err := d.sealer.Open(ctx, key, val)
	if err != nil {
		if delErr := d.client.Do(ctx, d.client.B().Del().Key(storageKey).Build()).Error(); delErr != nil {
			log.Warn().Err(delErr).Str("key", key).Msg("unreadable cache entry could not be removed")
		}

		return zero, false, fmt.Errorf("cache entry %q unreadable: %w", key, err)
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return zero, false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return value, true, nil
}

// Set stores a value in the cache. The value is JSON-serialized before
// storage.
func (d *Distributed[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	cmd, err := d.setCommand(ctx, key, value, ttl)
	if err != nil {
		return err
	}

	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set cached value: %w", err)
	}
	return nil
}

// SetBatch writes all entries in a single pipelined round trip.
func (d *Distributed[T]) SetBatch(ctx context.Context, writes []Write[T]) error {
	cmds := make(valkey.Commands, 0, len(writes))
	for _, w := range writes {
		cmd, err := d.setCommand(ctx, w.Key, w.Value, w.TTL)
		if err != nil {
			return err
		}
		cmds = append(cmds, cmd)
	}

	for i, result := range d.client.DoMulti(ctx, cmds...) {
		if err := result.Error(); err != nil {
			return fmt.Errorf("failed to set cached value %q: %w", writes[i].Key, err)
		}
	}

	return nil
}

func (d *Distributed[T]) setCommand(ctx context.Context, key string, value T, ttl time.Duration) (valkey.Completed, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return valkey.Completed{}, fmt.Errorf("failed to marshal value: %w", err)
	}

	sealed, err := d.sealer.Seal(ctx, key, data)
	if err != nil {
		return valkey.Completed{}, err
	}

	if ttl <= 0 {
		ttl = d.ttl
	}

	return d.client.B().Set().
		Key(d.sealer.StorageKey(key)).
		Value(sealed).
		PxMilliseconds(max(ttl.Milliseconds(), 1)).
		Build(), nil
}

// Invalidate removes a value from the cache.
func (d *Distributed[T]) Invalidate(ctx context.Context, key string) error {
	cmd := d.client.B().Del().Key(d.sealer.StorageKey(key)).Build()
	if err := d.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to invalidate cached value: %w", err)
	}
	return nil
}

// Close releases the sealer and the valkey client.
func (d *Distributed[T]) Close() error {
	if err := d.sealer.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing cache sealer")
	}
	d.client.Close()
	return nil
}
