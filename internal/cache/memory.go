package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
)

type timed[T any] struct {
	value T
	ttl   time.Duration
}

// Memory is an in-memory cache implementation using otter. Each entry
// expires after the ttl it was written with, or after the default ttl when
// none was given.
// The generic type T represents the value type being cached.
type Memory[T any] struct {
	cache   *otter.Cache[string, timed[T]]
	ttl     time.Duration
	counter *stats.Counter
}

// NewMemory creates a new in-memory cache with the specified default TTL and
// max size.
func NewMemory[T any](ttl time.Duration, maxSize int) (*Memory[T], error) {
	counter := stats.NewCounter()
	cache := otter.Must(&otter.Options[string, timed[T]]{
		MaximumSize:   maxSize,
		StatsRecorder: counter,
		ExpiryCalculator: otter.ExpiryWritingFunc[string, timed[T]](func(entry otter.Entry[string, timed[T]]) time.Duration {
			if entry.Value.ttl > 0 {
				return entry.Value.ttl
			}
			return ttl
		}),
	})

	return &Memory[T]{
		cache:   cache,
		ttl:     ttl,
		counter: counter,
	}, nil
}

// Get retrieves a value from the cache.
// Returns the value, whether it was found, and any error.
func (m *Memory[T]) Get(ctx context.Context, key string) (T, bool, error) {
	entry, ok := m.cache.GetEntry(key)
	if !ok {
		var zero T
		return zero, false, nil
	}

	return entry.Value.value, true, nil
}

// Set stores a value in the cache.
func (m *Memory[T]) Set(ctx context.Context, key string, value T, ttl time.Duration) error {
	m.cache.Set(key, timed[T]{value: value, ttl: ttl})
	return nil
}

// Invalidate removes a value from the cache.
func (m *Memory[T]) Invalidate(ctx context.Context, key string) error {
	m.cache.Invalidate(key)
	return nil
}

// Close releases any resources held by the cache.
func (m *Memory[T]) Close() error {
	m.cache.InvalidateAll()
	return nil
}

// Stats returns a snapshot of hit and miss counters.
func (m *Memory[T]) Stats() stats.Stats {
	return m.counter.Snapshot()
}
