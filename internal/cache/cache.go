package cache

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/youthweb/youthweb-bridge/internal/apierror"
)

// Pool is a pool of cache items. Items are created lazily: asking for a key
// that has never been stored returns a miss item rather than an error. Within
// the lifetime of a pool the same *Item is returned for the same key, so
// changes made through Item.Set are visible to later lookups before the item
// is saved.
type Pool interface {
	// Item returns the item for key, creating a miss item if necessary.
	Item(ctx context.Context, key string) (*Item, error)

	// HasItem reports whether key currently holds a hit.
	HasItem(ctx context.Context, key string) (bool, error)

	// DeleteItem removes key. Deleting a missing key is not an error.
	DeleteItem(ctx context.Context, key string) error

	// Save persists item immediately.
	Save(ctx context.Context, item *Item) error

	// SaveDeferred queues item until the next Commit.
	SaveDeferred(ctx context.Context, item *Item) error

	// Commit persists all queued items.
	Commit(ctx context.Context) error

	// Clear removes every item known to the pool.
	Clear(ctx context.Context) error

	// Close releases any resources held by the pool.
	Close() error
}

// Store defines the interface for key/value backends used by StorePool.
// The generic type T represents the value type being cached.
type Store[T any] interface {
	// Get retrieves a value from the cache.
	// Returns the value, whether it was found, and any error.
	Get(ctx context.Context, key string) (T, bool, error)

	// Set stores a value in the cache. A ttl of zero or less applies the
	// store's default expiry.
	Set(ctx context.Context, key string, value T, ttl time.Duration) error

	// Invalidate removes a value from the cache.
	Invalidate(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// Write is a single queued write for a Batcher.
type Write[T any] struct {
	Key   string
	Value T
	TTL   time.Duration
}

// Batcher is implemented by stores that can persist several writes in one
// round trip.
type Batcher[T any] interface {
	SetBatch(ctx context.Context, writes []Write[T]) error
}

// Entry is the stored form of an Item.
type Entry struct {
	Value     any       `json:"value"`
	ExpiresAt time.Time `json:"expiresAt,omitzero"`
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_.]+$`)

// ValidateKey rejects empty keys and keys containing characters outside
// [A-Za-z0-9_.].
func ValidateKey(key string) error {
	if key == "" {
		return apierror.InvalidArgumentError{Message: "cache key must not be empty"}
	}
	if !keyPattern.MatchString(key) {
		return apierror.InvalidArgumentError{
			Message: fmt.Sprintf("cache key %q contains unsupported characters: only A-Z, a-z, 0-9, _ and . are allowed", key),
		}
	}
	return nil
}
