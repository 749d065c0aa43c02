package cache

import "time"

// Item is a single cache entry. A nil value is a legitimate cached value, so
// presence is tracked separately by the hit flag.
type Item struct {
	key       string
	value     any
	hit       bool
	expiresAt time.Time

	// dirty is set by local changes not yet written to a store.
	dirty bool
}

// NewItem creates a miss item for key.
func NewItem(key string) *Item {
	return &Item{key: key}
}

// Key returns the full key of the item.
func (i *Item) Key() string {
	return i.key
}

// Get returns the cached value, or nil when the item is a miss.
func (i *Item) Get() any {
	if !i.IsHit() {
		return nil
	}
	return i.value
}

// String returns the cached value if it is a string.
func (i *Item) String() (string, bool) {
	return i.StringAt(time.Now())
}

// StringAt is String judged at now rather than the wall clock.
func (i *Item) StringAt(now time.Time) (string, bool) {
	if !i.IsHitAt(now) {
		return "", false
	}
	s, ok := i.value.(string)
	return s, ok
}

// IsHit reports whether the item holds a value that has not expired.
func (i *Item) IsHit() bool {
	return i.IsHitAt(time.Now())
}

// IsHitAt reports whether the item holds a value that has not expired at now.
func (i *Item) IsHitAt(now time.Time) bool {
	if !i.hit {
		return false
	}
	return i.expiresAt.IsZero() || now.Before(i.expiresAt)
}

// Set stores value in the item and marks it as a hit. The value is not
// persisted until the item is saved to its pool.
func (i *Item) Set(value any) *Item {
	i.value = value
	i.hit = true
	i.dirty = true
	return i
}

// ExpiresAt sets an absolute expiry. The zero time removes the expiry.
func (i *Item) ExpiresAt(t time.Time) *Item {
	i.expiresAt = t
	i.dirty = true
	return i
}

// ExpiresAfter sets an expiry relative to now. A duration of zero or less
// removes the expiry.
func (i *Item) ExpiresAfter(d time.Duration) *Item {
	if d <= 0 {
		return i.ExpiresAt(time.Time{})
	}
	return i.ExpiresAt(time.Now().Add(d))
}

// Expiration returns the absolute expiry, or the zero time if there is none.
func (i *Item) Expiration() time.Time {
	return i.expiresAt
}

func (i *Item) entry() Entry {
	return Entry{Value: i.value, ExpiresAt: i.expiresAt}
}

// ttl returns the remaining lifetime and whether the item has already
// expired. A zero ttl with expired false means no expiry was set.
func (i *Item) ttl() (time.Duration, bool) {
	if i.expiresAt.IsZero() {
		return 0, false
	}
	remaining := time.Until(i.expiresAt)
	return remaining, remaining <= 0
}

func (i *Item) load(entry Entry) {
	i.value = entry.Value
	i.hit = true
	i.expiresAt = entry.ExpiresAt
	i.dirty = false
}

func (i *Item) reset() {
	i.value = nil
	i.hit = false
	i.expiresAt = time.Time{}
	i.dirty = false
}
