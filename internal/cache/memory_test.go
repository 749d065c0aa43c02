package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetMiss(t *testing.T) {
	cache, err := NewMemory[string](time.Minute, 100)
	require.NoError(t, err)

	value, found, err := cache.Get(context.Background(), "nonexistent")

	assert.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, value)
}

func TestMemory_SetGetInvalidate(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemory[string](time.Minute, 100)
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "ns.key", "value", 0))

	value, found, err := cache.Get(ctx, "ns.key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", value)

	require.NoError(t, cache.Invalidate(ctx, "ns.key"))

	_, found, err = cache.Get(ctx, "ns.key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemory_PerEntryTTL(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemory[string](time.Hour, 100)
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "ns.short", "short", 50*time.Millisecond))
	require.NoError(t, cache.Set(ctx, "ns.default", "default", 0))

	require.Eventually(t, func() bool {
		_, found, _ := cache.Get(ctx, "ns.short")
		return !found
	}, time.Second, 10*time.Millisecond)

	_, found, err := cache.Get(ctx, "ns.default")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestMemory_DefaultTTL(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemory[string](50*time.Millisecond, 100)
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "ns.key", "value", 0))

	require.Eventually(t, func() bool {
		_, found, _ := cache.Get(ctx, "ns.key")
		return !found
	}, time.Second, 10*time.Millisecond)
}

func TestMemory_Stats(t *testing.T) {
	ctx := context.Background()
	cache, err := NewMemory[string](time.Minute, 100)
	require.NoError(t, err)

	require.NoError(t, cache.Set(ctx, "ns.key", "value", 0))
	_, _, _ = cache.Get(ctx, "ns.key")
	_, _, _ = cache.Get(ctx, "ns.missing")

	stats := cache.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)

	assert.NoError(t, cache.Close())
}
