package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/youthweb/youthweb-bridge/internal/apierror"
)

func TestNullPool_ItemIsMiss(t *testing.T) {
	ctx := context.Background()
	pool := NewNullPool()

	item, err := pool.Item(ctx, "php_youthweb_api.access_token")
	require.NoError(t, err)
	assert.False(t, item.IsHit())

	has, err := pool.HasItem(ctx, "php_youthweb_api.access_token")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestNullPool_ReferenceStable(t *testing.T) {
	ctx := context.Background()
	pool := NewNullPool()

	first, err := pool.Item(ctx, "ns.key")
	require.NoError(t, err)
	first.Set("value")

	second, err := pool.Item(ctx, "ns.key")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "value", second.Get())
}

func TestNullPool_SaveFails(t *testing.T) {
	ctx := context.Background()
	pool := NewNullPool()

	item, err := pool.Item(ctx, "ns.key")
	require.NoError(t, err)

	err = pool.Save(ctx, item.Set("token"))
	assert.ErrorIs(t, err, ErrNoCacheProvider)

	var cfgErr apierror.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "a cache provider is needed for requesting protected API endpoints", cfgErr.Message)
}

func TestNullPool_Commit(t *testing.T) {
	ctx := context.Background()
	pool := NewNullPool()

	assert.NoError(t, pool.Commit(ctx), "empty queue")

	item, err := pool.Item(ctx, "ns.key")
	require.NoError(t, err)
	require.NoError(t, pool.SaveDeferred(ctx, item.Set("token")))

	assert.ErrorIs(t, pool.Commit(ctx), ErrNoCacheProvider)
	assert.NoError(t, pool.Commit(ctx), "queue is drained after a failed commit")
}

func TestNullPool_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	pool := NewNullPool()

	assert.NoError(t, pool.DeleteItem(ctx, "ns.missing"))

	item, err := pool.Item(ctx, "ns.key")
	require.NoError(t, err)
	item.Set("value")

	require.NoError(t, pool.DeleteItem(ctx, "ns.key"))
	has, err := pool.HasItem(ctx, "ns.key")
	require.NoError(t, err)
	assert.False(t, has)

	other, err := pool.Item(ctx, "ns.other")
	require.NoError(t, err)
	other.Set("value")

	require.NoError(t, pool.Clear(ctx))
	assert.False(t, other.IsHit())
	assert.NoError(t, pool.Close())
}

func TestNullPool_InvalidKey(t *testing.T) {
	ctx := context.Background()
	pool := NewNullPool()

	var invalid apierror.InvalidArgumentError

	_, err := pool.Item(ctx, "bad key")
	assert.ErrorAs(t, err, &invalid)

	assert.ErrorAs(t, pool.DeleteItem(ctx, "bad:key"), &invalid)
	assert.ErrorAs(t, pool.SaveDeferred(ctx, NewItem("")), &invalid)
}
