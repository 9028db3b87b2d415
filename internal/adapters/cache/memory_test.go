package cache

import (
	"context"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/catalog-sync-service/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_GetSet(t *testing.T) {
	// Arrange
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	value := []byte("page")

	// Act
	require.NoError(t, c.Set(ctx, "catalog:list:pageNum=1", value, time.Minute))
	value[0] = 'X'
	got, err := c.Get(ctx, "catalog:list:pageNum=1")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []byte("page"), got)
}

func TestMemoryCache_Miss(t *testing.T) {
	c := NewMemoryCache(time.Minute)

	_, err := c.Get(context.Background(), "missing")

	assert.ErrorIs(t, err, interfaces.ErrCacheMiss)
}

func TestMemoryCache_Expiration(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Millisecond))

	time.Sleep(5 * time.Millisecond)
	_, err := c.Get(ctx, "k")

	assert.ErrorIs(t, err, interfaces.ErrCacheMiss)
}

func TestMemoryCache_DeleteByPattern(t *testing.T) {
	// Arrange
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	for _, key := range []string{"catalog:list:a", "catalog:list:b", "sync:summary"} {
		require.NoError(t, c.Set(ctx, key, []byte("1"), time.Minute))
	}

	// Act
	err := c.DeleteByPattern(ctx, "catalog:*")

	// Assert
	require.NoError(t, err)
	_, err = c.Get(ctx, "catalog:list:a")
	assert.ErrorIs(t, err, interfaces.ErrCacheMiss)
	_, err = c.Get(ctx, "sync:summary")
	assert.NoError(t, err)
}
