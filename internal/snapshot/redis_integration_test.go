//go:build integration

package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chronicle/pkg/testutil/containers"
)

func TestRedisCacheRoundtrip(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	cache := NewRedisCache(rc.Client, nil)
	key := Key{TypeName: "team", InstanceID: "1", FieldName: "members", Phase: "pre_add"}

	require.NoError(t, cache.Capture(ctx, key, []string{"1", "2"}, time.Minute))

	got, ok := cache.Consume(ctx, Key{TypeName: "team", InstanceID: "1", FieldName: "members", Phase: "post_add"})
	require.True(t, ok)
	require.Equal(t, []string{"1", "2"}, got)

	// GETDEL removed the entry.
	_, ok = cache.Consume(ctx, key)
	require.False(t, ok)
}

func TestRedisCacheExpiry(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	cache := NewRedisCache(rc.Client, nil)
	key := Key{TypeName: "team", InstanceID: "2", FieldName: "members", Phase: "pre_remove"}

	require.NoError(t, cache.Capture(ctx, key, []string{"9"}, time.Second))
	time.Sleep(1500 * time.Millisecond)

	_, ok := cache.Consume(ctx, key)
	require.False(t, ok)
}

func TestRedisCacheUnknownKey(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	cache := NewRedisCache(rc.Client, nil)

	got, ok := cache.Consume(context.Background(), Key{TypeName: "ghost", InstanceID: "0", FieldName: "f", Phase: "add"})
	require.False(t, ok)
	require.Nil(t, got)
}
