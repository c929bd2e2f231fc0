package snapshot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhase(t *testing.T) {
	require.Equal(t, "add", NormalizePhase("pre_add"))
	require.Equal(t, "add", NormalizePhase("post_add"))
	require.Equal(t, "remove", NormalizePhase("post_remove"))
	require.Equal(t, "clear", NormalizePhase("clear"))
}

func TestKeyPhaseAgreement(t *testing.T) {
	pre := Key{TypeName: "team", InstanceID: "7", FieldName: "members", Phase: "pre_add"}
	post := Key{TypeName: "team", InstanceID: "7", FieldName: "members", Phase: "post_add"}
	require.Equal(t, pre.String(), post.String())

	other := Key{TypeName: "team", InstanceID: "7", FieldName: "members", Phase: "pre_remove"}
	require.NotEqual(t, pre.String(), other.String())
}

func TestMemoryCacheRoundtrip(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	key := Key{TypeName: "team", InstanceID: "1", FieldName: "members", Phase: "pre_add"}

	require.NoError(t, c.Capture(ctx, key, []string{"1", "2"}, time.Minute))

	got, ok := c.Consume(ctx, Key{TypeName: "team", InstanceID: "1", FieldName: "members", Phase: "post_add"})
	require.True(t, ok)
	require.Equal(t, []string{"1", "2"}, got)

	// Consumed entries are gone.
	_, ok = c.Consume(ctx, key)
	require.False(t, ok)
}

func TestMemoryCacheUnknownKey(t *testing.T) {
	c := NewMemoryCache()
	got, ok := c.Consume(context.Background(), Key{TypeName: "team", InstanceID: "9", FieldName: "members", Phase: "add"})
	require.False(t, ok)
	require.Nil(t, got)
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	key := Key{TypeName: "team", InstanceID: "1", FieldName: "members", Phase: "pre_add"}
	require.NoError(t, c.Capture(ctx, key, []string{"1"}, 30*time.Second))

	now = now.Add(31 * time.Second)
	_, ok := c.Consume(ctx, key)
	require.False(t, ok)
}

func TestMemoryCacheSweep(t *testing.T) {
	c := NewMemoryCache()
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Capture(ctx, Key{TypeName: "a", InstanceID: "1", FieldName: "f", Phase: "add"}, []string{"x"}, time.Second))
	now = now.Add(2 * time.Second)
	require.NoError(t, c.Capture(ctx, Key{TypeName: "b", InstanceID: "1", FieldName: "f", Phase: "add"}, []string{"y"}, time.Second))

	// The write swept the expired entry.
	require.Equal(t, 1, c.Len())
}

func TestMemoryCacheCapturedValuesAreCopied(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()
	key := Key{TypeName: "team", InstanceID: "1", FieldName: "members", Phase: "add"}

	values := []string{"1", "2"}
	require.NoError(t, c.Capture(ctx, key, values, time.Minute))
	values[0] = "mutated"

	got, ok := c.Consume(ctx, key)
	require.True(t, ok)
	require.Equal(t, []string{"1", "2"}, got)
}

func TestMemoryCacheConcurrentKeysNoCrossTalk(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			key := Key{TypeName: "team", InstanceID: id, FieldName: "members", Phase: "pre_add"}
			_ = c.Capture(ctx, key, []string{id}, time.Minute)
			if got, ok := c.Consume(ctx, key); ok {
				// assert, not require: FailNow must not be called off the
				// test goroutine.
				assert.Equal(t, []string{id}, got)
			}
		}(i)
	}
	wg.Wait()
}
