package presence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeConformance exercises the Store contract against any implementation.
func storeConformance(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	created, err := store.Put(ctx, Entry{UserID: 9, Username: "ada", Channel: "/topic/1", LastHeartbeatAt: now})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Put(ctx, Entry{UserID: 9, Username: "ada", Channel: "/topic/1", LastHeartbeatAt: now})
	require.NoError(t, err)
	assert.False(t, created, "second put for the same pair refreshes, not duplicates")

	_, err = store.Put(ctx, Entry{UserID: 3, Username: "bo", Channel: "/topic/1", LastHeartbeatAt: now})
	require.NoError(t, err)

	entries, err := store.List(ctx, "/topic/1")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	ok, err := store.Touch(ctx, "/topic/1", 9, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Touch(ctx, "/topic/1", 77, now)
	require.NoError(t, err)
	assert.False(t, ok, "touching an absent entry reports it")

	// bo's heartbeat is stale; ada's was just refreshed.
	expired, err := store.Expire(ctx, now.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, int64(3), expired[0].UserID)

	removed, err := store.Remove(ctx, "/topic/1", 9)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Remove(ctx, "/topic/1", 9)
	require.NoError(t, err)
	assert.False(t, removed)

	entries, err = store.List(ctx, "/topic/1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMemoryStore(t *testing.T) {
	storeConformance(t, NewMemoryStore())
}

func TestRedisStore(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}

	store, err := NewRedisStore(redisURL)
	require.NoError(t, err)
	defer store.Close()

	// Clear leftovers from previous runs.
	_, err = store.Expire(context.Background(), time.Now().Add(24*time.Hour))
	require.NoError(t, err)

	storeConformance(t, store)
}
