package directory

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// setupDirectory creates a test Redis server using miniredis.
func setupDirectory(t *testing.T) (*miniredis.Miniredis, *Directory) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, New(client)
}

func TestSetWithTTLAndGet(t *testing.T) {
	mr, dir := setupDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.SetWithTTL(ctx, "k", "v", 10*time.Second))

	val, found, err := dir.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "v", val)

	mr.FastForward(11 * time.Second)

	_, found, err = dir.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
}

func TestGetMissing(t *testing.T) {
	_, dir := setupDirectory(t)

	_, found, err := dir.Get(context.Background(), "nope")
	require.NoError(t, err)
	require.False(t, found)
}

func TestZPopMinOrder(t *testing.T) {
	_, dir := setupDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.ZAdd(ctx, "idx", "b", 2))
	require.NoError(t, dir.ZAdd(ctx, "idx", "a", 1))

	member, score, ok, err := dir.ZPopMin(ctx, "idx")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", member)
	require.Equal(t, float64(1), score)

	member, _, ok, err = dir.ZPopMin(ctx, "idx")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "b", member)

	_, _, ok, err = dir.ZPopMin(ctx, "idx")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestZRemRangeByScoreEvictsStale(t *testing.T) {
	_, dir := setupDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.ZAdd(ctx, "idx", "old", 100))
	require.NoError(t, dir.ZAdd(ctx, "idx", "fresh", 200))
	require.NoError(t, dir.ZRemRangeByScore(ctx, "idx", 150))

	member, _, ok, err := dir.ZPopMin(ctx, "idx")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "fresh", member)
}

func TestHashOps(t *testing.T) {
	_, dir := setupDirectory(t)
	ctx := context.Background()

	require.NoError(t, dir.HSet(ctx, "h", "f1", "1"))
	require.NoError(t, dir.HSet(ctx, "h", "f2", "2"))

	all, err := dir.HGetAll(ctx, "h")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"f1": "1", "f2": "2"}, all)

	require.NoError(t, dir.HDel(ctx, "h", "f1"))
	all, err = dir.HGetAll(ctx, "h")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"f2": "2"}, all)
}

func TestPublishSubscribeRoundTrip(t *testing.T) {
	_, dir := setupDirectory(t)
	ctx := context.Background()

	pubsub := dir.Subscribe(ctx, "chan")
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before publishing.
	_, err := pubsub.Receive(ctx)
	require.NoError(t, err)
	ch := pubsub.Channel()

	require.NoError(t, dir.Publish(ctx, "chan", "hello"))

	select {
	case msg := <-ch:
		require.Equal(t, "chan", msg.Channel)
		require.Equal(t, "hello", msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}
