package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/campus-courier/internal/testutil/memstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("skip: miniredis unavailable: %v", err)
	}
	t.Cleanup(srv.Close)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestStore_ReserveFinalizeReplay(t *testing.T) {
	ctx := context.Background()
	srv, client := newRedis(t)
	store := NewStore(client, memstore.New().Queries(), time.Hour)
	key := ScopedKey("user-1", "k1")

	_, err := store.Lookup(ctx, key, "hash")
	require.ErrorIs(t, err, ErrNotFound)

	reserved, err := store.Reserve(ctx, key, "hash", "POST", "/v1/withdrawals")
	require.NoError(t, err)
	require.True(t, reserved)

	again, err := store.Reserve(ctx, key, "hash", "POST", "/v1/withdrawals")
	require.NoError(t, err)
	assert.False(t, again, "a key can only be reserved once")

	_, err = store.Lookup(ctx, key, "hash")
	require.ErrorIs(t, err, ErrInProgress)

	rec, err := store.Finalize(ctx, key, "hash", 201, []byte(`{"id":"w1"}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, ServedByPostgres, rec.ServedBy)
	assert.True(t, srv.Exists(redisKey(key)))
	assert.Greater(t, srv.TTL(redisKey(key)), time.Duration(0))

	replay, err := store.Lookup(ctx, key, "hash")
	require.NoError(t, err)
	assert.Equal(t, ServedByRedis, replay.ServedBy)
	assert.Equal(t, 201, replay.Status)
	assert.JSONEq(t, `{"id":"w1"}`, string(replay.Body))

	_, err = store.Lookup(ctx, key, "other-hash")
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestStore_FallsBackToPostgresOnCacheMiss(t *testing.T) {
	ctx := context.Background()
	srv, client := newRedis(t)
	store := NewStore(client, memstore.New().Queries(), time.Hour)

	_, err := store.Reserve(ctx, "k", "hash", "POST", "/v1/withdrawals")
	require.NoError(t, err)
	_, err = store.Finalize(ctx, "k", "hash", 200, []byte(`{}`), "application/json")
	require.NoError(t, err)

	srv.FlushAll()

	rec, err := store.Lookup(ctx, "k", "hash")
	require.NoError(t, err)
	assert.Equal(t, ServedByPostgres, rec.ServedBy)
	assert.True(t, srv.Exists(redisKey("k")), "postgres hit repopulates the cache")

	_, err = store.Lookup(ctx, "k", "different")
	require.ErrorIs(t, err, ErrHashMismatch)
}

func TestStore_WithoutRedis(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, memstore.New().Queries(), time.Hour)

	reserved, err := store.Reserve(ctx, "k", "hash", "POST", "/v1/withdrawals")
	require.NoError(t, err)
	require.True(t, reserved)
	_, err = store.Finalize(ctx, "k", "hash", 502, []byte(`{"status":"failed"}`), "application/problem+json")
	require.NoError(t, err)

	rec, err := store.Lookup(ctx, "k", "hash")
	require.NoError(t, err)
	assert.Equal(t, 502, rec.Status)
	assert.Equal(t, "application/problem+json", rec.ContentType)
}

func TestStore_UnreachableRedisDegradesToPostgres(t *testing.T) {
	ctx := context.Background()
	srv, err := miniredis.Run()
	if err != nil {
		t.Skipf("skip: miniredis unavailable: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: srv.Addr(), MaxRetries: -1})
	defer client.Close()
	store := NewStore(client, memstore.New().Queries(), time.Hour)
	srv.Close()

	reserved, err := store.Reserve(ctx, "k", "hash", "POST", "/v1/withdrawals")
	require.NoError(t, err)
	require.True(t, reserved)
	_, err = store.Finalize(ctx, "k", "hash", 201, []byte(`{}`), "application/json")
	require.NoError(t, err)

	rec, err := store.Lookup(ctx, "k", "hash")
	require.NoError(t, err)
	assert.Equal(t, ServedByPostgres, rec.ServedBy)
}

func TestStore_WaitForCompletion(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil, memstore.New().Queries(), time.Hour)

	_, err := store.Reserve(ctx, "k", "hash", "POST", "/v1/withdrawals")
	require.NoError(t, err)

	go func() {
		time.Sleep(120 * time.Millisecond)
		_, _ = store.Finalize(context.Background(), "k", "hash", 201, []byte(`{"ok":true}`), "application/json")
	}()

	rec, err := store.WaitForCompletion(ctx, "k", "hash")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)

	_, err = store.Reserve(ctx, "slow", "hash", "POST", "/v1/withdrawals")
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 80*time.Millisecond)
	defer cancel()
	_, err = store.WaitForCompletion(waitCtx, "slow", "hash")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
