package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/classbook/classbook-auth"
)

func newTestRegistry(t *testing.T, opts ...auth.SessionRegistryOption) (*auth.RedisSessionRegistry, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	registry := auth.NewSessionRegistry(rdb, opts...)

	return registry, mr, func() {
		rdb.Close()
		mr.Close()
	}
}

func TestSessionRegistryPutGet(t *testing.T) {
	registry, _, done := newTestRegistry(t)
	defer done()

	ctx := context.Background()

	require.NoError(t, registry.Connect(ctx))

	err := registry.Put(ctx, "subject-1", "token-a", time.Hour)
	require.NoError(t, err)

	token, err := registry.Get(ctx, "subject-1")
	assert.NoError(t, err)
	assert.Equal(t, "token-a", token)
}

func TestSessionRegistryGetAbsent(t *testing.T) {
	registry, _, done := newTestRegistry(t)
	defer done()

	// absence is an empty string, never an error
	token, err := registry.Get(context.Background(), "nobody")
	assert.NoError(t, err)
	assert.Empty(t, token)
}

func TestSessionRegistryPutOverwrites(t *testing.T) {
	registry, _, done := newTestRegistry(t)
	defer done()

	ctx := context.Background()

	require.NoError(t, registry.Put(ctx, "subject-1", "token-a", time.Hour))
	require.NoError(t, registry.Put(ctx, "subject-1", "token-b", time.Hour))

	token, err := registry.Get(ctx, "subject-1")
	assert.NoError(t, err)
	assert.Equal(t, "token-b", token, "most recent put wins, the older token stops cross-checking")
}

func TestSessionRegistryTTLExpiry(t *testing.T) {
	registry, mr, done := newTestRegistry(t)
	defer done()

	ctx := context.Background()

	require.NoError(t, registry.Put(ctx, "subject-1", "token-a", time.Minute))

	mr.FastForward(2 * time.Minute)

	token, err := registry.Get(ctx, "subject-1")
	assert.NoError(t, err)
	assert.Empty(t, token, "expired entries read back as absent")
}

func TestSessionRegistryDeleteIdempotent(t *testing.T) {
	registry, _, done := newTestRegistry(t)
	defer done()

	ctx := context.Background()

	require.NoError(t, registry.Put(ctx, "subject-1", "token-a", time.Hour))
	require.NoError(t, registry.Delete(ctx, "subject-1"))
	require.NoError(t, registry.Delete(ctx, "subject-1"))

	token, err := registry.Get(ctx, "subject-1")
	assert.NoError(t, err)
	assert.Empty(t, token)
}

func TestSessionRegistryKeyPrefix(t *testing.T) {
	registry, mr, done := newTestRegistry(t, auth.WithSessionKeyPrefix("classbook:session:"))
	defer done()

	ctx := context.Background()

	require.NoError(t, registry.Put(ctx, "subject-1", "token-a", time.Hour))

	got, err := mr.Get("classbook:session:subject-1")
	require.NoError(t, err)
	assert.Equal(t, "token-a", got)
}

func TestSessionRegistryUnavailable(t *testing.T) {
	registry, mr, done := newTestRegistry(t)
	defer done()

	ctx := context.Background()
	require.NoError(t, registry.Put(ctx, "subject-1", "token-a", time.Hour))

	// take the backing store down; every operation must surface the
	// infrastructure fault instead of pretending there is no session
	mr.Close()

	_, err := registry.Get(ctx, "subject-1")
	assert.Error(t, err)

	kind, ok := auth.AuthFailureKind(err)
	assert.True(t, ok)
	assert.Equal(t, auth.TextCodeRegistryUnavailable, kind)

	assert.Error(t, registry.Put(ctx, "subject-1", "token-b", time.Hour))
	assert.Error(t, registry.Delete(ctx, "subject-1"))
}

func TestSessionRegistryEmptyInputs(t *testing.T) {
	registry, _, done := newTestRegistry(t)
	defer done()

	ctx := context.Background()

	assert.Error(t, registry.Put(ctx, "", "token", time.Hour))
	assert.Error(t, registry.Put(ctx, "subject-1", "", time.Hour))

	_, err := registry.Get(ctx, "")
	assert.Error(t, err)

	assert.Error(t, registry.Delete(ctx, ""))
}
