package session

import (
	"context"
	"testing"
	"time"

	"crypto-alert-bot/internal/types"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	k := Key{ChatID: 42, UserID: 1}
	other := Key{ChatID: 42, UserID: 2}

	got, err := s.Get(ctx, k)
	require.NoError(t, err)
	assert.False(t, got.AwaitingThreshold())

	want := State{Currency: "bitcoin", ThresholdType: types.ThresholdMin}
	require.NoError(t, s.Set(ctx, k, want))

	got, err = s.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.True(t, got.AwaitingThreshold())

	got, err = s.Get(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, State{}, got)

	require.NoError(t, s.Clear(ctx, k))
	got, err = s.Get(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, State{}, got)

	// clearing twice is fine
	require.NoError(t, s.Clear(ctx, k))
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore(time.Minute))
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	k := Key{ChatID: 1, UserID: 1}
	require.NoError(t, s.Set(ctx, k, State{Currency: "ethereum", ThresholdType: types.ThresholdMax}))

	now = now.Add(2 * time.Minute)
	got, err := s.Get(ctx, k)
	require.NoError(t, err)
	assert.False(t, got.AwaitingThreshold())
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, time.Minute)
	defer s.Close()

	testStore(t, s)

	require.NoError(t, s.Set(context.Background(), Key{ChatID: 5, UserID: 6}, State{Currency: "bitcoin", ThresholdType: types.ThresholdMax}))
	assert.True(t, mr.Exists("session:5:6"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("session:5:6"))
}

func TestRedisStoreFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := NewRedisStoreFromURL(context.Background(), "redis://"+mr.Addr()+"/0", time.Minute)
	require.NoError(t, err)
	defer s.Close()

	_, err = NewRedisStoreFromURL(context.Background(), "not a url", time.Minute)
	assert.Error(t, err)
}

func TestStateAwaiting(t *testing.T) {
	assert.False(t, State{Currency: "bitcoin"}.AwaitingThreshold())
	assert.False(t, State{ThresholdType: types.ThresholdMin}.AwaitingThreshold())
	assert.True(t, State{Currency: "bitcoin", ThresholdType: types.ThresholdMax}.AwaitingThreshold())
}
