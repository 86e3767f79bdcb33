package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SetGetDel(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", "v", 0))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	require.NoError(t, s.Del(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_SetNX(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	created, err := s.SetNX(ctx, "k", "a", time.Minute)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.SetNX(ctx, "k", "b", time.Minute)
	require.NoError(t, err)
	assert.False(t, created)

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "a", got)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	_, err := s.SetNX(ctx, "k", "v", 10*time.Second)
	require.NoError(t, err)

	now = now.Add(9 * time.Second)
	_, err = s.Get(ctx, "k")
	assert.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	// Expired key is claimable again.
	created, err := s.SetNX(ctx, "k", "v2", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestMemoryStore_ZSetOps(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.ZAdd(ctx, "z", 100, "a"))
	require.NoError(t, s.ZAdd(ctx, "z", 200, "b"))
	require.NoError(t, s.ZAdd(ctx, "z", 300, "c"))

	n, err := s.ZCount(ctx, "z", 100, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, s.ZRemRangeByScore(ctx, "z", 0, 150))
	n, err = s.ZCount(ctx, "z", 0, 300)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Re-adding an existing member updates its score.
	require.NoError(t, s.ZAdd(ctx, "z", 250, "b"))
	n, err = s.ZCount(ctx, "z", 240, 260)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_ExpireSetsDeadline(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.ZAdd(ctx, "z", 1, "m"))
	require.NoError(t, s.Expire(ctx, "z", 5*time.Second))

	now = now.Add(6 * time.Second)
	n, err := s.ZCount(ctx, "z", 0, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}
