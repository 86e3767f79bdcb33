package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaoxin/api-gateway/internal/store"
)

func TestGuard_FirstUseIsFresh(t *testing.T) {
	g := NewGuard(store.NewMemoryStore(), 5*time.Minute)
	ctx := context.Background()

	fresh, err := g.Check(ctx, "ak_1", "abcd1234efgh5678")
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = g.Check(ctx, "ak_1", "abcd1234efgh5678")
	require.NoError(t, err)
	assert.False(t, fresh, "second use of the nonce must be detected")
}

func TestGuard_ScopedByAccessKey(t *testing.T) {
	g := NewGuard(store.NewMemoryStore(), 5*time.Minute)
	ctx := context.Background()

	fresh, err := g.Check(ctx, "ak_1", "abcd1234efgh5678")
	require.NoError(t, err)
	require.True(t, fresh)

	fresh, err = g.Check(ctx, "ak_2", "abcd1234efgh5678")
	require.NoError(t, err)
	assert.True(t, fresh, "same nonce under another access key is independent")
}

func TestGuard_NonceExpiresWithSignatureWindow(t *testing.T) {
	mem := store.NewMemoryStore()
	now := time.Now()
	mem.SetClock(func() time.Time { return now })
	g := NewGuard(mem, 5*time.Minute)
	ctx := context.Background()

	fresh, err := g.Check(ctx, "ak_1", "abcd1234efgh5678")
	require.NoError(t, err)
	require.True(t, fresh)

	now = now.Add(5*time.Minute + time.Second)
	fresh, err = g.Check(ctx, "ak_1", "abcd1234efgh5678")
	require.NoError(t, err)
	assert.True(t, fresh, "marker expires with the signature validity window")
}

type brokenStore struct{ store.Store }

func (brokenStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("store down")
}

func TestGuard_StoreFailureReportsFresh(t *testing.T) {
	g := NewGuard(brokenStore{}, 5*time.Minute)
	fresh, err := g.Check(context.Background(), "ak_1", "abcd1234efgh5678")
	assert.Error(t, err)
	assert.True(t, fresh, "caller decides to admit on store failure")
}
