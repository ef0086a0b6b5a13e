package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Symbol string  `json:"symbol"`
	Value  float64 `json:"value"`
}

func TestMemoryCacheTypedRoundTrip(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	in := payload{Symbol: "BTCUSDT", Value: 0.042}
	require.NoError(t, mc.Set(ctx, "k1", in, time.Minute))

	var out payload
	require.NoError(t, mc.Get(ctx, "k1", &out))
	assert.Equal(t, in, out)

	var missing payload
	assert.ErrorIs(t, mc.Get(ctx, "absent", &missing), ErrCacheMiss)
}

func TestMemoryCacheDeleteAndExists(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k1", "v", time.Minute))
	ok, err := mc.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, mc.Delete(ctx, "k1"))
	ok, err = mc.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCacheExpiration(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "k1", "v", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	var out string
	assert.ErrorIs(t, mc.Get(ctx, "k1", &out), ErrCacheMiss)
}

func TestMemoryCacheTryLockUnlock(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// held lock is not re-acquirable
	ok, err = mc.TryLock(ctx, "lock:k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mc.Unlock(ctx, "lock:k"))
	ok, err = mc.TryLock(ctx, "lock:k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheTryLockExpiredTakeover(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	ok, err := mc.TryLock(ctx, "lock:k", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(30 * time.Millisecond)
	ok, err = mc.TryLock(ctx, "lock:k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGenerateKeyWithParams(t *testing.T) {
	key := GenerateKeyWithParams("pred", "BTCUSDT", "15m", 2, 0.95)
	assert.Equal(t, "pred:BTCUSDT:15m:2:0.95", key)
	assert.Equal(t, "pred:BTCUSDT*", BuildPattern(GenerateKeyWithParams("pred", "BTCUSDT")))
}
