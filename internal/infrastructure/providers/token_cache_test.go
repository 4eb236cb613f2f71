package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dhecash.backend/pkg/redis"
)

func setupTokenRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	redis.SetClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { redis.SetClient(nil) })
	return mr
}

func TestTokenCacheMintsOnMiss(t *testing.T) {
	mr := setupTokenRedis(t)
	cache := NewTokenCache()

	minted := 0
	mint := func(ctx context.Context) (string, time.Duration, error) {
		minted++
		return "fresh-token", 3600 * time.Second, nil
	}

	token, err := cache.Get(context.Background(), "moncash", mint)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Equal(t, 1, minted)

	// Second call hits the cache
	token, err = cache.Get(context.Background(), "moncash", mint)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
	assert.Equal(t, 1, minted)

	// TTL carries the safety margin
	ttl := mr.TTL("provider_token:moncash")
	assert.Equal(t, 3600*time.Second-tokenSafety, ttl)
}

func TestTokenCacheShortLifetimeSkipsSafetyMargin(t *testing.T) {
	mr := setupTokenRedis(t)
	cache := NewTokenCache()

	_, err := cache.Get(context.Background(), "natcash", func(ctx context.Context) (string, time.Duration, error) {
		return "tok", 30 * time.Second, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, mr.TTL("provider_token:natcash"))
}

func TestTokenCacheMintError(t *testing.T) {
	setupTokenRedis(t)
	cache := NewTokenCache()

	wantErr := errors.New("token endpoint down")
	_, err := cache.Get(context.Background(), "moncash", func(ctx context.Context) (string, time.Duration, error) {
		return "", 0, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestTokenCacheToleratesCacheWriteFailure(t *testing.T) {
	mr := setupTokenRedis(t)
	cache := NewTokenCache()

	mr.Close()

	token, err := cache.Get(context.Background(), "stripe", func(ctx context.Context) (string, time.Duration, error) {
		return "tok", time.Hour, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
}

func TestTokenCacheExpiryForcesRemint(t *testing.T) {
	mr := setupTokenRedis(t)
	cache := NewTokenCache()

	minted := 0
	mint := func(ctx context.Context) (string, time.Duration, error) {
		minted++
		return "tok", 120 * time.Second, nil
	}

	_, err := cache.Get(context.Background(), "moncash", mint)
	require.NoError(t, err)

	mr.FastForward(61 * time.Second)

	_, err = cache.Get(context.Background(), "moncash", mint)
	require.NoError(t, err)
	assert.Equal(t, 2, minted)
}
