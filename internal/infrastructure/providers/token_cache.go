package providers

import (
	"context"
	"time"

	"dhecash.backend/pkg/redis"
)

// tokenSafety is subtracted from the provider-reported token lifetime so a
// token is never used in its final minute.
const tokenSafety = 60 * time.Second

var (
	cacheGet = redis.Get
	cacheSet = redis.Set
)

// TokenCache keeps OAuth2 client-credentials tokens per provider in redis.
// Concurrent misses may each mint a token; last writer wins, tokens are
// interchangeable.
type TokenCache struct{}

// NewTokenCache creates a token cache
func NewTokenCache() *TokenCache {
	return &TokenCache{}
}

// MintFunc fetches a fresh token and its provider-reported lifetime
type MintFunc func(ctx context.Context) (token string, expiresIn time.Duration, err error)

// Get returns the cached token for a provider, minting a new one on miss
func (c *TokenCache) Get(ctx context.Context, provider string, mint MintFunc) (string, error) {
	key := "provider_token:" + provider

	if token, err := cacheGet(ctx, key); err == nil && token != "" {
		return token, nil
	}

	token, expiresIn, err := mint(ctx)
	if err != nil {
		return "", err
	}

	ttl := expiresIn - tokenSafety
	if ttl <= 0 {
		ttl = expiresIn
	}
	if err := cacheSet(ctx, key, token, ttl); err != nil {
		// The token itself is good; a cache write failure only costs a re-mint
		return token, nil
	}
	return token, nil
}
