// Package redis owns the process-wide client used for queues, the provider
// token cache and idempotency storage.
package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// pingTimeout bounds the connectivity check at startup
const pingTimeout = 5 * time.Second

var client *redis.Client

// Init parses the URL, connects and verifies the server is reachable. Called
// once from the composition root before any worker starts.
func Init(url, password string) error {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return err
	}
	if password != "" {
		opts.Password = password
	}

	client = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return client.Ping(ctx).Err()
}

// SetClient swaps the client, letting tests point the package at miniredis
func SetClient(c *redis.Client) {
	client = c
}

// GetClient exposes the raw client for callers that need command access
// beyond the helpers below (queue BRPOP, zset scheduling).
func GetClient() *redis.Client {
	return client
}

// Set stores a value under key for the given TTL
func Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return client.Set(ctx, key, value, expiration).Err()
}

// Get returns the value at key; a missing key surfaces as redis.Nil
func Get(ctx context.Context, key string) (string, error) {
	return client.Get(ctx, key).Result()
}

// Del removes a key
func Del(ctx context.Context, key string) error {
	return client.Del(ctx, key).Err()
}

// SetNX stores the value only when the key is absent, reporting whether the
// write won. This is what makes idempotency locks race-safe.
func SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error) {
	return client.SetNX(ctx, key, value, expiration).Result()
}
