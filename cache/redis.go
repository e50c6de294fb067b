// Package cache wraps Redis for the last-known fundamental scores, the
// weekly run lock and activation change broadcasts.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrNotInitialized is returned by every method of a RedisClient without a connection.
var ErrNotInitialized = errors.New("redis client not initialized")

// RedisClient wraps redis.Client
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a new Redis client. It returns nil when Redis is
// unreachable; callers treat a nil client as "no cache".
func NewRedisClient(host, port, password string) *RedisClient {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0, // use default DB
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("⚠️  Failed to connect to Redis")
		return nil
	}

	log.Info().Str("addr", addr).Msg("✅ Connected to Redis")
	return &RedisClient{client: client}
}

// Wrap builds a RedisClient around an existing client.
func Wrap(client *redis.Client) *RedisClient {
	return &RedisClient{client: client}
}

// Set stores a value in Redis with expiration
func (r *RedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}

	jsonBytes, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return r.client.Set(ctx, key, jsonBytes, expiration).Err()
}

// Get retrieves a value from Redis
func (r *RedisClient) Get(ctx context.Context, key string, dest interface{}) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}

	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return err
	}

	return json.Unmarshal([]byte(val), dest)
}

// Delete removes a key from Redis
func (r *RedisClient) Delete(ctx context.Context, key string) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}
	return r.client.Del(ctx, key).Err()
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	if r != nil && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping checks if Redis is reachable
func (r *RedisClient) Ping(ctx context.Context) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}
	return r.client.Ping(ctx).Err()
}

// Publish sends a message to a channel
func (r *RedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}

	jsonBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	return r.client.Publish(ctx, channel, jsonBytes).Err()
}

// Exists checks if a key exists in Redis
func (r *RedisClient) Exists(ctx context.Context, key string) bool {
	if r == nil || r.client == nil {
		return false
	}

	result, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false
	}

	return result > 0
}

// MGet retrieves the raw JSON of multiple keys. Missing keys yield "".
func (r *RedisClient) MGet(ctx context.Context, keys []string) ([]string, error) {
	if r == nil || r.client == nil {
		return nil, ErrNotInitialized
	}
	if len(keys) == 0 {
		return nil, nil
	}

	results, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make([]string, len(results))
	for i, result := range results {
		if str, ok := result.(string); ok {
			out[i] = str
		}
	}
	return out, nil
}

// TryLock takes key with SET NX for ttl. It reports false when another
// holder has it.
func (r *RedisClient) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	if r == nil || r.client == nil {
		return false, ErrNotInitialized
	}
	return r.client.SetNX(ctx, key, owner, ttl).Result()
}

// Unlock releases key if owner still holds it.
func (r *RedisClient) Unlock(ctx context.Context, key, owner string) error {
	if r == nil || r.client == nil {
		return ErrNotInitialized
	}
	return unlockScript.Run(ctx, r.client, []string{key}, owner).Err()
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
