package cache

import (
	"context"
	"encoding/json"
	"time"

	"longentry/fundamental"
)

const (
	fundamentalKeyPrefix = "fundamental:score:"

	// FundamentalTTL bounds how stale a last-known score may get.
	FundamentalTTL = 30 * 24 * time.Hour
)

// FundamentalCache keeps the last known fundamental score per symbol.
// It implements fundamental.Cache.
type FundamentalCache struct {
	redis *RedisClient
	ttl   time.Duration
}

var _ fundamental.Cache = (*FundamentalCache)(nil)

// NewFundamentalCache creates a fundamental score cache
func NewFundamentalCache(redis *RedisClient) *FundamentalCache {
	return &FundamentalCache{redis: redis, ttl: FundamentalTTL}
}

// GetScore returns the cached score of a symbol.
func (c *FundamentalCache) GetScore(ctx context.Context, symbol string) (fundamental.SymbolScore, bool) {
	var s fundamental.SymbolScore
	if err := c.redis.Get(ctx, fundamentalKeyPrefix+symbol, &s); err != nil {
		return fundamental.SymbolScore{}, false
	}
	return s, true
}

// GetScores returns the cached scores of the symbols that have one.
func (c *FundamentalCache) GetScores(ctx context.Context, symbols []string) (map[string]fundamental.SymbolScore, error) {
	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = fundamentalKeyPrefix + sym
	}
	raw, err := c.redis.MGet(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make(map[string]fundamental.SymbolScore, len(symbols))
	for i, v := range raw {
		if v == "" {
			continue
		}
		var s fundamental.SymbolScore
		if err := json.Unmarshal([]byte(v), &s); err != nil {
			continue
		}
		out[symbols[i]] = s
	}
	return out, nil
}

// SetScore caches the score of a symbol.
func (c *FundamentalCache) SetScore(ctx context.Context, s fundamental.SymbolScore) error {
	return c.redis.Set(ctx, fundamentalKeyPrefix+s.Symbol, s, c.ttl)
}
