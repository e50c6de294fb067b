package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"longentry/fundamental"
)

func TestFundamentalCacheRoundTrip(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewFundamentalCache(Wrap(db))
	ctx := context.Background()

	score := fundamental.SymbolScore{
		Symbol:    "US500",
		Score:     65,
		Label:     fundamental.LabelBullish,
		Source:    "outlook",
		UpdatedAt: time.Date(2026, 10, 12, 6, 0, 0, 0, time.UTC),
	}
	payload, err := json.Marshal(score)
	require.NoError(t, err)

	t.Run("set writes json with ttl", func(t *testing.T) {
		mock.ExpectSet("fundamental:score:US500", payload, FundamentalTTL).SetVal("OK")
		require.NoError(t, c.SetScore(ctx, score))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("fundamental:score:US500").SetVal(string(payload))
		got, ok := c.GetScore(ctx, "US500")
		require.True(t, ok)
		assert.Equal(t, score, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("miss", func(t *testing.T) {
		mock.ExpectGet("fundamental:score:JP225").RedisNil()
		_, ok := c.GetScore(ctx, "JP225")
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("batch skips missing and corrupt values", func(t *testing.T) {
		mock.ExpectMGet("fundamental:score:US500", "fundamental:score:JP225", "fundamental:score:HK50").
			SetVal([]interface{}{string(payload), nil, "{not json"})
		got, err := c.GetScores(ctx, []string{"US500", "JP225", "HK50"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.InDelta(t, 65, got["US500"].Score, 1e-9)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestNilClientIsSafe(t *testing.T) {
	var r *RedisClient
	ctx := context.Background()

	assert.ErrorIs(t, r.Set(ctx, "k", 1, time.Minute), ErrNotInitialized)
	assert.ErrorIs(t, r.Get(ctx, "k", new(int)), ErrNotInitialized)
	assert.False(t, r.Exists(ctx, "k"))
	assert.NoError(t, r.Close())

	_, ok := NewFundamentalCache(nil).GetScore(ctx, "US500")
	assert.False(t, ok)
}

func TestTryLock(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := Wrap(db)
	ctx := context.Background()

	mock.ExpectSetNX("longentry:lock:run", "run-1", time.Hour).SetVal(true)
	mock.ExpectSetNX("longentry:lock:run", "run-2", time.Hour).SetVal(false)

	ok, err := r.TryLock(ctx, "longentry:lock:run", "run-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.TryLock(ctx, "longentry:lock:run", "run-2", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublish(t *testing.T) {
	db, mock := redismock.NewClientMock()
	msg := map[string]string{"pool": "stocks"}
	payload, _ := json.Marshal(msg)

	mock.ExpectPublish("longentry:activations", payload).SetVal(1)
	require.NoError(t, Wrap(db).Publish(context.Background(), "longentry:activations", msg))
	assert.NoError(t, mock.ExpectationsWereMet())
}
