package engine

import (
	"context"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"longentry/backtest"
	"longentry/market"
	"longentry/ranking"
	"longentry/scoring"
)

var week = time.Date(2024, 12, 2, 0, 0, 0, 0, time.UTC)

func walk(symbol string, seed int64, days int, drift float64) market.Series {
	rng := rand.New(rand.NewSource(seed))
	start := week.AddDate(0, 0, -days)
	price := 100.0
	var candles []market.Candle
	for h := 0; h < days*24; h++ {
		open := price
		price *= 1 + rng.NormFloat64()*0.002 + drift
		candles = append(candles, market.Candle{
			OpenTime: start.Add(time.Duration(h) * time.Hour),
			Open:     open,
			High:     math.Max(open, price) * 1.0005,
			Low:      math.Min(open, price) * 0.9995,
			Close:    price,
			Volume:   1,
		})
	}
	return market.NewSeries(symbol, candles)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.Backtest.EntryHours = []int{8, 16}
	cfg.Backtest.StopLoss = backtest.Range{Values: []float64{0.5, 1.0}}
	cfg.Backtest.TakeProfit = backtest.Range{Values: []float64{1, 2, 3}}
	cfg.Pools = []ranking.Pool{
		{Name: "indices_commodities", Categories: []market.Category{market.CategoryIndex, market.CategoryCommodity}, MaxActive: 2, MinScore: 0},
		{Name: "stocks", Categories: []market.Category{market.CategoryStock}, MaxActive: 1, MinScore: 0},
	}
	return cfg
}

func testInput() Input {
	universe := []market.Market{
		{Symbol: "XAUUSD", Category: market.CategoryCommodity},
		{Symbol: "US500", Category: market.CategoryIndex},
		{Symbol: "GER40", Category: market.CategoryIndex},
		{Symbol: "AAPL", Category: market.CategoryStock},
		{Symbol: "NEWCO", Category: market.CategoryStock},
	}
	return Input{
		WeekStart: week,
		Universe:  universe,
		Candles: map[string]market.Series{
			"XAUUSD": walk("XAUUSD", 1, 300, 0.0001),
			"US500":  walk("US500", 2, 300, 0.00005),
			"GER40":  walk("GER40", 3, 300, -0.0001),
			"AAPL":   walk("AAPL", 4, 300, 0.0001),
			"NEWCO":  walk("NEWCO", 5, 3, 0),
		},
		Fundamentals: map[string]FundamentalScore{
			"XAUUSD": {Score: 65, Label: "bullish"},
			"US500":  {Score: 50, Label: "neutral"},
			"AAPL":   {Score: 55, Label: "neutral"},
			"NEWCO":  {Score: 50, Label: "neutral"},
		},
		PriorOverrides: map[string]ranking.Override{},
		History:        map[string][]market.ParameterPoint{},
	}
}

func find(t *testing.T, out *Outcome, symbol string) Snapshot {
	t.Helper()
	for _, p := range out.Pools {
		for _, s := range p.Snapshots {
			if s.Symbol == symbol {
				return s
			}
		}
	}
	t.Fatalf("symbol %s not in outcome", symbol)
	return Snapshot{}
}

func TestEvaluateWeekIsIdempotent(t *testing.T) {
	cfg := testConfig()

	a, err := EvaluateWeek(context.Background(), testInput(), cfg)
	require.NoError(t, err)
	b, err := EvaluateWeek(context.Background(), testInput(), cfg)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestEvaluateWeekShortHistoryDegrades(t *testing.T) {
	out, err := EvaluateWeek(context.Background(), testInput(), testConfig())
	require.NoError(t, err)

	y := find(t, out, "NEWCO")
	assert.Equal(t, scoring.StatusInsufficientData, y.Technical.Status)
	assert.Equal(t, scoring.StatusInsufficientData, y.Backtest.Status)
	assert.Equal(t, scoring.StatusComputed, y.Fundamental.Status)
	assert.InDelta(t, 0.15*50, y.FinalScore, 1e-9)
	assert.Nil(t, y.Analysis)
	assert.Nil(t, y.Best)
	assert.NotEmpty(t, y.Notes)

	aapl := find(t, out, "AAPL")
	assert.Equal(t, 1, aapl.Rank)
	assert.Equal(t, 2, y.Rank)
	assert.True(t, aapl.Active)
	assert.False(t, y.Active)
}

func TestEvaluateWeekMissingFundamental(t *testing.T) {
	out, err := EvaluateWeek(context.Background(), testInput(), testConfig())
	require.NoError(t, err)

	ger := find(t, out, "GER40")
	assert.Equal(t, scoring.StatusExternalUnavailable, ger.Fundamental.Status)
	assert.Equal(t, 0.0, ger.Fundamental.Value)
	assert.Equal(t, scoring.StatusComputed, ger.Technical.Status)
	require.NotNil(t, ger.Best)
	require.NotNil(t, ger.Stability)
	assert.False(t, ger.Stability.HasHistory)
	assert.Equal(t, 12, ger.CombosTested)
}

func TestEvaluateWeekKeepsOverrides(t *testing.T) {
	cfg := testConfig()
	in := testInput()

	base, err := EvaluateWeek(context.Background(), in, cfg)
	require.NoError(t, err)
	top := base.Pools[0].Snapshots[0]
	last := base.Pools[0].Snapshots[2]
	require.True(t, top.Active)
	require.False(t, last.Active)

	in.PriorOverrides = map[string]ranking.Override{
		top.Symbol:  ranking.Forced(false),
		last.Symbol: ranking.Forced(true),
	}
	out, err := EvaluateWeek(context.Background(), in, cfg)
	require.NoError(t, err)

	gotTop := find(t, out, top.Symbol)
	gotLast := find(t, out, last.Symbol)
	assert.False(t, gotTop.Active)
	assert.True(t, gotTop.Overridden)
	assert.Equal(t, top.Rank, gotTop.Rank)
	assert.True(t, gotLast.Active)
	assert.True(t, gotLast.Overridden)
	assert.Equal(t, last.Rank, gotLast.Rank)

	ranked, forced := 0, 0
	for _, s := range out.Pools[0].Snapshots {
		switch {
		case s.Active && s.Overridden:
			forced++
		case s.Active:
			ranked++
		}
	}
	assert.Equal(t, 1, ranked)
	assert.Equal(t, 1, forced)
}

func TestEvaluateWeekStabilityFromHistory(t *testing.T) {
	cfg := testConfig()
	in := testInput()

	first, err := EvaluateWeek(context.Background(), in, cfg)
	require.NoError(t, err)
	winner := find(t, first, "XAUUSD").Best.Point

	in.History = map[string][]market.ParameterPoint{
		"XAUUSD": {winner, winner, winner, winner, winner},
	}
	out, err := EvaluateWeek(context.Background(), in, cfg)
	require.NoError(t, err)

	st := find(t, out, "XAUUSD").Stability
	require.NotNil(t, st)
	assert.True(t, st.HasHistory)
	assert.True(t, st.Reliable)
	assert.GreaterOrEqual(t, st.Score, cfg.Stability.ReliableThreshold)
}

func TestEvaluateWeekSymbolTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.SymbolTimeout = -time.Second

	out, err := New(cfg).EvaluateWeek(context.Background(), testInput())
	require.NoError(t, err)

	s := find(t, out, "XAUUSD")
	assert.Equal(t, scoring.StatusTimeout, s.Technical.Status)
	assert.Equal(t, scoring.StatusTimeout, s.Backtest.Status)
	assert.Equal(t, scoring.StatusComputed, s.Fundamental.Status)
	assert.InDelta(t, 0.15*65, s.FinalScore, 1e-9)
}

func TestEvaluateWeekCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := EvaluateWeek(ctx, testInput(), testConfig())

	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateWeekUnassignedCategory(t *testing.T) {
	cfg := testConfig()
	cfg.Pools = cfg.Pools[:1]

	out, err := EvaluateWeek(context.Background(), testInput(), cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "NEWCO"}, out.Unassigned)
	assert.Len(t, out.Pools, 1)
	assert.Len(t, out.Pools[0].Snapshots, 3)
}

func TestRerank(t *testing.T) {
	out, err := EvaluateWeek(context.Background(), testInput(), testConfig())
	require.NoError(t, err)
	pool := out.Pools[0]
	snaps := pool.Snapshots
	snaps[2].Overridden, snaps[2].Active = true, true

	tighter := pool.Pool
	tighter.MaxActive = 1
	got := Rerank(tighter, snaps)

	require.Len(t, got, 3)
	assert.True(t, got[0].Active)
	assert.False(t, got[1].Active)
	assert.True(t, got[2].Active)
	assert.True(t, got[2].Overridden)
	for i, s := range got {
		assert.Equal(t, snaps[i].Symbol, s.Symbol)
		assert.Equal(t, snaps[i].FinalScore, s.FinalScore)
	}

	none := pool.Pool
	none.MaxActive = 0
	for _, s := range Rerank(none, snaps) {
		assert.Equal(t, s.Overridden, s.Active)
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.SymbolTimeout = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Scoring.Weights.Technical = 0.9
	assert.Error(t, cfg.Validate())

	b := DefaultConfig().StabilityBounds()
	assert.Equal(t, 0.3, b.StopLossMin)
	assert.Equal(t, 4.0, b.TakeProfitMax)
}
