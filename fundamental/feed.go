package fundamental

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"longentry/engine"
	"longentry/market"
)

// SymbolScore is one stored fundamental score.
type SymbolScore struct {
	Symbol    string    `json:"symbol"`
	Score     float64   `json:"score"`
	Label     string    `json:"label"`
	Source    string    `json:"source"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the durable side of the feed.
type Store interface {
	LatestScores(ctx context.Context, symbols []string) (map[string]SymbolScore, error)
	SaveScores(ctx context.Context, scores []SymbolScore) error
	Outlook(ctx context.Context, region string) (*Outlook, error)
	HighImpactEvents(ctx context.Context, region string, from, to time.Time) (int, error)
}

// Cache keeps the last known score per symbol.
type Cache interface {
	GetScore(ctx context.Context, symbol string) (SymbolScore, bool)
	SetScore(ctx context.Context, score SymbolScore) error
}

// Feed serves fundamental scores to the weekly run. Stale values are served
// when the store is unavailable or has no row for a symbol.
type Feed struct {
	store Store
	cache Cache
	now   func() time.Time
}

// NewFeed creates a feed. cache may be nil.
func NewFeed(store Store, cache Cache) *Feed {
	return &Feed{store: store, cache: cache, now: time.Now}
}

// Scores returns the latest score per symbol. Symbols without any known score
// are absent from the map.
func (f *Feed) Scores(ctx context.Context, symbols []string) (map[string]engine.FundamentalScore, error) {
	stored, err := f.store.LatestScores(ctx, symbols)
	if err != nil {
		if f.cache == nil {
			return nil, fmt.Errorf("Scores: %w", err)
		}
		log.Warn().Err(err).Msg("fundamental store unavailable, serving cached scores")
		stored = map[string]SymbolScore{}
	}

	out := make(map[string]engine.FundamentalScore, len(symbols))
	for _, sym := range symbols {
		s, ok := stored[sym]
		if ok {
			if f.cache != nil {
				if cerr := f.cache.SetScore(ctx, s); cerr != nil {
					log.Debug().Err(cerr).Str("symbol", sym).Msg("fundamental cache write failed")
				}
			}
		} else if f.cache != nil {
			s, ok = f.cache.GetScore(ctx, sym)
		}
		if !ok {
			continue
		}
		out[sym] = engine.FundamentalScore{Score: s.Score, Label: s.Label}
	}
	return out, nil
}

// Refresh recomputes the rule-based score of every market for the trading
// week starting at weekStart and stores it. Markets without a region or
// outlook get the neutral score.
func (f *Feed) Refresh(ctx context.Context, weekStart time.Time, markets []market.Market) ([]SymbolScore, error) {
	weekEnd := weekStart.AddDate(0, 0, 4)
	now := f.now().UTC()

	scores := make([]SymbolScore, 0, len(markets))
	for _, m := range markets {
		region := m.Region
		if region == "" {
			region = DefaultRegions[m.Symbol]
		}

		value := neutralScore
		if region == "" {
			log.Warn().Str("symbol", m.Symbol).Msg("no region mapping, using neutral fundamental score")
		} else {
			o, err := f.store.Outlook(ctx, region)
			if err != nil {
				return nil, fmt.Errorf("Refresh %s: %w", m.Symbol, err)
			}
			if o == nil {
				log.Warn().Str("symbol", m.Symbol).Str("region", region).Msg("no outlook for region, using neutral fundamental score")
			} else {
				events, err := f.store.HighImpactEvents(ctx, region, weekStart, weekEnd)
				if err != nil {
					return nil, fmt.Errorf("Refresh %s: %w", m.Symbol, err)
				}
				value = Score(*o, events, m.IsCommodity())
			}
		}

		scores = append(scores, SymbolScore{
			Symbol:    m.Symbol,
			Score:     value,
			Label:     Label(value),
			Source:    "outlook",
			UpdatedAt: now,
		})
	}

	if err := f.store.SaveScores(ctx, scores); err != nil {
		return nil, fmt.Errorf("Refresh: %w", err)
	}
	return scores, nil
}
