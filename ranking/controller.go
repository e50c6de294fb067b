// Package ranking ranks symbols inside their pool and decides activation,
// keeping operator overrides untouched.
package ranking

import "sort"

// Entry is one scored symbol of a pool.
type Entry struct {
	Symbol     string
	FinalScore float64

	// PriceDataMissing marks symbols with neither a technical nor a backtest
	// score. They rank after every symbol with price data.
	PriceDataMissing bool

	Override Override
}

// Decision is the ranking outcome for one symbol.
type Decision struct {
	Symbol     string
	Rank       int
	FinalScore float64
	Active     bool
	Overridden bool
}

// Rank orders the entries and decides activation:
//
//   - rank is dense 1..N by final score descending, ties by symbol
//   - overridden symbols keep their pinned activation and still get a rank
//   - the best pool.MaxActive non-overridden symbols scoring at least
//     pool.MinScore become active, the rest inactive
//
// Overridden symbols do not consume the cap. The result is sorted by rank.
func Rank(pool Pool, entries []Entry) []Decision {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.PriceDataMissing != b.PriceDataMissing {
			return !a.PriceDataMissing
		}
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		return a.Symbol < b.Symbol
	})

	out := make([]Decision, len(sorted))
	activated := 0
	for i, e := range sorted {
		d := Decision{
			Symbol:     e.Symbol,
			Rank:       i + 1,
			FinalScore: e.FinalScore,
			Overridden: e.Override.IsForced(),
		}
		switch {
		case d.Overridden:
			d.Active = e.Override.Active()
		case activated < pool.MaxActive && e.FinalScore >= pool.MinScore:
			d.Active = true
			activated++
		}
		out[i] = d
	}
	return out
}

// ActiveCount returns the number of active decisions, split by who decided.
func ActiveCount(decisions []Decision) (ranked, overridden int) {
	for _, d := range decisions {
		if !d.Active {
			continue
		}
		if d.Overridden {
			overridden++
		} else {
			ranked++
		}
	}
	return ranked, overridden
}
