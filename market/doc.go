// Package market defines the value types shared by the weekly decision engine.
//
// This package includes:
//   - Candle and Series: immutable, open-time ordered hourly price history
//   - DailyBar: hourly bars rolled up by session day
//   - ParameterPoint: one combination of the backtest grid
//   - Category and Market: the tradable universe
//   - The error taxonomy used to degrade a symbol instead of failing a run
//
// Key Concepts:
//   - Session offset: hours added to a UTC open time to obtain the session clock.
//     Daily bucketing and entry hours both use the session clock.
//   - Series values are never mutated after construction, so they can be shared
//     between worker goroutines without locking.
package market
