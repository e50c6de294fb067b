package database

import "time"

// Candle timeframes accepted by the upload endpoint. The engine reads H1.
const (
	TimeframeH1 = "H1"
	TimeframeD1 = "D1"
)

// Economic event impact levels.
const (
	ImpactHigh   = "high"
	ImpactMedium = "medium"
	ImpactLow    = "low"
)

// Batch and timeout settings
const (
	// CandleBatchSize is the number of rows per INSERT when storing candles.
	CandleBatchSize = 500

	// SchemaInitTimeout bounds the schema migration at startup.
	SchemaInitTimeout = 2 * time.Minute
)
