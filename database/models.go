// Package database provides database connection management for the weekly
// decision engine.
//
// This package includes:
//   - Database connection management using GORM over lib/pq
//   - Schema initialization for markets, candles and weekly snapshots
//   - Error types, including the persistence conflict raised by concurrent writes
//
// Key Concepts:
//   - One weekly_analysis row per symbol and week, keyed by (symbol, week_start)
//   - A version column on every snapshot row for optimistic concurrency
//   - Pool writes run in SERIALIZABLE transactions and are all-or-nothing
//
// Data Models:
//
//	All data models (Market, Candle, WeeklyAnalysis, etc.) are defined in the models_pkg package
//	to avoid circular import dependencies. Repositories live in sub-packages.
package database

import (
	"gorm.io/gorm"

	models "longentry/database/models_pkg"
)

// Database holds the GORM database connection and provides access to the underlying DB instance.
// It serves as the central connection point for all database operations in the application.
type Database struct {
	db *gorm.DB
}

// DB returns the underlying GORM database instance for the repositories.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// ============================================================================
// Type Aliases
// ============================================================================

// Core data models
type Market = models.Market
type Candle = models.Candle
type WeeklyAnalysis = models.WeeklyAnalysis
type WeeklyResult = models.WeeklyResult
type FundamentalScore = models.FundamentalScore
type RegionOutlook = models.RegionOutlook
type EconomicEvent = models.EconomicEvent
type PoolSetting = models.PoolSetting
