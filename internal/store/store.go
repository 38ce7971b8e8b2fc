// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"hedge-lords/internal/models"
)

// TickerStore persists canonical ticker snapshots, at most one row per
// symbol.
type TickerStore interface {
	// Get returns the stored ticker for a symbol, or nil when absent.
	Get(ctx context.Context, symbol string) (*models.Ticker, error)
	// Upsert merge-writes a ticker: present fields overwrite, absent
	// fields preserve the stored value.
	Upsert(ctx context.Context, ticker *models.Ticker) error
	// ListBySymbols returns the stored tickers for the given symbols.
	ListBySymbols(ctx context.Context, symbols []string) ([]models.Ticker, error)
	// All returns every stored ticker.
	All(ctx context.Context) ([]models.Ticker, error)
	// ClearAll truncates the ticker store.
	ClearAll(ctx context.Context) error
}

// HistoricalStore persists the OHLCV candle history used to seed
// simulations.
type HistoricalStore interface {
	// Replace atomically clears the history and bulk-inserts the given
	// rows in one transaction.
	Replace(ctx context.Context, candles []models.Candle) error
	// Closes returns the full close-price series ascending by time.
	Closes(ctx context.Context) ([]models.ClosePoint, error)
	// ClearHistory truncates the history.
	ClearHistory(ctx context.Context) error
}

// Store combines both persistence roles plus lifecycle management.
type Store interface {
	TickerStore
	HistoricalStore
	Close() error
}
