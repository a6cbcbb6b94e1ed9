// Package store defines storage interfaces for persisting and retrieving
// daily bars and the reference data that goes with them.
package store

import (
	"context"
	"time"

	"quantapp/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage. Bars already stored for
	// the same symbol and timestamp are replaced.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end], in
	// ascending timestamp order.
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// NameStore caches the display name of a symbol.
type NameStore interface {
	// SaveCompanyName records the name for symbol.
	SaveCompanyName(ctx context.Context, symbol, name string) error

	// CompanyName returns the stored name, or "" when none is stored.
	CompanyName(ctx context.Context, symbol string) (string, error)
}
