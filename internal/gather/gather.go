// Package gather fetches daily bars from upstream market-data providers and
// keeps the local bar store warm.
package gather

import (
	"context"
	"sort"
	"strings"
	"time"

	"quantapp/internal/domain"
	"quantapp/internal/util"
)

// BarSource supplies daily bars for one symbol over an inclusive calendar
// date range. Implementations return bars in ascending timestamp order and
// fail with domain.ErrDataUnavailable when the symbol has no bars in range.
type BarSource interface {
	FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)
}

// NameSource resolves the display name of a symbol.
type NameSource interface {
	CompanyName(ctx context.Context, symbol string) (string, error)
}

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs the gathering work and returns when it is done or ctx is
	// cancelled.
	Run(ctx context.Context) error
}

// DateRange represents an inclusive calendar date range.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// String formats r as "YYYY-MM-DD..YYYY-MM-DD".
func (r DateRange) String() string {
	return r.Start.Format(util.DateLayout) + ".." + r.End.Format(util.DateLayout)
}

// ---------------------------------------------------------------------------
// StaticSource
// ---------------------------------------------------------------------------

// Compile-time interface checks.
var (
	_ BarSource  = (*StaticSource)(nil)
	_ NameSource = (*StaticSource)(nil)
)

// StaticSource serves bars held in memory, e.g. loaded from a CSV file.
type StaticSource struct {
	bars  map[string][]domain.Bar
	names map[string]string
}

// NewStaticSource creates an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{
		bars:  make(map[string][]domain.Bar),
		names: make(map[string]string),
	}
}

// Add stores bars for symbol, sorted by timestamp, along with an optional
// display name.
func (s *StaticSource) Add(symbol, name string, bars []domain.Bar) {
	symbol = strings.ToUpper(symbol)
	sorted := append([]domain.Bar(nil), bars...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	s.bars[symbol] = sorted
	if name != "" {
		s.names[symbol] = name
	}
}

// FetchBars returns the stored bars whose date falls in [start, end].
func (s *StaticSource) FetchBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	symbol = strings.ToUpper(symbol)
	lo, hi := util.DateOf(start).UnixMilli(), util.EndOfDay(end).UnixMilli()

	var out []domain.Bar
	for _, b := range s.bars[symbol] {
		if ms := b.Timestamp.UnixMilli(); ms >= lo && ms <= hi {
			out = append(out, b)
		}
	}
	if len(out) == 0 {
		return nil, domain.DataUnavailable("fetch", nil, "no bars for %s between %s and %s",
			symbol, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return out, nil
}

// CompanyName returns the name given to Add, or "" when none was given.
func (s *StaticSource) CompanyName(_ context.Context, symbol string) (string, error) {
	return s.names[strings.ToUpper(symbol)], nil
}
