package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"quantapp/internal/domain"
	"quantapp/internal/store"
	"quantapp/internal/util"
)

// Compile-time interface checks.
var (
	_ BarSource  = (*CachedSource)(nil)
	_ NameSource = (*CachedSource)(nil)
)

// DefaultGapTolerance is the number of calendar days a cached series may
// start late or end early and still count as covering the request. Four days
// spans a weekend plus a holiday on either side.
const DefaultGapTolerance = 4

// CachedSource serves bars from a BarStore and only asks the upstream source
// for the head and tail of a request that the store does not cover yet.
// Fetched bars are written through to the store.
type CachedSource struct {
	store    store.BarStore
	upstream BarSource
	log      *slog.Logger

	// GapTolerance overrides DefaultGapTolerance when positive.
	GapTolerance int

	now func() time.Time
}

// NewCachedSource creates a CachedSource reading from s and filling gaps from
// upstream. A nil upstream makes the source cache-only.
func NewCachedSource(s store.BarStore, upstream BarSource) *CachedSource {
	return &CachedSource{
		store:    s,
		upstream: upstream,
		log:      slog.Default().With("component", "bar-cache"),
		now:      time.Now,
	}
}

// FetchBars returns bars for symbol in [start, end], fetching missing ranges
// from upstream first. The end date is clamped to today.
func (c *CachedSource) FetchBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	symbol = strings.ToUpper(symbol)
	first := util.DateOf(start)
	last := util.DateOf(end)
	if today := util.DateOf(c.now()); last.After(today) {
		last = today
	}
	if last.Before(first) {
		return nil, domain.DataUnavailable("fetch", nil, "no trading days for %s between %s and %s",
			symbol, start.Format(util.DateLayout), end.Format(util.DateLayout))
	}

	cached, err := c.store.ReadBars(ctx, symbol, first, util.EndOfDay(last))
	if err != nil {
		return nil, fmt.Errorf("reading cached bars for %s: %w", symbol, err)
	}

	var missing []DateRange
	if c.upstream != nil {
		missing = c.missingRanges(cached, first, last)
	}
	fetched := 0
	for _, r := range missing {
		bars, err := c.upstream.FetchBars(ctx, symbol, r.Start, r.End)
		if err != nil {
			if errors.Is(err, domain.ErrDataUnavailable) {
				c.log.Debug("no upstream bars for range", "symbol", symbol,
					"start", r.Start.Format(util.DateLayout), "end", r.End.Format(util.DateLayout))
				continue
			}
			if len(cached) > 0 && ctx.Err() == nil {
				c.log.Warn("upstream fetch failed, serving cached bars", "symbol", symbol, "error", err)
				continue
			}
			return nil, err
		}
		if err := c.store.WriteBars(ctx, bars); err != nil {
			return nil, fmt.Errorf("caching bars for %s: %w", symbol, err)
		}
		fetched += len(bars)
	}

	if fetched > 0 {
		cached, err = c.store.ReadBars(ctx, symbol, first, util.EndOfDay(last))
		if err != nil {
			return nil, fmt.Errorf("re-reading cached bars for %s: %w", symbol, err)
		}
	}
	c.log.Debug("bars served", "symbol", symbol, "bars", len(cached), "fetched", fetched, "gaps", len(missing))

	if len(cached) == 0 {
		return nil, domain.DataUnavailable("fetch", nil, "no bars for %s between %s and %s",
			symbol, first.Format(util.DateLayout), last.Format(util.DateLayout))
	}
	return cached, nil
}

// missingRanges returns the parts of [first, last] that the cached bars do
// not cover: the head before the first bar, every interior stretch between
// consecutive bars more than the gap tolerance apart, and the tail.
func (c *CachedSource) missingRanges(cached []domain.Bar, first, last time.Time) []DateRange {
	if len(cached) == 0 {
		return []DateRange{{Start: first, End: last}}
	}
	tol := c.GapTolerance
	if tol <= 0 {
		tol = DefaultGapTolerance
	}

	var out []DateRange
	head := util.DateOf(cached[0].Timestamp)
	if util.CalendarDays(first, head) > tol {
		out = append(out, DateRange{Start: first, End: head.AddDate(0, 0, -1)})
	}
	for i := 1; i < len(cached); i++ {
		prev := util.DateOf(cached[i-1].Timestamp)
		next := util.DateOf(cached[i].Timestamp)
		if util.CalendarDays(prev, next) > tol {
			out = append(out, DateRange{Start: prev.AddDate(0, 0, 1), End: next.AddDate(0, 0, -1)})
		}
	}
	tail := util.DateOf(cached[len(cached)-1].Timestamp)
	if util.CalendarDays(tail, last) > tol {
		out = append(out, DateRange{Start: tail.AddDate(0, 0, 1), End: last})
	}
	return out
}

// CompanyName returns the cached display name of symbol, asking upstream and
// caching the answer when the store has none. It returns "" if no name is
// known.
func (c *CachedSource) CompanyName(ctx context.Context, symbol string) (string, error) {
	names, cacheable := c.store.(store.NameStore)
	if cacheable {
		name, err := names.CompanyName(ctx, symbol)
		if err != nil {
			return "", err
		}
		if name != "" {
			return name, nil
		}
	}

	ns, ok := c.upstream.(NameSource)
	if !ok {
		return "", nil
	}
	name, err := ns.CompanyName(ctx, symbol)
	if err != nil || name == "" {
		return "", err
	}
	if cacheable {
		if err := names.SaveCompanyName(ctx, symbol, name); err != nil {
			c.log.Warn("caching company name failed", "symbol", symbol, "error", err)
		}
	}
	return name, nil
}
