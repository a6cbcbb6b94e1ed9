package gather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"quantapp/internal/domain"
	"quantapp/internal/util"
)

var _ Gatherer = (*CacheWarmer)(nil)

// CacheWarmer fills the bar cache for a list of symbols over one date range
// using a small worker pool. Symbols without data are logged and skipped.
type CacheWarmer struct {
	source     BarSource
	symbols    []string
	rng        DateRange
	maxWorkers int
	progress   *Progress
	log        *slog.Logger

	hits    atomic.Int64
	bars    atomic.Int64
	skipped atomic.Int64
}

// NewCacheWarmer creates a CacheWarmer. source is normally a CachedSource so
// that fetched bars land in the store.
func NewCacheWarmer(source BarSource, symbols []string, rng DateRange, maxWorkers int) *CacheWarmer {
	return &CacheWarmer{
		source:     source,
		symbols:    symbols,
		rng:        rng,
		maxWorkers: max(maxWorkers, 1),
		log:        slog.Default().With("gatherer", "cache-warm"),
	}
}

// SetProgress makes the warmer skip symbols already known to be empty for
// its range, record new ones, and mark the range completed on success.
func (w *CacheWarmer) SetProgress(p *Progress) {
	w.progress = p
}

// Name returns the gatherer identifier.
func (w *CacheWarmer) Name() string { return "cache-warm" }

// Stats returns the number of symbols that had data and the total bars
// served so far.
func (w *CacheWarmer) Stats() (symbols, bars int64) {
	return w.hits.Load(), w.bars.Load()
}

// Skipped returns the number of symbols skipped as known-empty.
func (w *CacheWarmer) Skipped() int64 {
	return w.skipped.Load()
}

// Run warms every symbol. It returns the first error that is not
// DataUnavailable, after the remaining workers have stopped, or the context
// error when the run was cancelled before finishing.
func (w *CacheWarmer) Run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	symCh := make(chan string, len(w.symbols))
	for _, s := range w.symbols {
		symCh <- s
	}
	close(symCh)

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
		runStart = time.Now()
	)

	w.log.Info("starting cache warm",
		"symbols", len(w.symbols),
		"start", w.rng.Start.Format(util.DateLayout),
		"end", w.rng.End.Format(util.DateLayout),
	)

	workers := min(w.maxWorkers, len(w.symbols))
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range symCh {
				if ctx.Err() != nil {
					return
				}
				if w.progress != nil && w.progress.IsEmpty(sym, w.rng) {
					w.skipped.Add(1)
					continue
				}
				bars, err := w.source.FetchBars(ctx, sym, w.rng.Start, w.rng.End)
				switch {
				case errors.Is(err, domain.ErrDataUnavailable):
					w.log.Warn("no data", "symbol", sym)
					if w.progress != nil {
						if err := w.progress.MarkEmpty(sym, w.rng); err != nil {
							w.log.Warn("recording empty symbol failed", "symbol", sym, "error", err)
						}
					}
				case err != nil:
					errOnce.Do(func() {
						firstErr = fmt.Errorf("warming %s: %w", sym, err)
						cancel()
					})
					return
				default:
					w.hits.Add(1)
					w.bars.Add(int64(len(bars)))
					w.log.Info("warmed", "symbol", sym, "bars", len(bars))
				}
			}
		}()
	}
	wg.Wait()

	symbols, bars := w.Stats()
	w.log.Info("cache warm complete",
		"hits", symbols,
		"bars", bars,
		"skipped", w.Skipped(),
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)
	if firstErr != nil {
		return firstErr
	}
	if err := parent.Err(); err != nil {
		return fmt.Errorf("cache warm interrupted: %w", err)
	}
	if w.progress != nil {
		if err := w.progress.MarkCompleted(w.rng); err != nil {
			return fmt.Errorf("recording completion: %w", err)
		}
	}
	return nil
}
