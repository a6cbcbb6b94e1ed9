// Package engine coordinates a single backtest run: it resolves the strategy,
// loads bars from a source, generates signals and hands everything to the
// backtest core.
package engine

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"quantapp/internal/backtest"
	"quantapp/internal/domain"
	"quantapp/internal/gather"
	"quantapp/internal/strategy"
	"quantapp/internal/util"
)

// DefaultStrategy is used when Params.Strategy is empty.
const DefaultStrategy = "sma-cross"

// Params describes one backtest request. Dates are calendar dates in
// YYYY-MM-DD form and the range is inclusive.
type Params struct {
	Symbol         string  `json:"symbol"`
	Start          string  `json:"start"`
	End            string  `json:"end"`
	Strategy       string  `json:"strategy,omitempty"`
	ShortWindow    int     `json:"short_window"`
	LongWindow     int     `json:"long_window"`
	InitialCapital float64 `json:"initial_capital"`
	PeriodsPerYear float64 `json:"periods_per_year,omitempty"`
}

// Report is everything a run produced, ready for rendering or serializing.
type Report struct {
	RunID       string                        `json:"run_id"`
	Symbol      string                        `json:"symbol"`
	CompanyName string                        `json:"company_name,omitempty"`
	Params      Params                        `json:"params"`
	Bars        []domain.Bar                  `json:"bars"`
	Signals     []domain.Exposure             `json:"signals"`
	Indicators  map[string][]domain.NullFloat `json:"indicators,omitempty"`
	Result      *backtest.Result              `json:"result"`
	Elapsed     time.Duration                 `json:"elapsed_ns"`
}

// Runner executes backtests against a bar source. It holds no per-run state
// and is safe for concurrent use.
type Runner struct {
	bars     gather.BarSource
	names    gather.NameSource
	registry *strategy.Registry
	log      *slog.Logger
}

// NewRunner creates a Runner. names may be nil, in which case reports carry
// no company name.
func NewRunner(bars gather.BarSource, names gather.NameSource, registry *strategy.Registry) *Runner {
	return &Runner{
		bars:     bars,
		names:    names,
		registry: registry,
		log:      slog.Default().With("component", "engine"),
	}
}

// Strategies returns the names of every registered strategy.
func (r *Runner) Strategies() []string {
	return r.registry.List()
}

// Normalize fills defaults into p and checks it, returning the parsed date
// range. Failures are domain.ErrInvalidInput.
func (p *Params) Normalize() (start, end time.Time, err error) {
	const op = "params"
	p.Symbol = strings.ToUpper(strings.TrimSpace(p.Symbol))
	if p.Symbol == "" {
		return start, end, domain.InvalidInput(op, -1, "symbol is required")
	}
	if p.Strategy == "" {
		p.Strategy = DefaultStrategy
	}
	if start, err = util.ParseDate(p.Start); err != nil {
		return start, end, domain.InvalidInput(op, -1, "start date: %v", err)
	}
	if end, err = util.ParseDate(p.End); err != nil {
		return start, end, domain.InvalidInput(op, -1, "end date: %v", err)
	}
	if !start.Before(end) {
		return start, end, domain.InvalidInput(op, -1, "start date %s must be before end date %s", p.Start, p.End)
	}
	if !(p.InitialCapital > 0) || math.IsInf(p.InitialCapital, 0) {
		return start, end, domain.InvalidInput(op, -1, "initial capital %v must be a positive number", p.InitialCapital)
	}
	return start, end, nil
}

// Run executes one backtest. Parameter and strategy problems are reported
// before any data is fetched.
func (r *Runner) Run(ctx context.Context, p Params) (*Report, error) {
	began := time.Now()
	start, end, err := p.Normalize()
	if err != nil {
		return nil, err
	}
	log := r.log.With("symbol", p.Symbol, "strategy", p.Strategy)

	strat, err := r.registry.New(p.Strategy, strategy.Params{
		ShortWindow: p.ShortWindow,
		LongWindow:  p.LongWindow,
	})
	if err != nil {
		return nil, err
	}

	bars, err := r.bars.FetchBars(ctx, p.Symbol, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, domain.DataUnavailable("fetch", nil, "no bars for %s between %s and %s", p.Symbol, p.Start, p.End)
	}
	log.Debug("bars loaded", "bars", len(bars),
		"first", bars[0].Timestamp.Format(util.DateLayout),
		"last", bars[len(bars)-1].Timestamp.Format(util.DateLayout))

	sig, err := strat.Generate(ctx, bars)
	if err != nil {
		return nil, err
	}

	res, err := backtest.Run(bars, sig.Exposures, backtest.Options{
		InitialCapital: p.InitialCapital,
		PeriodsPerYear: p.PeriodsPerYear,
	})
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:      uuid.NewString(),
		Symbol:     p.Symbol,
		Params:     p,
		Bars:       bars,
		Signals:    sig.Exposures,
		Indicators: sig.Indicators,
		Result:     res,
	}
	if r.names != nil {
		name, err := r.names.CompanyName(ctx, p.Symbol)
		if err != nil {
			log.Warn("company name lookup failed", "error", err)
		}
		report.CompanyName = name
	}
	report.Elapsed = time.Since(began)

	log.Info("backtest complete",
		"run_id", report.RunID,
		"bars", len(bars),
		"trades", res.Summary.NumberOfTrades,
		"total_return", res.Summary.TotalReturn,
		"elapsed", report.Elapsed)
	return report, nil
}
