// Package backtest is the vectorized backtest core. It turns a signal
// series into held positions, replays them against a price series with an
// all-in/all-out cash ledger and reduces the resulting trace to summary
// statistics. Everything here is pure: no I/O, no logging, no shared state.
package backtest

import (
	"quantapp/internal/domain"
)

// Options configures a single backtest run.
type Options struct {
	InitialCapital float64 `json:"initial_capital"`
	PeriodsPerYear float64 `json:"periods_per_year"`
}

// Result is the complete, serializable outcome of a run.
type Result struct {
	Positions  []domain.Exposure `json:"positions"`
	Trace      []PortfolioState  `json:"trace"`
	Summary    Summary           `json:"summary"`
	RoundTrips []RoundTrip       `json:"round_trips"`
}

// Run validates its inputs, translates signals into positions, simulates
// the portfolio and summarizes it. On error no partial result is returned.
func Run(bars []domain.Bar, signals []domain.Exposure, opts Options) (*Result, error) {
	const op = "backtest"
	if err := domain.ValidateSeries(op, bars); err != nil {
		return nil, err
	}
	if len(signals) != len(bars) {
		return nil, domain.InvalidInput(op, -1, "%d signals for %d bars", len(signals), len(bars))
	}

	positions, err := Translate(signals)
	if err != nil {
		return nil, err
	}
	trace, err := Simulate(bars, positions, opts.InitialCapital)
	if err != nil {
		return nil, err
	}
	summary, err := Summarize(trace, SummaryOptions{PeriodsPerYear: opts.PeriodsPerYear})
	if err != nil {
		return nil, err
	}

	return &Result{
		Positions:  positions,
		Trace:      trace,
		Summary:    summary,
		RoundTrips: RoundTrips(trace),
	}, nil
}
