package backtest

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"quantapp/internal/domain"
)

// PortfolioState is the portfolio after processing one bar.
type PortfolioState struct {
	Timestamp     time.Time       `json:"timestamp"`
	Close         float64         `json:"close"`
	Position      domain.Exposure `json:"position"`
	Units         int64           `json:"units"`
	Cash          decimal.Decimal `json:"cash"`
	HoldingsValue decimal.Decimal `json:"holdings_value"`
	TotalEquity   decimal.Decimal `json:"total_equity"`
}

// Simulate walks bars and positions once, in order, and returns the
// portfolio state after every bar. Entering long invests all cash in whole
// units at the bar's close; going flat sells every unit at the close. Cash
// and units change only on bars where the position changes, so a long entry
// that cannot afford a single unit stays at zero units until the next exit.
//
// All inputs are validated before the first state is produced.
func Simulate(bars []domain.Bar, positions []domain.Exposure, initialCapital float64) ([]PortfolioState, error) {
	const op = "simulate"
	if !(initialCapital > 0) || math.IsInf(initialCapital, 1) {
		return nil, domain.InvalidInput(op, -1, "initial capital %v must be positive", initialCapital)
	}
	if err := domain.ValidateSeries(op, bars); err != nil {
		return nil, err
	}
	if len(positions) != len(bars) {
		return nil, domain.InvalidInput(op, -1, "%d positions for %d bars", len(positions), len(bars))
	}
	for i, p := range positions {
		if !p.Valid() {
			return nil, domain.InvalidInput(op, i, "unknown position %q", p)
		}
	}

	cash := decimal.NewFromFloat(initialCapital)
	var units int64
	prev := domain.ExposureFlat

	trace := make([]PortfolioState, len(bars))
	for t, bar := range bars {
		price := decimal.NewFromFloat(bar.Close)

		switch {
		case positions[t] == domain.ExposureLong && prev == domain.ExposureFlat:
			n := cash.Div(price).Floor()
			// Div rounds to DivisionPrecision digits; never spend more than we hold.
			if n.Mul(price).GreaterThan(cash) {
				n = n.Sub(decimal.NewFromInt(1))
			}
			units = n.IntPart()
			cash = cash.Sub(n.Mul(price))
		case positions[t] == domain.ExposureFlat && prev == domain.ExposureLong:
			cash = cash.Add(decimal.NewFromInt(units).Mul(price))
			units = 0
		}
		prev = positions[t]

		holdings := decimal.NewFromInt(units).Mul(price)
		trace[t] = PortfolioState{
			Timestamp:     bar.Timestamp,
			Close:         bar.Close,
			Position:      positions[t],
			Units:         units,
			Cash:          cash,
			HoldingsValue: holdings,
			TotalEquity:   cash.Add(holdings),
		}
	}
	return trace, nil
}
