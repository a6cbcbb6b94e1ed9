// Package builtins provides the strategy implementations that ship with
// quantapp.
package builtins

import (
	"context"

	"github.com/shopspring/decimal"

	"quantapp/internal/domain"
	"quantapp/internal/strategy"
)

// Compile-time interface checks.
var (
	_ strategy.Strategy = (*SMACross)(nil)
	_ strategy.Strategy = (*BuyAndHold)(nil)
)

// Strategy names accepted by the registry.
const (
	SMACrossName   = "sma-cross"
	BuyAndHoldName = "buy-and-hold"
)

// Indicator keys emitted by SMACross.
const (
	IndicatorSMAShort = "sma_short"
	IndicatorSMALong  = "sma_long"
)

// Register adds every builtin strategy to r.
func Register(r *strategy.Registry) {
	r.Register(SMACrossName, func(p strategy.Params) (strategy.Strategy, error) {
		return NewSMACross(p.ShortWindow, p.LongWindow)
	})
	r.Register(BuyAndHoldName, func(strategy.Params) (strategy.Strategy, error) {
		return BuyAndHold{}, nil
	})
}

// SMACross implements a simple moving average crossover strategy. The
// signal is long while the short-period SMA is strictly above the long-period
// SMA and flat otherwise, including before the long SMA has enough history.
type SMACross struct {
	shortPeriod int
	longPeriod  int
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods. It requires 1 <= short < long.
func NewSMACross(short, long int) (*SMACross, error) {
	if short < 1 {
		return nil, domain.InvalidInput("sma-cross", -1, "short window %d must be at least 1", short)
	}
	if long <= short {
		return nil, domain.InvalidInput("sma-cross", -1, "long window %d must exceed short window %d", long, short)
	}
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
	}, nil
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return SMACrossName
}

// Generate returns one signal per bar along with both SMA series.
func (s *SMACross) Generate(ctx context.Context, bars []domain.Bar) (*strategy.Signals, error) {
	if err := domain.ValidateSeries("sma-cross", bars); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Exact decimal sums keep equal averages equal, so a tie on a flat
	// stretch never turns into a spurious long.
	short := rollingMean(bars, s.shortPeriod)
	long := rollingMean(bars, s.longPeriod)

	out := &strategy.Signals{
		Exposures: make([]domain.Exposure, len(bars)),
		Indicators: map[string][]domain.NullFloat{
			IndicatorSMAShort: make([]domain.NullFloat, len(bars)),
			IndicatorSMALong:  make([]domain.NullFloat, len(bars)),
		},
	}
	for t := range bars {
		out.Exposures[t] = domain.ExposureFlat
		if short[t] != nil {
			out.Indicators[IndicatorSMAShort][t] = domain.Float(short[t].InexactFloat64())
		}
		if long[t] == nil {
			continue
		}
		out.Indicators[IndicatorSMALong][t] = domain.Float(long[t].InexactFloat64())
		if short[t].GreaterThan(*long[t]) {
			out.Exposures[t] = domain.ExposureLong
		}
	}
	return out, nil
}

// rollingMean returns the trailing mean of close over window bars, nil while
// fewer than window bars are available.
func rollingMean(bars []domain.Bar, window int) []*decimal.Decimal {
	out := make([]*decimal.Decimal, len(bars))
	n := decimal.NewFromInt(int64(window))
	sum := decimal.Zero
	for t, b := range bars {
		sum = sum.Add(decimal.NewFromFloat(b.Close))
		if t >= window {
			sum = sum.Sub(decimal.NewFromFloat(bars[t-window].Close))
		}
		if t >= window-1 {
			m := sum.Div(n)
			out[t] = &m
		}
	}
	return out
}

// BuyAndHold is always long. It serves as the benchmark for other
// strategies.
type BuyAndHold struct{}

// Name returns "buy-and-hold".
func (BuyAndHold) Name() string {
	return BuyAndHoldName
}

// Generate returns a long signal for every bar.
func (BuyAndHold) Generate(_ context.Context, bars []domain.Bar) (*strategy.Signals, error) {
	if err := domain.ValidateSeries("buy-and-hold", bars); err != nil {
		return nil, err
	}
	out := &strategy.Signals{Exposures: make([]domain.Exposure, len(bars))}
	for t := range out.Exposures {
		out.Exposures[t] = domain.ExposureLong
	}
	return out, nil
}
