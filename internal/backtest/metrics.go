package backtest

import (
	"math"

	"github.com/shopspring/decimal"

	"quantapp/internal/domain"
)

// DefaultPeriodsPerYear is the number of daily bars in a trading year.
const DefaultPeriodsPerYear = 252

// SummaryOptions controls how per-bar statistics are annualized.
type SummaryOptions struct {
	// PeriodsPerYear is the number of bars per year. Zero selects
	// DefaultPeriodsPerYear.
	PeriodsPerYear float64
}

// Summary holds the aggregate statistics of one backtest.
type Summary struct {
	TotalReturn          float64          `json:"total_return"`
	AnnualizedReturn     float64          `json:"annualized_return"`
	Annualized           bool             `json:"annualized"`
	MaxDrawdown          float64          `json:"max_drawdown"`
	SharpeRatio          domain.NullFloat `json:"sharpe_ratio"`
	AnnualizedVolatility domain.NullFloat `json:"annualized_volatility"`
	NumberOfTrades       int              `json:"number_of_trades"`
	InitialEquity        decimal.Decimal  `json:"initial_equity"`
	FinalEquity          decimal.Decimal  `json:"final_equity"`
	RoundTrips           int              `json:"round_trips"`
	WinRate              domain.NullFloat `json:"win_rate"`
	ProfitLossRatio      domain.NullFloat `json:"profit_loss_ratio"`
}

// Summarize reduces a portfolio trace to a Summary.
//
// A trace whose first equity is zero has no defined total return and fails
// with DegenerateInput. The Sharpe ratio and volatility are left undefined
// when there are fewer than two returns or the returns never vary.
func Summarize(trace []PortfolioState, opts SummaryOptions) (Summary, error) {
	const op = "summarize"
	if len(trace) == 0 {
		return Summary{}, domain.InvalidInput(op, -1, "trace is empty")
	}
	ppy := opts.PeriodsPerYear
	if ppy == 0 {
		ppy = DefaultPeriodsPerYear
	}
	if !(ppy > 0) || math.IsInf(ppy, 1) {
		return Summary{}, domain.InvalidInput(op, -1, "periods per year %v must be positive", opts.PeriodsPerYear)
	}
	if trace[0].TotalEquity.IsZero() {
		return Summary{}, domain.DegenerateInput(op, "total_return", 0, "starting equity is zero")
	}

	equity := make([]float64, len(trace))
	for t, s := range trace {
		equity[t] = s.TotalEquity.InexactFloat64()
	}

	first, last := trace[0].TotalEquity, trace[len(trace)-1].TotalEquity
	total := last.Div(first).InexactFloat64() - 1

	sum := Summary{
		TotalReturn:      total,
		AnnualizedReturn: total,
		MaxDrawdown:      maxDrawdown(equity),
		InitialEquity:    first,
		FinalEquity:      last,
	}

	// Annualize only once the trace covers at least a full year; shorter
	// windows report the raw return rather than an extrapolated one.
	if periods := float64(len(trace) - 1); periods >= ppy {
		sum.AnnualizedReturn = math.Pow(1+total, ppy/periods) - 1
		sum.Annualized = true
	}

	returns := periodReturns(equity)
	if sd := stdev(returns); len(returns) >= 2 && sd > 0 {
		sum.SharpeRatio = domain.Float(mean(returns) / sd * math.Sqrt(ppy))
		sum.AnnualizedVolatility = domain.Float(sd * math.Sqrt(ppy))
	}

	positions := make([]domain.Exposure, len(trace))
	for t, s := range trace {
		positions[t] = s.Position
	}
	sum.NumberOfTrades = CountTrades(positions)

	trips := RoundTrips(trace)
	stats := tradeStats(trips)
	sum.RoundTrips = len(trips)
	sum.WinRate = stats.winRate
	sum.ProfitLossRatio = stats.plRatio
	return sum, nil
}

// periodReturns returns eq[t]/eq[t-1]-1 for every bar whose predecessor has
// non-zero equity.
func periodReturns(equity []float64) []float64 {
	out := make([]float64, 0, len(equity))
	for t := 1; t < len(equity); t++ {
		if equity[t-1] == 0 {
			continue
		}
		out = append(out, equity[t]/equity[t-1]-1)
	}
	return out
}

// maxDrawdown returns the most negative drawdown from the running peak, in
// [-1, 0].
func maxDrawdown(equity []float64) float64 {
	var peak, worst float64
	for _, e := range equity {
		if e > peak {
			peak = e
		}
		if peak == 0 {
			continue
		}
		if dd := e/peak - 1; dd < worst {
			worst = dd
		}
	}
	return worst
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// stdev is the sample standard deviation (n-1 denominator).
func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
