package backtest

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantapp/internal/domain"
)

const (
	F = domain.ExposureFlat
	L = domain.ExposureLong
)

func makeBars(closes ...float64) []domain.Bar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{Symbol: "TEST", Timestamp: start.AddDate(0, 0, i), Close: c}
	}
	return bars
}

// randomWalk produces a positive price series and a random signal series.
func randomWalk(r *rand.Rand, n int) ([]domain.Bar, []domain.Exposure) {
	closes := make([]float64, n)
	price := 50 + r.Float64()*50
	for i := range closes {
		price *= 1 + (r.Float64()-0.5)*0.08
		closes[i] = math.Round(price*100) / 100
	}
	signals := make([]domain.Exposure, n)
	for i := range signals {
		if r.Intn(3) == 0 {
			signals[i] = L
		} else {
			signals[i] = F
		}
	}
	return makeBars(closes...), signals
}

// ---------------------------------------------------------------------------
// Translate
// ---------------------------------------------------------------------------

func TestTranslate(t *testing.T) {
	tests := []struct {
		name    string
		signals []domain.Exposure
		want    []domain.Exposure
	}{
		{"single", []domain.Exposure{L}, []domain.Exposure{F}},
		{"lag", []domain.Exposure{L, F, L, L}, []domain.Exposure{F, L, F, L}},
		{"all flat", []domain.Exposure{F, F, F}, []domain.Exposure{F, F, F}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Translate(tt.signals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranslateRejectsBadInput(t *testing.T) {
	_, err := Translate(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = Translate([]domain.Exposure{F, "short"})
	require.ErrorIs(t, err, domain.ErrInvalidInput)
	var de *domain.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, 1, de.Index)
}

// ---------------------------------------------------------------------------
// Simulate
// ---------------------------------------------------------------------------

func TestSimulateRejectsBadInput(t *testing.T) {
	bars := makeBars(10, 11, 12)
	flat := []domain.Exposure{F, F, F}

	tests := []struct {
		name      string
		bars      []domain.Bar
		positions []domain.Exposure
		capital   float64
		wantIndex int
	}{
		{"zero capital", bars, flat, 0, -1},
		{"negative capital", bars, flat, -100, -1},
		{"NaN capital", bars, flat, math.NaN(), -1},
		{"empty bars", nil, nil, 100, -1},
		{"misaligned", bars, flat[:2], 100, -1},
		{"non-positive close", makeBars(10, 0, 12), flat, 100, 1},
		{"unknown position", bars, []domain.Exposure{F, L, "x"}, 100, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trace, err := Simulate(tt.bars, tt.positions, tt.capital)
			assert.Nil(t, trace)
			require.ErrorIs(t, err, domain.ErrInvalidInput)
			var de *domain.Error
			require.True(t, errors.As(err, &de))
			assert.Equal(t, tt.wantIndex, de.Index)
		})
	}
}

func TestSimulateInsufficientCash(t *testing.T) {
	trace, err := Simulate(makeBars(10, 8, 9), []domain.Exposure{L, L, F}, 5)
	require.NoError(t, err)

	for i, s := range trace {
		assert.Equal(t, int64(0), s.Units, "bar %d", i)
		assert.True(t, s.Cash.Equal(decimal.NewFromInt(5)), "bar %d cash = %s", i, s.Cash)
	}
}

func TestRunUnaffordableEntryIsNotARoundTrip(t *testing.T) {
	// capital 5 cannot buy a unit at 10; the later entry at 4 can.
	bars := makeBars(10, 10, 20, 4, 4, 8, 8)
	signals := []domain.Exposure{L, F, F, L, F, F, F}

	res, err := Run(bars, signals, Options{InitialCapital: 5})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Summary.NumberOfTrades)

	require.Len(t, res.RoundTrips, 1)
	rt := res.RoundTrips[0]
	assert.Equal(t, int64(1), rt.Units)
	assert.InDelta(t, 4.0, rt.EntryPrice, 1e-12)
	assert.InDelta(t, 8.0, rt.ExitPrice, 1e-12)

	assert.Equal(t, 1, res.Summary.RoundTrips)
	require.True(t, res.Summary.WinRate.Valid)
	assert.InDelta(t, 1.0, res.Summary.WinRate.Value, 1e-12)
	assert.False(t, res.Summary.ProfitLossRatio.Valid, "the 10→20 move was never held")
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func TestRunFiveBarScenario(t *testing.T) {
	bars := makeBars(10, 11, 9, 12, 15)
	signals := []domain.Exposure{F, F, L, L, F}

	res, err := Run(bars, signals, Options{InitialCapital: 100})
	require.NoError(t, err)

	assert.Equal(t, []domain.Exposure{F, F, F, L, L}, res.Positions)

	at3 := res.Trace[3]
	assert.Equal(t, int64(8), at3.Units)
	assert.True(t, at3.Cash.Equal(decimal.NewFromInt(4)), "cash at bar 3 = %s", at3.Cash)

	at4 := res.Trace[4]
	assert.True(t, at4.TotalEquity.Equal(decimal.NewFromInt(124)), "equity at bar 4 = %s", at4.TotalEquity)

	s := res.Summary
	assert.InDelta(t, 0.24, s.TotalReturn, 1e-12)
	assert.Equal(t, 1, s.NumberOfTrades)
	assert.Equal(t, 0.0, s.MaxDrawdown)
	assert.False(t, s.Annualized)
	assert.InDelta(t, 0.24, s.AnnualizedReturn, 1e-12)

	// returns [0 0 0 0.24]: mean 0.06, sample stdev 0.12
	require.True(t, s.SharpeRatio.Valid)
	assert.InDelta(t, 0.5*math.Sqrt(252), s.SharpeRatio.Value, 1e-9)
	require.True(t, s.AnnualizedVolatility.Valid)
	assert.InDelta(t, 0.12*math.Sqrt(252), s.AnnualizedVolatility.Value, 1e-9)

	require.Len(t, res.RoundTrips, 1)
	rt := res.RoundTrips[0]
	assert.True(t, rt.Open)
	assert.Equal(t, 12.0, rt.EntryPrice)
	assert.Equal(t, 15.0, rt.ExitPrice)
	assert.InDelta(t, 0.25, rt.Return, 1e-12)
	assert.True(t, rt.Profit.Equal(decimal.NewFromInt(24)))
	assert.False(t, s.WinRate.Valid, "no closed round trips")
}

func TestRunAllFlat(t *testing.T) {
	bars := makeBars(10, 12, 8, 11, 9, 13)
	signals := make([]domain.Exposure, len(bars))
	for i := range signals {
		signals[i] = F
	}

	res, err := Run(bars, signals, Options{InitialCapital: 1000})
	require.NoError(t, err)

	for _, s := range res.Trace {
		assert.True(t, s.TotalEquity.Equal(decimal.NewFromInt(1000)))
		assert.Equal(t, int64(0), s.Units)
	}
	assert.Equal(t, 0.0, res.Summary.TotalReturn)
	assert.Equal(t, 0.0, res.Summary.MaxDrawdown)
	assert.Equal(t, 0, res.Summary.NumberOfTrades)
	assert.False(t, res.Summary.SharpeRatio.Valid, "Sharpe must be undefined for zero variance")
	assert.False(t, res.Summary.AnnualizedVolatility.Valid)
	assert.Empty(t, res.RoundTrips)
}

func TestRunDrawdown(t *testing.T) {
	res, err := Run(makeBars(10, 20, 10), []domain.Exposure{L, L, L}, Options{InitialCapital: 100})
	require.NoError(t, err)
	assert.InDelta(t, -0.5, res.Summary.MaxDrawdown, 1e-12)
}

func TestRunClosedRoundTrips(t *testing.T) {
	// positions [F L F L]: buy 8 @12, sell @9, buy 6 @11
	res, err := Run(makeBars(10, 12, 9, 11), []domain.Exposure{L, F, L, F}, Options{InitialCapital: 100})
	require.NoError(t, err)

	require.Len(t, res.RoundTrips, 2)
	closed := res.RoundTrips[0]
	assert.False(t, closed.Open)
	assert.InDelta(t, -0.25, closed.Return, 1e-12)
	assert.True(t, closed.Profit.Equal(decimal.NewFromInt(-24)))
	assert.Equal(t, 1, closed.Bars)
	assert.True(t, res.RoundTrips[1].Open)

	s := res.Summary
	assert.Equal(t, 3, s.NumberOfTrades)
	assert.Equal(t, 2, s.RoundTrips)
	require.True(t, s.WinRate.Valid)
	assert.Equal(t, 0.0, s.WinRate.Value)
	require.True(t, s.ProfitLossRatio.Valid)
	assert.Equal(t, 0.0, s.ProfitLossRatio.Value)
	assert.True(t, res.Trace[3].Cash.Equal(decimal.NewFromInt(10)))
}

func TestRunRejectsMismatchedSignals(t *testing.T) {
	_, err := Run(makeBars(10, 11), []domain.Exposure{F}, Options{InitialCapital: 100})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// ---------------------------------------------------------------------------
// Summarize
// ---------------------------------------------------------------------------

func TestSummarizeZeroStartingEquity(t *testing.T) {
	trace := []PortfolioState{
		{Position: F, TotalEquity: decimal.Zero},
		{Position: F, TotalEquity: decimal.NewFromInt(10)},
	}
	_, err := Summarize(trace, SummaryOptions{})
	require.ErrorIs(t, err, domain.ErrDegenerateInput)

	var de *domain.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "total_return", de.Metric)
}

func TestSummarizeRejectsBadInput(t *testing.T) {
	_, err := Summarize(nil, SummaryOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	trace := []PortfolioState{{Position: F, TotalEquity: decimal.NewFromInt(1)}}
	_, err = Summarize(trace, SummaryOptions{PeriodsPerYear: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSummarizeAnnualizes(t *testing.T) {
	// 5 bars = 4 periods, with 4 periods per year the trace spans a year.
	trace := make([]PortfolioState, 5)
	for i := range trace {
		trace[i] = PortfolioState{Position: F, TotalEquity: decimal.NewFromInt(int64(100 + 10*i))}
	}
	s, err := Summarize(trace, SummaryOptions{PeriodsPerYear: 4})
	require.NoError(t, err)
	assert.True(t, s.Annualized)
	assert.InDelta(t, 0.4, s.AnnualizedReturn, 1e-12)

	s, err = Summarize(trace, SummaryOptions{PeriodsPerYear: 2})
	require.NoError(t, err)
	assert.InDelta(t, math.Pow(1.4, 0.5)-1, s.AnnualizedReturn, 1e-12)

	s, err = Summarize(trace, SummaryOptions{PeriodsPerYear: 252})
	require.NoError(t, err)
	assert.False(t, s.Annualized)
	assert.InDelta(t, s.TotalReturn, s.AnnualizedReturn, 1e-12)
}

func TestTradeStats(t *testing.T) {
	trips := []RoundTrip{
		{Return: 0.2},
		{Return: 0.1},
		{Return: -0.05},
		{Return: 0.5, Open: true},
	}
	st := tradeStats(trips)
	require.True(t, st.winRate.Valid)
	assert.InDelta(t, 2.0/3.0, st.winRate.Value, 1e-12)
	require.True(t, st.plRatio.Valid)
	assert.InDelta(t, 3.0, st.plRatio.Value, 1e-12)

	st = tradeStats([]RoundTrip{{Return: 0.2}})
	assert.False(t, st.plRatio.Valid, "no losing trips")
}

// ---------------------------------------------------------------------------
// Properties over random inputs
// ---------------------------------------------------------------------------

func TestRunProperties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		n := 1 + r.Intn(120)
		bars, signals := randomWalk(r, n)
		capital := 50 + r.Float64()*10000

		res, err := Run(bars, signals, Options{InitialCapital: capital})
		require.NoError(t, err)
		require.Len(t, res.Trace, n)

		// one-bar lag
		assert.Equal(t, F, res.Positions[0])
		for i := 1; i < n; i++ {
			require.Equal(t, signals[i-1], res.Positions[i], "iter %d bar %d", iter, i)
		}

		changes := 0
		for i, s := range res.Trace {
			require.False(t, s.Cash.IsNegative(), "iter %d bar %d: negative cash %s", iter, i, s.Cash)
			require.True(t, s.TotalEquity.Equal(s.Cash.Add(s.HoldingsValue)))
			if i == 0 {
				continue
			}
			prev := res.Trace[i-1]
			if s.Position == prev.Position {
				require.Equal(t, prev.Units, s.Units, "iter %d bar %d", iter, i)
				require.True(t, prev.Cash.Equal(s.Cash), "iter %d bar %d", iter, i)
			} else {
				changes++
			}
		}
		assert.Equal(t, changes, res.Summary.NumberOfTrades)

		dd := res.Summary.MaxDrawdown
		assert.True(t, dd <= 0 && dd >= -1, "drawdown %v out of [-1, 0]", dd)
		nonDecreasing := true
		for i := 1; i < n; i++ {
			if res.Trace[i].TotalEquity.InexactFloat64() < res.Trace[i-1].TotalEquity.InexactFloat64() {
				nonDecreasing = false
				break
			}
		}
		assert.Equal(t, nonDecreasing, dd == 0, "iter %d: drawdown %v, equity non-decreasing %v", iter, dd, nonDecreasing)

		// round trips alternate entry and exit, only the last may be open
		for i, rt := range res.RoundTrips {
			if rt.Open {
				assert.Equal(t, len(res.RoundTrips)-1, i)
			}
			assert.False(t, rt.ExitTime.Before(rt.EntryTime))
		}

		again, err := Run(bars, signals, Options{InitialCapital: capital})
		require.NoError(t, err)
		assert.Equal(t, res, again, "runs must be deterministic")
	}
}
