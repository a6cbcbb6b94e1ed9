package backtest

import (
	"time"

	"github.com/shopspring/decimal"

	"quantapp/internal/domain"
)

// RoundTrip is one entry into the market and the matching exit.
type RoundTrip struct {
	EntryTime  time.Time       `json:"entry_time"`
	EntryPrice float64         `json:"entry_price"`
	ExitTime   time.Time       `json:"exit_time"`
	ExitPrice  float64         `json:"exit_price"`
	Units      int64           `json:"units"`
	Bars       int             `json:"bars"`
	Return     float64         `json:"return"`
	Profit     decimal.Decimal `json:"profit"`
	// Open is set when the trace ends while still long; the trip is then
	// marked to the last close.
	Open bool `json:"open"`
}

// RoundTrips pairs every Flat→Long position change in the trace with the
// following Long→Flat change. An entry that bought no units holds nothing
// and opens no round trip.
func RoundTrips(trace []PortfolioState) []RoundTrip {
	var (
		trips   []RoundTrip
		current *RoundTrip
		entryAt int
	)
	prev := domain.ExposureFlat
	for t, s := range trace {
		switch {
		case s.Position == domain.ExposureLong && prev == domain.ExposureFlat && s.Units > 0:
			current = &RoundTrip{EntryTime: s.Timestamp, EntryPrice: s.Close, Units: s.Units}
			entryAt = t
		case s.Position == domain.ExposureFlat && prev == domain.ExposureLong && current != nil:
			trips = append(trips, closeTrip(*current, s, t-entryAt, false))
			current = nil
		}
		prev = s.Position
	}
	if current != nil {
		last := trace[len(trace)-1]
		trips = append(trips, closeTrip(*current, last, len(trace)-1-entryAt, true))
	}
	return trips
}

func closeTrip(rt RoundTrip, exit PortfolioState, bars int, open bool) RoundTrip {
	rt.ExitTime = exit.Timestamp
	rt.ExitPrice = exit.Close
	rt.Bars = bars
	rt.Open = open
	rt.Return = exit.Close/rt.EntryPrice - 1
	diff := decimal.NewFromFloat(exit.Close).Sub(decimal.NewFromFloat(rt.EntryPrice))
	rt.Profit = diff.Mul(decimal.NewFromInt(rt.Units))
	return rt
}

type roundTripStats struct {
	winRate domain.NullFloat
	plRatio domain.NullFloat
}

// tradeStats computes the win rate and the profit/loss ratio (average
// winning return over the absolute average losing return) of the closed
// round trips. A statistic whose denominator is empty stays undefined.
func tradeStats(trips []RoundTrip) roundTripStats {
	var (
		closed          int
		wins, losses    int
		winSum, lossSum float64
	)
	for _, rt := range trips {
		if rt.Open {
			continue
		}
		closed++
		switch {
		case rt.Return > 0:
			wins++
			winSum += rt.Return
		case rt.Return < 0:
			losses++
			lossSum += rt.Return
		}
	}

	var st roundTripStats
	if closed > 0 {
		st.winRate = domain.Float(float64(wins) / float64(closed))
	}
	if losses > 0 {
		avgWin := 0.0
		if wins > 0 {
			avgWin = winSum / float64(wins)
		}
		avgLoss := -lossSum / float64(losses)
		st.plRatio = domain.Float(avgWin / avgLoss)
	}
	return st
}
