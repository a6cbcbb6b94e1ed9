// Package domain defines the core data types shared across the quantapp
// packages: bars, exposures, optional statistics, and the error taxonomy.
package domain

import (
	"encoding/json"
	"math"
	"time"
)

// Bar is a single OHLCV observation for one trading period.
type Bar struct {
	Symbol     string    `json:"symbol"`
	Timestamp  time.Time `json:"timestamp"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     int64     `json:"volume"`
	TradeCount int64     `json:"trade_count,omitempty"`
	VWAP       float64   `json:"vwap,omitempty"`
}

// Exposure is the market exposure requested by a signal or held by a
// position. Only long and flat exist: there is no shorting.
type Exposure string

const (
	ExposureFlat Exposure = "flat"
	ExposureLong Exposure = "long"
)

// Valid reports whether e is one of the known exposures.
func (e Exposure) Valid() bool {
	return e == ExposureFlat || e == ExposureLong
}

// ValidateSeries checks that bars form a usable price series: non-empty,
// strictly ascending timestamps and positive closes. The returned error
// carries the index of the first offending bar.
func ValidateSeries(op string, bars []Bar) error {
	if len(bars) == 0 {
		return InvalidInput(op, -1, "price series is empty")
	}
	for i, b := range bars {
		if !(b.Close > 0) || math.IsInf(b.Close, 0) {
			return InvalidInput(op, i, "close %v at %s is not a positive price", b.Close, b.Timestamp.Format(time.DateOnly))
		}
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return InvalidInput(op, i, "timestamp %s does not follow %s",
				b.Timestamp.Format(time.RFC3339), bars[i-1].Timestamp.Format(time.RFC3339))
		}
	}
	return nil
}

// NullFloat is a float64 statistic that may be undefined, e.g. a Sharpe
// ratio over a zero-variance return series. It encodes as JSON null when
// not Valid.
type NullFloat struct {
	Value float64
	Valid bool
}

// Float returns a defined NullFloat holding v. NaN and infinities are
// reported as undefined.
func Float(v float64) NullFloat {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NullFloat{}
	}
	return NullFloat{Value: v, Valid: true}
}

// MarshalJSON implements json.Marshaler.
func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = NullFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = NullFloat{Value: v, Valid: true}
	return nil
}
