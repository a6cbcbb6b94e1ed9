package backtest

import (
	"quantapp/internal/domain"
)

// Translate turns a signal series into the position series actually held.
// A signal observed at the close of bar t-1 is only acted on at bar t, so
// positions lag signals by one bar and the first position is always flat.
func Translate(signals []domain.Exposure) ([]domain.Exposure, error) {
	const op = "translate"
	if len(signals) == 0 {
		return nil, domain.InvalidInput(op, -1, "signal series is empty")
	}
	for i, s := range signals {
		if !s.Valid() {
			return nil, domain.InvalidInput(op, i, "unknown signal %q", s)
		}
	}

	positions := make([]domain.Exposure, len(signals))
	positions[0] = domain.ExposureFlat
	copy(positions[1:], signals[:len(signals)-1])
	return positions, nil
}

// CountTrades returns the number of bars at which the position changes.
func CountTrades(positions []domain.Exposure) int {
	n := 0
	for t := 1; t < len(positions); t++ {
		if positions[t] != positions[t-1] {
			n++
		}
	}
	return n
}
