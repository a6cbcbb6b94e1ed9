package gather

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"quantapp/internal/domain"
)

// LoadCSV reads daily bars for symbol from a CSV file with a header row.
// Column names are matched case-insensitively; "timestamp" (or "date") and
// "close" are required, "open", "high", "low", "volume", "trade_count" and
// "vwap" are optional. Timestamps are YYYY-MM-DD or RFC 3339.
//
// The result is validated as a price series; a bad row is reported as
// InvalidInput with its zero-based data row index.
func LoadCSV(path, symbol string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.DataUnavailable("load-csv", err, "opening %s", path)
	}
	defer f.Close()

	bars, err := ReadCSV(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return bars, nil
}

// ReadCSV is LoadCSV for an already-open reader.
func ReadCSV(r io.Reader, symbol string) ([]domain.Bar, error) {
	const op = "load-csv"
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, domain.InvalidInput(op, -1, "file is empty")
	}
	if err != nil {
		return nil, domain.InvalidInput(op, -1, "reading header: %v", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	tsCol, ok := cols["timestamp"]
	if !ok {
		tsCol, ok = cols["date"]
	}
	if !ok {
		return nil, domain.InvalidInput(op, -1, "missing timestamp or date column")
	}
	if _, ok := cols["close"]; !ok {
		return nil, domain.InvalidInput(op, -1, "missing close column")
	}

	symbol = strings.ToUpper(symbol)
	var bars []domain.Bar
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.InvalidInput(op, row, "%v", err)
		}

		ts, err := parseTimestamp(rec[tsCol])
		if err != nil {
			return nil, domain.InvalidInput(op, row, "bad timestamp %q", rec[tsCol])
		}
		b := domain.Bar{Symbol: symbol, Timestamp: ts}

		floats := []struct {
			name string
			dst  *float64
		}{
			{"close", &b.Close}, {"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"vwap", &b.VWAP},
		}
		for _, fc := range floats {
			i, ok := cols[fc.name]
			if !ok || (fc.name != "close" && rec[i] == "") {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, domain.InvalidInput(op, row, "bad %s %q", fc.name, rec[i])
			}
			*fc.dst = v
		}
		if i, ok := cols["volume"]; ok && rec[i] != "" {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return nil, domain.InvalidInput(op, row, "bad volume %q", rec[i])
			}
			b.Volume = int64(v)
		}
		if i, ok := cols["trade_count"]; ok && rec[i] != "" {
			v, err := strconv.ParseInt(strings.TrimSpace(rec[i]), 10, 64)
			if err != nil {
				return nil, domain.InvalidInput(op, row, "bad trade_count %q", rec[i])
			}
			b.TradeCount = v
		}
		bars = append(bars, b)
	}

	if err := domain.ValidateSeries(op, bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(time.DateOnly, s, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
