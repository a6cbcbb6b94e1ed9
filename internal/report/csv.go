package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"quantapp/internal/backtest"
	"quantapp/internal/util"
)

var traceHeader = []string{
	"date", "close", "position", "units", "cash", "holdings_value", "total_equity",
}

// WriteTraceCSV writes one row per bar of trace, preceded by a header row.
func WriteTraceCSV(w io.Writer, trace []backtest.PortfolioState) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(traceHeader); err != nil {
		return fmt.Errorf("writing trace header: %w", err)
	}
	for _, s := range trace {
		row := []string{
			s.Timestamp.Format(util.DateLayout),
			strconv.FormatFloat(s.Close, 'f', -1, 64),
			string(s.Position),
			strconv.FormatInt(s.Units, 10),
			s.Cash.StringFixed(2),
			s.HoldingsValue.StringFixed(2),
			s.TotalEquity.StringFixed(2),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing trace row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
