// Package report renders backtest reports for the terminal: a styled
// metrics table, an ASCII chart and a per-bar CSV trace.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"quantapp/internal/engine"
	"quantapp/internal/util"
)

// styles are bound to one renderer so colors are only emitted when the
// destination is a terminal.
type styles struct {
	title lipgloss.Style
	label lipgloss.Style
	value lipgloss.Style
	gain  lipgloss.Style
	loss  lipgloss.Style
	dim   lipgloss.Style
	box   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		label: r.NewStyle().Foreground(lipgloss.Color("245")).Width(24),
		value: r.NewStyle().Foreground(lipgloss.Color("15")),
		gain:  r.NewStyle().Foreground(lipgloss.Color("10")),
		loss:  r.NewStyle().Foreground(lipgloss.Color("9")),
		dim:   r.NewStyle().Foreground(lipgloss.Color("245")),
		box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1),
	}
}

// signed picks the gain or loss style by the sign of v.
func (s styles) signed(v float64) lipgloss.Style {
	switch {
	case v > 0:
		return s.gain
	case v < 0:
		return s.loss
	default:
		return s.value
	}
}

// WriteSummary writes the metrics table for rep to w. Undefined statistics
// print as "n/a".
func WriteSummary(w io.Writer, rep *engine.Report) error {
	st := newStyles(w)
	sum := rep.Result.Summary

	title := rep.Symbol
	if rep.CompanyName != "" {
		title = fmt.Sprintf("%s (%s)", rep.Symbol, rep.CompanyName)
	}
	header := []string{
		st.title.Render("Backtest: " + title),
		st.dim.Render(fmt.Sprintf("%s %d/%d", rep.Params.Strategy, rep.Params.ShortWindow, rep.Params.LongWindow)),
	}
	if n := len(rep.Bars); n > 0 {
		header = append(header, st.dim.Render(fmt.Sprintf("%s to %s, %s bars",
			rep.Bars[0].Timestamp.Format(util.DateLayout),
			rep.Bars[n-1].Timestamp.Format(util.DateLayout),
			FormatInt(int64(n)))))
	}

	annual := FormatPercent(sum.AnnualizedReturn)
	if !sum.Annualized {
		annual += st.dim.Render(" (under one year, not annualized)")
	}

	rows := []struct {
		label string
		value string
	}{
		{"Initial Capital", st.value.Render(FormatMoney(sum.InitialEquity))},
		{"Final Equity", st.value.Render(FormatMoney(sum.FinalEquity))},
		{"Total Return", st.signed(sum.TotalReturn).Render(FormatPercent(sum.TotalReturn))},
		{"Annualized Return", st.signed(sum.AnnualizedReturn).Render(annual)},
		{"Max Drawdown", st.signed(sum.MaxDrawdown).Render(FormatPercent(sum.MaxDrawdown))},
		{"Sharpe Ratio", st.value.Render(FormatRatio(sum.SharpeRatio))},
		{"Annualized Volatility", st.value.Render(FormatNullPercent(sum.AnnualizedVolatility))},
		{"Number Of Trades", st.value.Render(FormatInt(int64(sum.NumberOfTrades)))},
		{"Round Trips", st.value.Render(FormatInt(int64(sum.RoundTrips)))},
		{"Win Rate", st.value.Render(FormatNullPercent(sum.WinRate))},
		{"Profit/Loss Ratio", st.value.Render(FormatRatio(sum.ProfitLossRatio))},
	}

	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, st.label.Render(r.label)+r.value)
	}

	out := lipgloss.JoinVertical(lipgloss.Left,
		strings.Join(header, "\n"),
		"",
		st.box.Render(strings.Join(lines, "\n")),
	)
	_, err := fmt.Fprintln(w, out)
	return err
}
