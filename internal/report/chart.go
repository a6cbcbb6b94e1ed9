package report

import (
	"fmt"
	"math"
	"strings"

	"quantapp/internal/domain"
	"quantapp/internal/engine"
	"quantapp/internal/strategy/builtins"
	"quantapp/internal/util"
)

// Chart glyphs.
const (
	glyphClose    = '.'
	glyphShortSMA = 's'
	glyphLongSMA  = 'l'
	glyphBuy      = '^'
	glyphSell     = 'v'
	glyphEquity   = '*'
)

const axisWidth = 12

// panel is a fixed-size character grid with a value axis.
type panel struct {
	rows     [][]rune
	lo, hi   float64
	width    int
	height   int
	barCount int
}

func newPanel(width, height, barCount int, lo, hi float64) *panel {
	rows := make([][]rune, height)
	for i := range rows {
		rows[i] = []rune(strings.Repeat(" ", width))
	}
	return &panel{rows: rows, lo: lo, hi: hi, width: width, height: height, barCount: barCount}
}

// col maps bar index i onto a column.
func (p *panel) col(i int) int {
	if p.barCount <= p.width {
		return i
	}
	return i * p.width / p.barCount
}

// row maps value v onto a row, top row first.
func (p *panel) row(v float64) int {
	if p.hi == p.lo {
		return p.height / 2
	}
	frac := (v - p.lo) / (p.hi - p.lo)
	r := p.height - 1 - int(math.Round(frac*float64(p.height-1)))
	return min(max(r, 0), p.height-1)
}

func (p *panel) plot(i int, v float64, glyph rune) {
	p.rows[p.row(v)][p.col(i)] = glyph
}

func (p *panel) render(b *strings.Builder) {
	for r, line := range p.rows {
		label := ""
		switch r {
		case 0:
			label = fmt.Sprintf("%.2f", p.hi)
		case p.height - 1:
			label = fmt.Sprintf("%.2f", p.lo)
		}
		fmt.Fprintf(b, "%*s |%s\n", axisWidth, label, strings.TrimRight(string(line), " "))
	}
}

// RenderChart draws two stacked ASCII panels for rep: closing prices with
// the strategy's moving averages and trade markers, then the equity curve.
// When there are more bars than columns, later bars overwrite earlier ones
// in the same column.
func RenderChart(rep *engine.Report, width, height int) string {
	n := len(rep.Bars)
	if n == 0 || rep.Result == nil {
		return ""
	}
	width = max(width-axisWidth-2, 10)
	height = max(height, 4)
	if n < width {
		width = n
	}

	short := rep.Indicators[builtins.IndicatorSMAShort]
	long := rep.Indicators[builtins.IndicatorSMALong]

	lo, hi := math.Inf(1), math.Inf(-1)
	extend := func(v float64) {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	for _, b := range rep.Bars {
		extend(b.Close)
	}
	for _, series := range [][]domain.NullFloat{short, long} {
		for _, v := range series {
			if v.Valid {
				extend(v.Value)
			}
		}
	}

	price := newPanel(width, height, n, lo, hi)
	for i, b := range rep.Bars {
		price.plot(i, b.Close, glyphClose)
	}
	for _, s := range []struct {
		series []domain.NullFloat
		glyph  rune
	}{{long, glyphLongSMA}, {short, glyphShortSMA}} {
		for i, v := range s.series {
			if v.Valid && i < n {
				price.plot(i, v.Value, s.glyph)
			}
		}
	}
	prev := domain.ExposureFlat
	for i, pos := range rep.Result.Positions {
		switch {
		case pos == domain.ExposureLong && prev == domain.ExposureFlat:
			price.plot(i, rep.Bars[i].Close, glyphBuy)
		case pos == domain.ExposureFlat && prev == domain.ExposureLong:
			price.plot(i, rep.Bars[i].Close, glyphSell)
		}
		prev = pos
	}

	trace := rep.Result.Trace
	elo, ehi := math.Inf(1), math.Inf(-1)
	equity := make([]float64, len(trace))
	for i, s := range trace {
		equity[i] = s.TotalEquity.InexactFloat64()
		elo, ehi = math.Min(elo, equity[i]), math.Max(ehi, equity[i])
	}
	eq := newPanel(width, max(height/2, 3), len(trace), elo, ehi)
	for i, v := range equity {
		eq.plot(i, v, glyphEquity)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s close (%c)", rep.Symbol, glyphClose)
	if short != nil {
		fmt.Fprintf(&b, ", short SMA (%c), long SMA (%c)", glyphShortSMA, glyphLongSMA)
	}
	fmt.Fprintf(&b, ", buy (%c), sell (%c)\n", glyphBuy, glyphSell)
	price.render(&b)
	fmt.Fprintf(&b, "\nPortfolio equity (%c)\n", glyphEquity)
	eq.render(&b)
	fmt.Fprintf(&b, "%*s  %s%*s\n", axisWidth, "",
		rep.Bars[0].Timestamp.Format(util.DateLayout),
		max(width-len(util.DateLayout), 1), rep.Bars[n-1].Timestamp.Format(util.DateLayout))
	return b.String()
}
