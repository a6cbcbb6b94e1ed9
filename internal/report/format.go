package report

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"quantapp/internal/domain"
)

// NA is printed for statistics that are undefined.
const NA = "n/a"

// FormatInt formats an integer with comma separators.
func FormatInt(n int64) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatMoney formats d with two decimals and comma-separated thousands.
func FormatMoney(d decimal.Decimal) string {
	r := d.Round(2)
	sign := ""
	if r.IsNegative() {
		sign = "-"
		r = r.Neg()
	}
	whole := r.Truncate(0)
	frac := r.Sub(whole).Shift(2).IntPart()
	return fmt.Sprintf("%s%s.%02d", sign, FormatInt(whole.IntPart()), frac)
}

// FormatPercent formats a fraction as a signed percentage, e.g. 0.0712 as
// "+7.12%".
func FormatPercent(f float64) string {
	return fmt.Sprintf("%+.2f%%", f*100)
}

// FormatNullPercent is FormatPercent for an optional statistic.
func FormatNullPercent(n domain.NullFloat) string {
	if !n.Valid {
		return NA
	}
	return FormatPercent(n.Value)
}

// FormatRatio formats an optional ratio with two decimals.
func FormatRatio(n domain.NullFloat) string {
	if !n.Valid {
		return NA
	}
	return fmt.Sprintf("%.2f", n.Value)
}
