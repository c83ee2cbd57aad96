package invoice

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// halfCent is the settlement precision. Differences smaller than half a minor
// unit are float noise, not money.
const halfCent = 0.005

// ParseAmount is the single boundary where user-typed numbers enter the
// engine. Blank, unparsable, negative or non-finite input becomes 0 so that
// a form can be recomputed on every keystroke.
func ParseAmount(raw string) float64 {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, "_", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return nonNegative(v)
}

// Round2 rounds half away from zero to two decimal places. Use it only when
// presenting values; the engine propagates unrounded amounts.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// MinorUnits converts an amount to integer cents, as card processors expect.
func MinorUnits(v float64) int64 {
	return decimal.NewFromFloat(nonNegative(v)).Shift(2).Round(0).IntPart()
}

// FormatMoney renders an amount for display in the given ISO currency and
// language. Unknown currencies fall back to a plain two-decimal rendering.
func FormatMoney(v float64, isoCode string, tag language.Tag) string {
	unit, err := currency.ParseISO(strings.ToUpper(isoCode))
	if err != nil {
		return formatPlain(v)
	}
	p := message.NewPrinter(tag)
	return p.Sprint(currency.Symbol(unit.Amount(Round2(v))))
}

func formatPlain(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func nonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func finitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

// grossBalance is total minus paid, floored at zero and snapped to zero
// below settlement precision.
func grossBalance(total, paid float64) float64 {
	b := total - paid
	if b < halfCent {
		return 0
	}
	return b
}
