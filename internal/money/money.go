// Package money fixes the ledger's monetary representation: every stored amount
// is an int64 number of minor units (cents). Reconciliation compares two
// independently mutated ledgers, so amounts never round-trip through floats.
// shopspring/decimal is used at computation boundaries (costs, thresholds).
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is an amount in minor units. USD assumed throughout.
type Cents int64

var hundred = decimal.NewFromInt(100)

// FromDecimal converts a dollar-denominated decimal into cents,
// rounding half away from zero.
func FromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Mul(hundred).Round(0).IntPart())
}

// FromFloat converts a dollar float (external API boundary only) into cents.
func FromFloat(v float64) Cents {
	return FromDecimal(decimal.NewFromFloat(v))
}

// Decimal returns the dollar value as a decimal.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(c)).Div(hundred)
}

// Float64 returns the dollar value. Display/metrics use only, never storage.
func (c Cents) Float64() float64 {
	f, _ := c.Decimal().Float64()
	return f
}

// Mul scales the amount by an integer quantity.
func (c Cents) Mul(qty int64) Cents {
	return c * Cents(qty)
}

// MulRatio scales by an arbitrary ratio (e.g. a sizing multiplier),
// rounding down so sizing never exceeds the exact product.
func (c Cents) MulRatio(r decimal.Decimal) Cents {
	return Cents(decimal.NewFromInt(int64(c)).Mul(r).IntPart())
}

// Abs returns the absolute value.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// String renders as a dollar figure, e.g. "1234.56".
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// PctDiff returns |a-b| relative to b as a decimal ratio (0.05 == 5%).
// A zero base with a non-zero counterpart reports a full deviation.
func PctDiff(a, b Cents) decimal.Decimal {
	if b == 0 {
		if a == 0 {
			return decimal.Zero
		}
		return decimal.NewFromInt(1)
	}
	diff := decimal.NewFromInt(int64(a - b)).Abs()
	return diff.Div(decimal.NewFromInt(int64(b)).Abs())
}

// FormatQty renders a share quantity with its symbol for log lines.
func FormatQty(symbol string, qty int64) string {
	return fmt.Sprintf("%s x%d", symbol, qty)
}
