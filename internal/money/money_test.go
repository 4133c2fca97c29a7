package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFromFloatRounding(t *testing.T) {
	assert.Equal(t, Cents(16208), FromFloat(162.08))
	assert.Equal(t, Cents(100), FromFloat(0.999))
	assert.Equal(t, Cents(-250), FromFloat(-2.499))
}

func TestMulRatioRoundsDown(t *testing.T) {
	// Sizing must never exceed the exact product.
	got := Cents(1001).MulRatio(decimal.NewFromFloat(0.5))
	assert.Equal(t, Cents(500), got)
}

func TestPctDiff(t *testing.T) {
	t.Run("normal", func(t *testing.T) {
		d := PctDiff(Cents(10500), Cents(10000))
		f, _ := d.Float64()
		assert.InDelta(t, 0.05, f, 1e-9)
	})
	t.Run("zero base", func(t *testing.T) {
		assert.True(t, PctDiff(Cents(1), 0).Equal(decimal.NewFromInt(1)))
		assert.True(t, PctDiff(0, 0).IsZero())
	})
	t.Run("negative base", func(t *testing.T) {
		d := PctDiff(Cents(-9500), Cents(-10000))
		f, _ := d.Float64()
		assert.InDelta(t, 0.05, f, 1e-9)
	})
}

func TestStringRendersDollars(t *testing.T) {
	assert.Equal(t, "1234.56", Cents(123456).String())
	assert.Equal(t, "-0.05", Cents(-5).String())
}
