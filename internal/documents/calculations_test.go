package documents

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, dec(want).Equal(got), "want %s got %s %v", want, got.String(), msgAndArgs)
}

func line(qty, price, discount, tax string) Line {
	l := Line{
		Concept:         "item",
		Quantity:        dec(qty),
		UnitPrice:       dec(price),
		DiscountPercent: dec(discount),
		TaxPercent:      dec(tax),
	}
	l.Recalculate()
	return l
}

func TestRound2TiesTowardPositiveInfinity(t *testing.T) {
	cases := map[string]string{
		"0.005":  "0.01",
		"-0.005": "0",
		"-0.015": "-0.01",
		"1.234":  "1.23",
		"2.675":  "2.68",
		"10":     "10",
		"-2.346": "-2.35",
	}
	for in, want := range cases {
		assertDecimal(t, want, Round2(dec(in)), "input %s", in)
	}
}

func TestCalculateLine(t *testing.T) {
	subtotal, total := CalculateLine(dec("2"), dec("100"), dec("10"), dec("21"))
	assertDecimal(t, "180", subtotal)
	assertDecimal(t, "217.80", total)

	subtotal, total = CalculateLine(dec("1"), dec("50"), dec("0"), dec("21"))
	assertDecimal(t, "50", subtotal)
	assertDecimal(t, "60.50", total)
}

func TestCalculateLineRoundsSubtotalBeforeTax(t *testing.T) {
	// 3 x 0.333 = 0.999 rounds to 1.00 before tax is applied.
	subtotal, total := CalculateLine(dec("3"), dec("0.333"), dec("0"), dec("21"))
	assertDecimal(t, "1", subtotal)
	assertDecimal(t, "1.21", total)
}

func TestRecalculateRoundsInputsToStoredScale(t *testing.T) {
	l := line("1000", "0.123456", "0", "21.00005")
	l.Recalculate()

	assertDecimal(t, "0.1235", l.UnitPrice)
	assertDecimal(t, "21.0001", l.TaxPercent)
	assertDecimal(t, "123.50", l.Subtotal, "subtotal follows the stored price, not 123.46")
	assertDecimal(t, "149.44", l.TotalLine)
}

func TestRecalculateOverwritesDerivedFields(t *testing.T) {
	l := Line{Quantity: dec("1"), UnitPrice: dec("10"), TaxPercent: dec("21"), Subtotal: dec("999"), TotalLine: dec("999")}
	l.Recalculate()
	assertDecimal(t, "10", l.Subtotal)
	assertDecimal(t, "12.10", l.TotalLine)
}

func TestComputeTotalsSingleRate(t *testing.T) {
	totals := ComputeTotals([]Line{line("2", "100", "10", "21"), line("1", "50", "0", "21")})

	require.Len(t, totals.VATBreakdown, 1)
	bucket := totals.VATBreakdown["21"]
	assertDecimal(t, "230", bucket.Base)
	assertDecimal(t, "48.30", bucket.VAT)
	assertDecimal(t, "278.30", bucket.Total)

	assertDecimal(t, "230", totals.BaseImponible)
	assertDecimal(t, "48.30", totals.TotalVAT)
	assertDecimal(t, "278.30", totals.Total)
	assertDecimal(t, "20", totals.TotalDiscount)
}

func TestComputeTotalsMixedRates(t *testing.T) {
	lines := []Line{
		line("1", "100", "0", "21"),
		line("1", "100", "0", "10"),
		line("1", "10", "0", "10.50"),
	}
	totals := ComputeTotals(lines)

	assert.Equal(t, []string{"10", "10.5", "21"}, totals.Rates())
	assertDecimal(t, "21", totals.VATBreakdown["21"].VAT)
	assertDecimal(t, "10", totals.VATBreakdown["10"].VAT)
	assertDecimal(t, "1.05", totals.VATBreakdown["10.5"].VAT)
	assertDecimal(t, "210", totals.BaseImponible)
	assertDecimal(t, "32.05", totals.TotalVAT)
	assertDecimal(t, "242.05", totals.Total)
	assert.True(t, totals.Drift(lines).LessThanOrEqual(dec("0.03")))
}

func TestComputeTotalsEmpty(t *testing.T) {
	totals := ComputeTotals(nil)
	assert.True(t, totals.BaseImponible.IsZero())
	assert.True(t, totals.TotalVAT.IsZero())
	assert.True(t, totals.Total.IsZero())
	assert.True(t, totals.TotalDiscount.IsZero())
	require.NotNil(t, totals.VATBreakdown)
	assert.Empty(t, totals.VATBreakdown)
}

func TestRateKeyIsCanonical(t *testing.T) {
	assert.Equal(t, "21", RateKey(dec("21.00")))
	assert.Equal(t, "10.5", RateKey(dec("10.50")))
	assert.Equal(t, "0", RateKey(dec("0")))
}

func TestNegateLinesReversesTotals(t *testing.T) {
	original := []Line{line("2", "100", "10", "21"), line("1", "50", "0", "21")}
	negated := NegateLines(original)

	require.Len(t, negated, 2)
	assertDecimal(t, "-2", negated[0].Quantity)
	assertDecimal(t, "-180", negated[0].Subtotal)
	assertDecimal(t, "-217.80", negated[0].TotalLine)
	assertDecimal(t, "2", original[0].Quantity, "source lines must not change")

	totals := ComputeTotals(negated)
	assertDecimal(t, "-278.30", totals.Total)
	assertDecimal(t, "-48.30", totals.TotalVAT)
}

func TestTotalsEqual(t *testing.T) {
	a := ComputeTotals([]Line{line("1", "10", "0", "21")})
	b := ComputeTotals([]Line{line("1", "10.00", "0", "21.0")})
	assert.True(t, a.Equal(b))

	c := ComputeTotals([]Line{line("1", "10", "0", "10")})
	assert.False(t, a.Equal(c))
}
