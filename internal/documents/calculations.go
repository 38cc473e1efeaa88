package documents

import (
	"sort"

	"github.com/shopspring/decimal"
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.NewFromFloat(0.5)
)

// Round2 rounds to cents with ties toward positive infinity, so 0.005 becomes
// 0.01 and -0.005 becomes 0.00. Every monetary rounding goes through here.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Shift(2).Add(half).Floor().Shift(-2)
}

// CalculateLine returns the rounded subtotal and tax-inclusive total of a line.
func CalculateLine(quantity, unitPrice, discountPercent, taxPercent decimal.Decimal) (subtotal, total decimal.Decimal) {
	net := hundred.Sub(discountPercent).Shift(-2)
	subtotal = Round2(quantity.Mul(unitPrice).Mul(net))
	total = Round2(subtotal.Mul(hundred.Add(taxPercent).Shift(-2)))
	return subtotal, total
}

// LineDiscount is the unrounded discount amount of a line.
func LineDiscount(quantity, unitPrice, discountPercent decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Mul(discountPercent).Shift(-2)
}

// RateKey is the canonical breakdown key of a tax rate: 21 → "21", 10.50 → "10.5".
func RateKey(taxPercent decimal.Decimal) string {
	return taxPercent.String()
}

// ComputeTotals groups the lines by tax rate and rolls them up. Each group sum
// is rounded on its own and the document figures are the rounded sum of the
// rounded groups, so a cent of drift against a flat sum is expected.
func ComputeTotals(lines []Line) Totals {
	type acc struct{ base, vat, total decimal.Decimal }
	groups := make(map[string]*acc)
	discount := decimal.Zero
	for _, l := range lines {
		key := RateKey(l.TaxPercent)
		g, ok := groups[key]
		if !ok {
			g = &acc{}
			groups[key] = g
		}
		g.base = g.base.Add(l.Subtotal)
		g.vat = g.vat.Add(l.TotalLine.Sub(l.Subtotal))
		g.total = g.total.Add(l.TotalLine)
		discount = discount.Add(LineDiscount(l.Quantity, l.UnitPrice, l.DiscountPercent))
	}

	totals := Totals{VATBreakdown: make(map[string]VATBucket, len(groups))}
	base, vat, total := decimal.Zero, decimal.Zero, decimal.Zero
	for key, g := range groups {
		bucket := VATBucket{Base: Round2(g.base), VAT: Round2(g.vat), Total: Round2(g.total)}
		totals.VATBreakdown[key] = bucket
		base = base.Add(bucket.Base)
		vat = vat.Add(bucket.VAT)
		total = total.Add(bucket.Total)
	}
	totals.BaseImponible = Round2(base)
	totals.TotalVAT = Round2(vat)
	totals.Total = Round2(total)
	totals.TotalDiscount = Round2(discount)
	return totals
}

// Rates returns the breakdown keys sorted by numeric rate.
func (t Totals) Rates() []string {
	keys := make([]string, 0, len(t.VATBreakdown))
	for k := range t.VATBreakdown {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := decimal.NewFromString(keys[i])
		b, _ := decimal.NewFromString(keys[j])
		return a.LessThan(b)
	})
	return keys
}

// Drift is the absolute difference between Total and the flat sum of line totals.
func (t Totals) Drift(lines []Line) decimal.Decimal {
	flat := decimal.Zero
	for _, l := range lines {
		flat = flat.Add(l.TotalLine)
	}
	return Round2(flat).Sub(t.Total).Abs()
}

// Equal compares two aggregates amount by amount.
func (t Totals) Equal(o Totals) bool {
	if !t.BaseImponible.Equal(o.BaseImponible) || !t.TotalVAT.Equal(o.TotalVAT) ||
		!t.Total.Equal(o.Total) || !t.TotalDiscount.Equal(o.TotalDiscount) ||
		len(t.VATBreakdown) != len(o.VATBreakdown) {
		return false
	}
	for k, a := range t.VATBreakdown {
		b, ok := o.VATBreakdown[k]
		if !ok || !a.Base.Equal(b.Base) || !a.VAT.Equal(b.VAT) || !a.Total.Equal(b.Total) {
			return false
		}
	}
	return true
}

// NegateLines returns copies of lines with quantities sign-inverted, the
// conventional shape of a full credit note.
func NegateLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	for i, l := range lines {
		l.Quantity = l.Quantity.Neg()
		l.Recalculate()
		out[i] = l
	}
	return out
}
