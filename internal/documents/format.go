package documents

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// FormatAmount renders a monetary amount with two decimals using the
// grouping and decimal separators of tag. The integer and cent parts are
// formatted separately so large amounts stay exact.
func FormatAmount(tag language.Tag, amount decimal.Decimal) string {
	p := message.NewPrinter(tag)
	r := Round2(amount)
	abs := r.Abs()
	whole := abs.Truncate(0)
	cents := abs.Sub(whole).Shift(2).IntPart()

	var b strings.Builder
	if r.IsNegative() {
		b.WriteByte('-')
	}
	b.WriteString(p.Sprint(number.Decimal(whole.IntPart())))
	b.WriteString(decimalSeparator(p))
	b.WriteString(p.Sprint(number.Decimal(cents, number.MinIntegerDigits(2))))
	return b.String()
}

func decimalSeparator(p *message.Printer) string {
	return strings.TrimFunc(p.Sprint(number.Decimal(1.5, number.Scale(1))), unicode.IsDigit)
}

// Summary is a printable one-line description of a document.
func Summary(tag language.Tag, d *Document) string {
	p := message.NewPrinter(tag)
	return p.Sprintf("%s %s: %s (VAT %s)", d.Type, d.Number,
		FormatAmount(tag, d.Totals.Total), FormatAmount(tag, d.Totals.TotalVAT))
}
