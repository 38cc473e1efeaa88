package documents

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

var prefixes = map[DocumentType]string{
	TypeQuote:      "E",
	TypeProforma:   "FP",
	TypeInvoice:    "F-",
	TypeCreditNote: "RT-",
}

const sequenceDigits = 5

// Prefix returns the number prefix of a document type.
func Prefix(t DocumentType) string {
	return prefixes[t]
}

// FormatNumber renders {prefix}{YY}{NNNNN}.
func FormatNumber(t DocumentType, year, seq int) string {
	return fmt.Sprintf("%s%02d%0*d", prefixes[t], year%100, sequenceDigits, seq)
}

// ParseNumber splits a number of type t into its two-digit year and sequence.
// Suffixes shorter than five sequence digits are accepted so numbers issued
// before zero-padding still parse.
func ParseNumber(t DocumentType, number string) (yy, seq int, ok bool) {
	prefix, known := prefixes[t]
	if !known || !strings.HasPrefix(number, prefix) {
		return 0, 0, false
	}
	rest := number[len(prefix):]
	if len(rest) < 3 {
		return 0, 0, false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0, 0, false
		}
	}
	yy, _ = strconv.Atoi(rest[:2])
	seq, err := strconv.Atoi(rest[2:])
	if err != nil {
		return 0, 0, false
	}
	return yy, seq, true
}

// SwapPrefix re-prefixes a number issued under one of the from types for type
// to. The numeric suffix is kept verbatim.
func SwapPrefix(number string, from []DocumentType, to DocumentType) (swapped string, yy, seq int, ok bool) {
	for _, t := range from {
		if yy, seq, ok = ParseNumber(t, number); ok {
			return prefixes[to] + number[len(prefixes[t]):], yy, seq, true
		}
	}
	return "", 0, 0, false
}

// MaxSequence scans docs for the highest sequence of type t in two-digit year yy.
func MaxSequence(docs []Document, t DocumentType, yy int) int {
	highest := 0
	for _, d := range docs {
		if d.Type != t {
			continue
		}
		docYY, seq, ok := ParseNumber(t, d.Number)
		if !ok || docYY != yy%100 {
			continue
		}
		if seq > highest {
			highest = seq
		}
	}
	return highest
}

// Sequencer allocates sequence numbers atomically per (type, year).
type Sequencer interface {
	NextSequence(ctx context.Context, t DocumentType, year int) (int, error)
	ReserveSequence(ctx context.Context, t DocumentType, year, seq int) error
}

// NumberGenerator produces fresh document numbers.
type NumberGenerator struct {
	metrics Instrumentation
}

// Generate allocates the next number for (t, year) through seq.
func (g NumberGenerator) Generate(ctx context.Context, seq Sequencer, t DocumentType, year int) (string, error) {
	if !t.Valid() {
		return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown document type %q", t)}
	}
	n, err := seq.NextSequence(ctx, t, year)
	if err != nil {
		return "", fmt.Errorf("next sequence %s/%d: %w", t, year, err)
	}
	if g.metrics != nil {
		g.metrics.NumberAllocated(string(t))
	}
	return FormatNumber(t, year, n), nil
}

// yearFromYY expands a two-digit year into the century of ref.
func yearFromYY(yy, ref int) int {
	return ref - ref%100 + yy
}
