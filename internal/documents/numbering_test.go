package documents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "E2500007", FormatNumber(TypeQuote, 2025, 7))
	assert.Equal(t, "FP2500007", FormatNumber(TypeProforma, 2025, 7))
	assert.Equal(t, "F-2612345", FormatNumber(TypeInvoice, 2026, 12345))
	assert.Equal(t, "RT-0900001", FormatNumber(TypeCreditNote, 2009, 1))
}

func TestParseNumber(t *testing.T) {
	yy, seq, ok := ParseNumber(TypeQuote, "E2500007")
	require.True(t, ok)
	assert.Equal(t, 25, yy)
	assert.Equal(t, 7, seq)

	yy, seq, ok = ParseNumber(TypeQuote, "E250007")
	require.True(t, ok)
	assert.Equal(t, 25, yy)
	assert.Equal(t, 7, seq)

	for _, bad := range []string{"FP2500007", "E25", "E25AB007", "", "E-2500007"} {
		_, _, ok := ParseNumber(TypeQuote, bad)
		assert.False(t, ok, bad)
	}
}

func TestSwapPrefixKeepsSuffix(t *testing.T) {
	fp, _, _, ok := SwapPrefix("E250007", []DocumentType{TypeQuote}, TypeProforma)
	require.True(t, ok)
	assert.Equal(t, "FP250007", fp)

	f, yy, seq, ok := SwapPrefix(fp, []DocumentType{TypeQuote, TypeProforma}, TypeInvoice)
	require.True(t, ok)
	assert.Equal(t, "F-250007", f)
	assert.Equal(t, 25, yy)
	assert.Equal(t, 7, seq)

	rt, _, _, ok := SwapPrefix("F-250001", []DocumentType{TypeInvoice}, TypeCreditNote)
	require.True(t, ok)
	assert.Equal(t, "RT-250001", rt)

	_, _, _, ok = SwapPrefix("LEGACY-1", []DocumentType{TypeQuote, TypeProforma}, TypeInvoice)
	assert.False(t, ok)
}

func TestMaxSequence(t *testing.T) {
	docs := []Document{
		{Type: TypeQuote, Number: "E2500003"},
		{Type: TypeQuote, Number: "E2500011"},
		{Type: TypeQuote, Number: "E2400099"},
		{Type: TypeProforma, Number: "FP2500050"},
		{Type: TypeQuote, Number: "garbage"},
	}
	assert.Equal(t, 11, MaxSequence(docs, TypeQuote, 2025))
	assert.Equal(t, 99, MaxSequence(docs, TypeQuote, 2024))
	assert.Equal(t, 0, MaxSequence(docs, TypeQuote, 2026))
	assert.Equal(t, 50, MaxSequence(docs, TypeProforma, 25))
}

type fakeSequencer struct {
	next int
	err  error
}

func (f *fakeSequencer) NextSequence(context.Context, DocumentType, int) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.next++
	return f.next, nil
}

func (f *fakeSequencer) ReserveSequence(context.Context, DocumentType, int, int) error {
	return nil
}

type countingInstrumentation struct {
	created, converted, allocated int
}

func (c *countingInstrumentation) DocumentCreated(string)           { c.created++ }
func (c *countingInstrumentation) DocumentConverted(string, string) { c.converted++ }
func (c *countingInstrumentation) NumberAllocated(string)           { c.allocated++ }

func TestNumberGenerator(t *testing.T) {
	metrics := &countingInstrumentation{}
	gen := NumberGenerator{metrics: metrics}
	seq := &fakeSequencer{next: 6}

	number, err := gen.Generate(context.Background(), seq, TypeQuote, 2025)
	require.NoError(t, err)
	assert.Equal(t, "E2500007", number)
	assert.Equal(t, 1, metrics.allocated)

	_, err = gen.Generate(context.Background(), seq, DocumentType("order"), 2025)
	assert.ErrorIs(t, err, ErrValidation)

	boom := errors.New("boom")
	_, err = gen.Generate(context.Background(), &fakeSequencer{err: boom}, TypeQuote, 2025)
	assert.ErrorIs(t, err, boom)
}

func TestYearFromYY(t *testing.T) {
	assert.Equal(t, 2025, yearFromYY(25, 2026))
	assert.Equal(t, 2099, yearFromYY(99, 2026))
}
