package documents

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderAssignsIdentityAndOrder(t *testing.T) {
	b := NewBuilder(Document{Type: TypeQuote, Number: "E2500001"})
	b.AddLine(LineInput{Concept: "a", Quantity: dec("1"), UnitPrice: dec("10"), TaxPercent: dec("21")})
	b.AddLine(LineInput{Concept: "b", Quantity: dec("1"), UnitPrice: dec("5"), TaxPercent: dec("10"), LineOrder: 7, GroupingTag: GroupServices})
	doc := b.Build()

	require.NotEqual(t, uuid.Nil, doc.ID)
	require.Len(t, doc.Lines, 2)
	assert.Equal(t, 0, doc.Lines[0].LineOrder)
	assert.Equal(t, 7, doc.Lines[1].LineOrder)
	assert.Equal(t, GroupProducts, doc.Lines[0].GroupingTag)
	assert.Equal(t, GroupServices, doc.Lines[1].GroupingTag)
	for _, l := range doc.Lines {
		assert.Equal(t, doc.ID, l.DocumentID)
		assert.NotEqual(t, uuid.Nil, l.ID)
	}
	assertDecimal(t, "17.60", doc.Totals.Total)
}

func TestBuilderCopiesLinesWithFreshIDs(t *testing.T) {
	source := NewBuilder(Document{}).AddLine(LineInput{Concept: "a", Quantity: dec("2"), UnitPrice: dec("3")}).Build()
	copied := NewBuilder(Document{}).AddLines(source.Lines).Build()

	require.Len(t, copied.Lines, 1)
	assert.NotEqual(t, source.Lines[0].ID, copied.Lines[0].ID)
	assert.NotEqual(t, source.ID, copied.Lines[0].DocumentID)
	assertDecimal(t, "6", copied.Lines[0].Subtotal)
}

func TestBuilderKeepsLineOrdersUnique(t *testing.T) {
	b := NewBuilder(Document{})
	b.AddLine(LineInput{Concept: "a", LineOrder: 1})
	b.AddLine(LineInput{Concept: "b"})
	b.AddLine(LineInput{Concept: "c"})
	b.AddLine(LineInput{Concept: "d", LineOrder: 3})
	doc := b.Build()

	orders := make([]int, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		orders = append(orders, l.LineOrder)
	}
	assert.Equal(t, []int{1, 2, 4, 3}, orders)
}
