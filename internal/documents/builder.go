package documents

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Builder accumulates a document header and its lines and persists them as one
// unit of work.
type Builder struct {
	doc   Document
	lines []Line
}

// NewBuilder starts a document from header. A zero ID is replaced with a new one.
func NewBuilder(header Document) *Builder {
	if header.ID == uuid.Nil {
		header.ID = uuid.New()
	}
	header.Lines = nil
	return &Builder{doc: header}
}

// AddLine appends a line from caller input.
func (b *Builder) AddLine(in LineInput) *Builder {
	b.lines = append(b.lines, lineFromInput(in))
	return b
}

// AddLines appends copies of existing lines, keeping their inputs and order.
func (b *Builder) AddLines(lines []Line) *Builder {
	for _, l := range lines {
		l.ID = uuid.Nil
		b.lines = append(b.lines, l)
	}
	return b
}

// Build finalizes line ids, order and amounts and returns the document with
// its totals. It does not persist anything. Explicit line orders are kept;
// a line without one takes its position, or the next order no other line
// uses.
func (b *Builder) Build() Document {
	doc := b.doc
	doc.Lines = make([]Line, len(b.lines))
	taken := make(map[int]bool, len(b.lines))
	for _, l := range b.lines {
		if l.LineOrder != 0 {
			taken[l.LineOrder] = true
		}
	}
	for i, l := range b.lines {
		l.ID = uuid.New()
		l.DocumentID = doc.ID
		if l.LineOrder == 0 {
			order := i
			for taken[order] {
				order++
			}
			taken[order] = true
			l.LineOrder = order
		}
		if l.GroupingTag == "" {
			l.GroupingTag = GroupProducts
		}
		l.Recalculate()
		doc.Lines[i] = l
	}
	doc.Totals = ComputeTotals(doc.Lines)
	return doc
}

// Commit inserts the header and then every line through tx.
func (b *Builder) Commit(ctx context.Context, tx TxRepository) (*Document, error) {
	doc := b.Build()
	if err := CheckLinks(doc); err != nil {
		return nil, err
	}
	saved, err := tx.InsertDocument(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("insert document %s: %w", doc.Number, err)
	}
	saved.Lines = make([]Line, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		line, err := tx.InsertLine(ctx, l)
		if err != nil {
			return nil, fmt.Errorf("insert line %d of %s: %w", l.LineOrder, doc.Number, err)
		}
		saved.Lines = append(saved.Lines, *line)
	}
	return saved, nil
}
