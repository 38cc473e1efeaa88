package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/billing/internal/documents"
)

// txRepository implements documents.TxRepository.
type txRepository struct {
	q querier
}

func (t *txRepository) FindByType(ctx context.Context, dt documents.DocumentType) ([]documents.Document, error) {
	return findByType(ctx, t.q, dt)
}

func (t *txRepository) FindByID(ctx context.Context, id uuid.UUID) (*documents.Document, error) {
	return findOne(ctx, t.q, `WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepository) FindByNumber(ctx context.Context, dt documents.DocumentType, number string) (*documents.Document, error) {
	return findOne(ctx, t.q, `WHERE type = $1 AND document_number = $2`, dt, number)
}

func (t *txRepository) FindBySource(ctx context.Context, dt documents.DocumentType, sourceID uuid.UUID) (*documents.Document, error) {
	return findOne(ctx, t.q,
		`WHERE type = $1 AND (related_document_id = $2 OR rectifies_document_id = $2) ORDER BY created_at LIMIT 1`,
		dt, sourceID)
}

func (t *txRepository) FindLines(ctx context.Context, documentID uuid.UUID) ([]documents.Line, error) {
	return findLines(ctx, t.q, documentID)
}

// ============================================================================
// SEQUENCES
// ============================================================================

// ensureSequence creates the (type, year) counter, seeded with the highest
// suffix already issued, when it does not exist yet.
func (t *txRepository) ensureSequence(ctx context.Context, dt documents.DocumentType, year int) error {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM document_sequences WHERE type = $1 AND year = $2)`,
		dt, year).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check sequence: %w", err)
	}
	if exists {
		return nil
	}
	docs, err := findByType(ctx, t.q, dt)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO document_sequences (type, year, last_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (type, year) DO NOTHING
	`, dt, year, documents.MaxSequence(docs, dt, year))
	if err != nil {
		return fmt.Errorf("seed sequence: %w", err)
	}
	return nil
}

func (t *txRepository) NextSequence(ctx context.Context, dt documents.DocumentType, year int) (int, error) {
	if err := t.ensureSequence(ctx, dt, year); err != nil {
		return 0, err
	}
	var seq int
	err := t.q.QueryRow(ctx, `
		UPDATE document_sequences SET last_value = last_value + 1
		WHERE type = $1 AND year = $2
		RETURNING last_value
	`, dt, year).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("advance sequence: %w", err)
	}
	return seq, nil
}

func (t *txRepository) ReserveSequence(ctx context.Context, dt documents.DocumentType, year, seq int) error {
	if err := t.ensureSequence(ctx, dt, year); err != nil {
		return err
	}
	_, err := t.q.Exec(ctx, `
		UPDATE document_sequences SET last_value = GREATEST(last_value, $3)
		WHERE type = $1 AND year = $2
	`, dt, year, seq)
	if err != nil {
		return fmt.Errorf("reserve sequence: %w", err)
	}
	return nil
}

// ============================================================================
// WRITES
// ============================================================================

func (t *txRepository) InsertDocument(ctx context.Context, doc documents.Document) (*documents.Document, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Totals.VATBreakdown == nil {
		doc.Totals.VATBreakdown = map[string]documents.VATBucket{}
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	query := `
		INSERT INTO documents (
			id, type, document_number, client_id, client_snapshot, project_id,
			date_issued, date_due, status, totals_data, related_document_id, rectifies_document_id,
			notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING ` + documentColumns
	saved, err := scanDocument(t.q.QueryRow(ctx, query,
		doc.ID, doc.Type, doc.Number, doc.ClientID, doc.ClientSnapshot, doc.ProjectID,
		doc.DateIssued, doc.DateDue, doc.Status, doc.Totals, doc.RelatedDocumentID, doc.RectifiesDocumentID,
		doc.Notes, doc.CreatedAt, doc.UpdatedAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s %s", documents.ErrAlreadyConverted, doc.Type, doc.Number)
		}
		if isCheckViolation(err) {
			return nil, &documents.ValidationError{Field: constraintName(err), Reason: "violates document constraint"}
		}
		return nil, err
	}
	return saved, nil
}

func (t *txRepository) UpdateDocument(ctx context.Context, id uuid.UUID, patch documents.DocumentPatch) (*documents.Document, error) {
	var (
		setClauses []string
		args       []any
	)
	argPos := 1
	set := func(column string, value any) {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.DateIssued != nil {
		set("date_issued", *patch.DateIssued)
	}
	if patch.DateDue != nil {
		set("date_due", *patch.DateDue)
	}
	if patch.ProjectID != nil {
		set("project_id", *patch.ProjectID)
	}
	if patch.Notes != nil {
		set("notes", *patch.Notes)
	}
	if patch.Totals != nil {
		set("totals_data", *patch.Totals)
	}
	set("updated_at", time.Now().UTC())
	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE documents
		SET %s
		WHERE id = $%d
		RETURNING %s
	`, strings.Join(setClauses, ", "), argPos, documentColumns)
	d, err := scanDocument(t.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, documents.ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

func (t *txRepository) DeleteDocument(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := t.q.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (t *txRepository) InsertLine(ctx context.Context, line documents.Line) (*documents.Line, error) {
	if line.ID == uuid.Nil {
		line.ID = uuid.New()
	}
	query := `
		INSERT INTO document_lines (
			id, document_id, item_id, concept, description, quantity, unit_price,
			discount_percent, tax_percent, subtotal, total_line, grouping_tag, line_order
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := t.q.Exec(ctx, query,
		line.ID, line.DocumentID, line.ItemID, line.Concept, line.Description, line.Quantity, line.UnitPrice,
		line.DiscountPercent, line.TaxPercent, line.Subtotal, line.TotalLine, line.GroupingTag, line.LineOrder,
	)
	if err != nil {
		return nil, err
	}
	return &line, nil
}

func (t *txRepository) DeleteAllLines(ctx context.Context, documentID uuid.UUID) (bool, error) {
	tag, err := t.q.Exec(ctx, `DELETE FROM document_lines WHERE document_id = $1`, documentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
