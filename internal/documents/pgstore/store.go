// Package pgstore persists documents in PostgreSQL.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/billing/internal/documents"
	"github.com/odyssey-erp/billing/internal/platform/db"
)

//go:embed schema.sql
var schema string

// Migrate creates the tables used by the store when missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("pgstore: migrate: %w", err)
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements documents.Repository using pgxpool.
type Store struct {
	pool *pgxpool.Pool
}

var _ documents.Repository = (*Store)(nil)

// New creates a new store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// maxTxAttempts bounds retries of transactions that lost a race on a
// sequence row.
const maxTxAttempts = 3

// WithTx wraps fn in a repeatable-read transaction, re-running it when
// PostgreSQL reports a serialization failure.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, documents.TxRepository) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
			return fn(ctx, &txRepository{q: tx})
		})
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (s *Store) FindByType(ctx context.Context, t documents.DocumentType) ([]documents.Document, error) {
	return findByType(ctx, s.pool, t)
}

func (s *Store) FindByID(ctx context.Context, id uuid.UUID) (*documents.Document, error) {
	return findOne(ctx, s.pool, `WHERE id = $1`, id)
}

func (s *Store) FindByNumber(ctx context.Context, t documents.DocumentType, number string) (*documents.Document, error) {
	return findOne(ctx, s.pool, `WHERE type = $1 AND document_number = $2`, t, number)
}

func (s *Store) FindLines(ctx context.Context, documentID uuid.UUID) ([]documents.Line, error) {
	return findLines(ctx, s.pool, documentID)
}

// List filters and pages headers, newest first.
func (s *Store) List(ctx context.Context, req documents.ListRequest) ([]documents.Document, int, error) {
	var (
		where []string
		args  []any
	)
	argPos := 1
	if req.Type != nil {
		where = append(where, fmt.Sprintf("type = $%d", argPos))
		args = append(args, *req.Type)
		argPos++
	}
	if req.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", argPos))
		args = append(args, *req.Status)
		argPos++
	}
	if req.ClientID != nil {
		where = append(where, fmt.Sprintf("client_id = $%d", argPos))
		args = append(args, *req.ClientID)
		argPos++
	}
	clause := ""
	if len(where) > 0 {
		clause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count documents: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM documents %s
		ORDER BY date_issued DESC, document_number DESC
		LIMIT $%d OFFSET $%d`, documentColumns, clause, argPos, argPos+1)
	args = append(args, req.Limit, req.Offset)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

// ============================================================================
// SCANNING
// ============================================================================

const documentColumns = `id, type, document_number, client_id, client_snapshot, project_id,
	date_issued, date_due, status, totals_data, related_document_id, rectifies_document_id,
	notes, created_at, updated_at`

const lineColumns = `id, document_id, item_id, concept, description, quantity, unit_price,
	discount_percent, tax_percent, subtotal, total_line, grouping_tag, line_order`

func scanDocument(row pgx.Row) (*documents.Document, error) {
	var d documents.Document
	err := row.Scan(
		&d.ID, &d.Type, &d.Number, &d.ClientID, &d.ClientSnapshot, &d.ProjectID,
		&d.DateIssued, &d.DateDue, &d.Status, &d.Totals, &d.RelatedDocumentID, &d.RectifiesDocumentID,
		&d.Notes, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if d.Totals.VATBreakdown == nil {
		d.Totals.VATBreakdown = map[string]documents.VATBucket{}
	}
	return &d, nil
}

func scanDocuments(rows pgx.Rows) ([]documents.Document, error) {
	var out []documents.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func findOne(ctx context.Context, q querier, where string, args ...any) (*documents.Document, error) {
	d, err := scanDocument(q.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents `+where, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, documents.ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

func findByType(ctx context.Context, q querier, t documents.DocumentType) ([]documents.Document, error) {
	rows, err := q.Query(ctx, `SELECT `+documentColumns+` FROM documents WHERE type = $1 ORDER BY document_number`, t)
	if err != nil {
		return nil, fmt.Errorf("find %s documents: %w", t, err)
	}
	defer rows.Close()
	return scanDocuments(rows)
}

func findLines(ctx context.Context, q querier, documentID uuid.UUID) ([]documents.Line, error) {
	rows, err := q.Query(ctx, `SELECT `+lineColumns+` FROM document_lines
		WHERE document_id = $1 ORDER BY line_order, id`, documentID)
	if err != nil {
		return nil, fmt.Errorf("find lines: %w", err)
	}
	defer rows.Close()

	lines := []documents.Line{}
	for rows.Next() {
		var l documents.Line
		if err := rows.Scan(
			&l.ID, &l.DocumentID, &l.ItemID, &l.Concept, &l.Description, &l.Quantity, &l.UnitPrice,
			&l.DiscountPercent, &l.TaxPercent, &l.Subtotal, &l.TotalLine, &l.GroupingTag, &l.LineOrder,
		); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}
