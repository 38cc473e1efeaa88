package memstore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/billing/internal/documents"
)

func seedDocument(t *testing.T, s *Store, number string) documents.Document {
	t.Helper()
	doc := documents.NewBuilder(documents.Document{
		Type:       documents.TypeQuote,
		Number:     number,
		Status:     documents.StatusDraft,
		DateIssued: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}).AddLine(documents.LineInput{
		Concept:    "Widget",
		Quantity:   decimal.NewFromInt(1),
		UnitPrice:  decimal.NewFromInt(100),
		TaxPercent: decimal.NewFromInt(21),
	})
	var saved *documents.Document
	err := s.WithTx(context.Background(), func(ctx context.Context, tx documents.TxRepository) error {
		var err error
		saved, err = doc.Commit(ctx, tx)
		return err
	})
	require.NoError(t, err)
	return *saved
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(ctx context.Context, tx documents.TxRepository) error {
		_, err := tx.InsertDocument(ctx, documents.Document{Type: documents.TypeQuote, Number: "E2500001"})
		require.NoError(t, err)
		_, err = tx.NextSequence(ctx, documents.TypeQuote, 2025)
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.FindByNumber(ctx, documents.TypeQuote, "E2500001")
	assert.ErrorIs(t, err, documents.ErrDocumentNotFound)
	assert.Empty(t, s.st.Sequences)
}

func TestSequenceSeedsFromExistingNumbers(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedDocument(t, s, "E2500041")

	var next int
	err := s.WithTx(ctx, func(ctx context.Context, tx documents.TxRepository) error {
		var err error
		next, err = tx.NextSequence(ctx, documents.TypeQuote, 2025)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 42, next)

	err = s.WithTx(ctx, func(ctx context.Context, tx documents.TxRepository) error {
		if err := tx.ReserveSequence(ctx, documents.TypeQuote, 2025, 10); err != nil {
			return err
		}
		next, err = tx.NextSequence(ctx, documents.TypeQuote, 2025)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 43, next, "reserving a lower value must not rewind the counter")
}

func TestInsertDocumentRejectsDuplicateNumber(t *testing.T) {
	s := New()
	seedDocument(t, s, "E2500001")

	err := s.WithTx(context.Background(), func(ctx context.Context, tx documents.TxRepository) error {
		_, err := tx.InsertDocument(ctx, documents.Document{Type: documents.TypeQuote, Number: "E2500001"})
		return err
	})
	assert.ErrorIs(t, err, documents.ErrAlreadyConverted)
}

func TestInsertLineRequiresParent(t *testing.T) {
	s := New()
	err := s.WithTx(context.Background(), func(ctx context.Context, tx documents.TxRepository) error {
		_, err := tx.InsertLine(ctx, documents.Line{DocumentID: uuid.New(), Concept: "orphan"})
		return err
	})
	assert.ErrorIs(t, err, documents.ErrDocumentNotFound)
}

func TestReadsReturnCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	doc := seedDocument(t, s, "E2500001")

	found, err := s.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	found.Totals.VATBreakdown["99"] = documents.VATBucket{}
	found.Status = documents.StatusPaid

	again, err := s.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, documents.StatusDraft, again.Status)
	assert.NotContains(t, again.Totals.VATBreakdown, "99")
}

func TestDeleteDocumentRemovesLines(t *testing.T) {
	s := New()
	ctx := context.Background()
	doc := seedDocument(t, s, "E2500001")

	err := s.WithTx(ctx, func(ctx context.Context, tx documents.TxRepository) error {
		deleted, err := tx.DeleteDocument(ctx, doc.ID)
		assert.True(t, deleted)
		return err
	})
	require.NoError(t, err)

	lines, err := s.FindLines(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestDumpAndLoad(t *testing.T) {
	s := New()
	doc := seedDocument(t, s, "E2500001")

	var buf bytes.Buffer
	require.NoError(t, s.Dump(&buf))

	restored := New()
	require.NoError(t, restored.Load(&buf))
	found, err := restored.FindByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "E2500001", found.Number)
	assert.True(t, found.Totals.Total.Equal(decimal.RequireFromString("121")))

	lines, err := restored.FindLines(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "Widget", lines[0].Concept)
}

func TestOpenPersistsCommittedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	require.NoError(t, err)
	doc := seedDocument(t, s, "E2500001")

	reopened, err := Open(path)
	require.NoError(t, err)
	found, err := reopened.FindByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.Number, found.Number)
}

func TestSharedFileKeepsWritesFromBothStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()
	api, err := Open(path)
	require.NoError(t, err)
	worker, err := Open(path)
	require.NoError(t, err)

	created := seedDocument(t, api, "E2600001")

	found, err := worker.FindByID(ctx, created.ID)
	require.NoError(t, err, "reads pick up the other store's commits")
	assert.Equal(t, "E2600001", found.Number)

	require.NoError(t, worker.WithTx(ctx, func(context.Context, documents.TxRepository) error { return nil }))
	second := seedDocument(t, worker, "E2600002")

	reopened, err := Open(path)
	require.NoError(t, err)
	for _, id := range []uuid.UUID{created.ID, second.ID} {
		_, err := reopened.FindByID(ctx, id)
		assert.NoError(t, err)
	}
	_, err = api.FindByID(ctx, second.ID)
	assert.NoError(t, err)
	assert.NoFileExists(t, path+".lock")
}

func TestWithTxWaitsForLockFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path+".lock", nil, 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = s.WithTx(ctx, func(context.Context, documents.TxRepository) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, os.Remove(path+".lock"))
	assert.NoError(t, s.WithTx(context.Background(), func(context.Context, documents.TxRepository) error { return nil }))
}

func TestInsertDocumentRequiresRectifiedInvoiceForCreditNote(t *testing.T) {
	s := New()
	err := s.WithTx(context.Background(), func(ctx context.Context, tx documents.TxRepository) error {
		_, err := tx.InsertDocument(ctx, documents.Document{Type: documents.TypeCreditNote, Number: "RT-2500001"})
		return err
	})
	assert.ErrorIs(t, err, documents.ErrValidation)
}

func TestFindBySource(t *testing.T) {
	s := New()
	ctx := context.Background()
	quote := seedDocument(t, s, "E2500001")
	invoiceID := uuid.New()

	err := s.WithTx(ctx, func(ctx context.Context, tx documents.TxRepository) error {
		if _, err := tx.InsertDocument(ctx, documents.Document{ID: invoiceID, Type: documents.TypeInvoice, Number: "F-2500001", RelatedDocumentID: &quote.ID}); err != nil {
			return err
		}
		_, err := tx.InsertDocument(ctx, documents.Document{Type: documents.TypeCreditNote, Number: "RT-2500001", RelatedDocumentID: &quote.ID, RectifiesDocumentID: &invoiceID})
		return err
	})
	require.NoError(t, err)

	err = s.WithTx(ctx, func(ctx context.Context, tx documents.TxRepository) error {
		inv, err := tx.FindBySource(ctx, documents.TypeInvoice, quote.ID)
		require.NoError(t, err)
		assert.Equal(t, "F-2500001", inv.Number)

		credit, err := tx.FindBySource(ctx, documents.TypeCreditNote, invoiceID)
		require.NoError(t, err)
		assert.Equal(t, "RT-2500001", credit.Number)

		_, err = tx.FindBySource(ctx, documents.TypeProforma, quote.ID)
		assert.ErrorIs(t, err, documents.ErrDocumentNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestListFiltersAndPages(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, n := range []string{"E2500001", "E2500002", "E2500003"} {
		seedDocument(t, s, n)
	}

	docs, total, err := s.List(ctx, documents.ListRequest{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, docs, 2)
	assert.Equal(t, "E2500002", docs[0].Number)
	assert.Equal(t, "E2500001", docs[1].Number)

	paid := documents.StatusPaid
	docs, total, err = s.List(ctx, documents.ListRequest{Status: &paid})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, docs)
}
