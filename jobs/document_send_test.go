package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/billing/internal/documents"
	jobmetrics "github.com/odyssey-erp/billing/internal/jobs"
)

type fakeMailer struct {
	sent []Email
	err  error
}

func (m *fakeMailer) Send(_ context.Context, msg Email) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type fakeReader map[uuid.UUID]*documents.Document

func (f fakeReader) GetDocument(_ context.Context, id uuid.UUID) (*documents.Document, error) {
	doc, ok := f[id]
	if !ok {
		return nil, documents.ErrDocumentNotFound
	}
	return doc, nil
}

func sampleDocument() *documents.Document {
	line := documents.Line{
		Concept:    "Consulting",
		Quantity:   decimal.NewFromInt(2),
		UnitPrice:  decimal.NewFromInt(1000),
		TaxPercent: decimal.NewFromInt(21),
	}
	line.Recalculate()
	lines := []documents.Line{line}
	due := time.Date(2025, 4, 9, 0, 0, 0, 0, time.UTC)
	return &documents.Document{
		ID:         uuid.New(),
		Type:       documents.TypeInvoice,
		Number:     "F-2500001",
		DateIssued: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		DateDue:    &due,
		ClientSnapshot: &documents.ClientSnapshot{
			FiscalName:     "Acme Industrial SL",
			CommercialName: "Acme",
			Email:          "billing@acme.test",
		},
		Lines:  lines,
		Totals: documents.ComputeTotals(lines),
	}
}

func sendTask(t *testing.T, doc *documents.Document) *asynq.Task {
	t.Helper()
	task, err := NewDocumentSendTask(DocumentSendPayload{DocumentID: doc.ID, Number: doc.Number})
	require.NoError(t, err)
	return task
}

func TestRenderDocumentEmail(t *testing.T) {
	msg := RenderDocumentEmail(language.English, sampleDocument())

	assert.Equal(t, "billing@acme.test", msg.To)
	assert.Equal(t, "Invoice F-2500001", msg.Subject)
	assert.True(t, strings.HasPrefix(msg.Body, "Dear Acme,"))
	assert.Contains(t, msg.Body, "issued on 2025-03-10")
	assert.Contains(t, msg.Body, "VAT 21%: base 2,000.00, tax 420.00")
	assert.Contains(t, msg.Body, "Total: 2,420.00")
	assert.Contains(t, msg.Body, "Due date: 2025-04-09")
}

func TestRenderDocumentEmailLocalizesAmounts(t *testing.T) {
	msg := RenderDocumentEmail(language.German, sampleDocument())
	assert.Contains(t, msg.Body, "2.420,00")
}

func TestDocumentSendJobDelivers(t *testing.T) {
	doc := sampleDocument()
	mailer := &fakeMailer{}
	reg := prometheus.NewRegistry()
	job := NewDocumentSendJob(fakeReader{doc.ID: doc}, mailer, language.English, nil, jobmetrics.NewMetrics(reg))

	require.NoError(t, job.Handle(context.Background(), sendTask(t, doc)))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "billing@acme.test", mailer.sent[0].To)
	assert.Equal(t, 1.0, counterValue(t, reg, "billing_document_deliveries_total"))
	assert.Equal(t, 1.0, counterValue(t, reg, "billing_jobs_total"))
}

func TestDocumentSendJobSkipsWithoutRecipient(t *testing.T) {
	doc := sampleDocument()
	doc.ClientSnapshot.Email = ""
	mailer := &fakeMailer{}
	job := NewDocumentSendJob(fakeReader{doc.ID: doc}, mailer, language.English, nil, nil)

	require.NoError(t, job.Handle(context.Background(), sendTask(t, doc)))
	assert.Empty(t, mailer.sent)
}

func TestDocumentSendJobFailures(t *testing.T) {
	doc := sampleDocument()
	job := NewDocumentSendJob(fakeReader{}, &fakeMailer{}, language.English, nil, nil)

	err := job.Handle(context.Background(), sendTask(t, doc))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskDocumentSend, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	boom := errors.New("smtp down")
	job = NewDocumentSendJob(fakeReader{doc.ID: doc}, &fakeMailer{err: boom}, language.English, nil, nil)
	err = job.Handle(context.Background(), sendTask(t, doc))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)

	var unconfigured *DocumentSendJob
	assert.Error(t, unconfigured.Handle(context.Background(), sendTask(t, doc)))
}

func TestDocumentSendPayloadShape(t *testing.T) {
	doc := sampleDocument()
	task := sendTask(t, doc)
	assert.Equal(t, TaskDocumentSend, task.Type())

	var payload map[string]string
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, doc.ID.String(), payload["document_id"])
	assert.Equal(t, "F-2500001", payload["document_number"])
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}
