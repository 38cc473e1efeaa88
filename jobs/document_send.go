package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/billing/internal/documents"
	jobmetrics "github.com/odyssey-erp/billing/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Email is a rendered outgoing message.
type Email struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers rendered e-mails.
type Mailer interface {
	Send(ctx context.Context, msg Email) error
}

// LogMailer writes e-mails to the log instead of delivering them.
type LogMailer struct {
	Logger *slog.Logger
}

// Send logs msg.
func (m LogMailer) Send(ctx context.Context, msg Email) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "document e-mail", slog.String("to", msg.To), slog.String("subject", msg.Subject))
	return nil
}

// DocumentReader loads a document with its lines.
type DocumentReader interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*documents.Document, error)
}

// DocumentSendJob renders and delivers a sent document.
type DocumentSendJob struct {
	Documents DocumentReader
	Mailer    Mailer
	Language  language.Tag
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewDocumentSendJob wires dependencies for the send handler.
func NewDocumentSendJob(docs DocumentReader, mailer Mailer, lang language.Tag, logger *slog.Logger, metrics *jobmetrics.Metrics) *DocumentSendJob {
	return &DocumentSendJob{Documents: docs, Mailer: mailer, Language: lang, Logger: logger, Metrics: metrics}
}

// Handle processes TaskDocumentSend tasks.
func (j *DocumentSendJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Documents == nil || j.Mailer == nil {
		return errors.New("document send: handler not configured")
	}
	var payload DocumentSendPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskDocumentSend)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.String("document_id", payload.DocumentID.String()))
	doc, err := j.Documents.GetDocument(ctx, payload.DocumentID)
	if err != nil {
		if errors.Is(err, documents.ErrDocumentNotFound) {
			logger.Warn("document vanished before delivery")
			return fmt.Errorf("document %s: %v: %w", payload.DocumentID, err, asynq.SkipRetry)
		}
		return err
	}
	if doc.ClientSnapshot == nil || doc.ClientSnapshot.Email == "" {
		logger.Info("no recipient on snapshot, skipping delivery", slog.String("number", doc.Number))
		return nil
	}

	if err := j.Mailer.Send(ctx, RenderDocumentEmail(j.Language, doc)); err != nil {
		logger.Error("deliver document", slog.Any("error", err))
		return err
	}
	j.metrics().DocumentDelivered(string(doc.Type))
	logger.Info("document delivered", slog.String("summary", documents.Summary(j.Language, doc)))
	return nil
}

// RenderDocumentEmail builds the client e-mail for doc with amounts formatted
// for lang.
func RenderDocumentEmail(lang language.Tag, doc *documents.Document) Email {
	p := message.NewPrinter(lang)
	var body strings.Builder
	name := doc.ClientSnapshot.FiscalName
	if doc.ClientSnapshot.CommercialName != "" {
		name = doc.ClientSnapshot.CommercialName
	}
	body.WriteString(p.Sprintf("Dear %s,\n\n", name))
	body.WriteString(p.Sprintf("Please find the details of %s %s issued on %s.\n\n",
		documentLabel(doc.Type), doc.Number, doc.DateIssued.Format("2006-01-02")))
	for _, l := range doc.Lines {
		body.WriteString(p.Sprintf("  %s x %s  %s\n", l.Concept,
			l.Quantity.String(), documents.FormatAmount(lang, l.TotalLine)))
	}
	body.WriteString("\n")
	for _, rate := range doc.Totals.Rates() {
		bucket := doc.Totals.VATBreakdown[rate]
		body.WriteString(p.Sprintf("VAT %s%%: base %s, tax %s\n", rate,
			documents.FormatAmount(lang, bucket.Base), documents.FormatAmount(lang, bucket.VAT)))
	}
	body.WriteString(p.Sprintf("Total: %s\n", documents.FormatAmount(lang, doc.Totals.Total)))
	if doc.DateDue != nil {
		body.WriteString(p.Sprintf("Due date: %s\n", doc.DateDue.Format("2006-01-02")))
	}

	return Email{
		To:      doc.ClientSnapshot.Email,
		Subject: p.Sprintf("%s %s", documentLabel(doc.Type), doc.Number),
		Body:    body.String(),
	}
}

func documentLabel(t documents.DocumentType) string {
	switch t {
	case documents.TypeQuote:
		return "Quote"
	case documents.TypeProforma:
		return "Proforma invoice"
	case documents.TypeInvoice:
		return "Invoice"
	case documents.TypeCreditNote:
		return "Credit note"
	default:
		return string(t)
	}
}

func (j *DocumentSendJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDocumentSend))
	}
	return slog.Default().With(slog.String("job", TaskDocumentSend))
}

func (j *DocumentSendJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
