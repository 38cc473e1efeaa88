package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Instrumentation receives domain events for metrics.
type Instrumentation interface {
	DocumentCreated(docType string)
	DocumentConverted(from, to string)
	NumberAllocated(docType string)
}

// Notifier delivers a document to its client after it is sent.
type Notifier interface {
	NotifyDocumentSent(ctx context.Context, doc *Document) error
}

// Options tunes the service.
type Options struct {
	// Strict enforces source status guards on conversions.
	Strict bool
	// PaymentTermsDays sets DateDue on converted proformas and invoices.
	PaymentTermsDays int
	Metrics          Instrumentation
	Notifier         Notifier
	Logger           *slog.Logger
	Now              func() time.Time
}

const defaultPaymentTermsDays = 30

// Service implements the sales document lifecycle.
type Service struct {
	repo        Repository
	snapshotter *Snapshotter
	numbers     NumberGenerator
	opts        Options
	logger      *slog.Logger
}

// NewService constructs a document service.
func NewService(repo Repository, snapshotter *Snapshotter, opts Options) *Service {
	if opts.PaymentTermsDays <= 0 {
		opts.PaymentTermsDays = defaultPaymentTermsDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		snapshotter: snapshotter,
		numbers:     NumberGenerator{metrics: opts.Metrics},
		opts:        opts,
		logger:      logger.With(slog.String("component", "documents")),
	}
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC()
}

func (s *Service) dueDate(issued time.Time) *time.Time {
	due := issued.AddDate(0, 0, s.opts.PaymentTermsDays)
	return &due
}

// ============================================================================
// CRUD OPERATIONS
// ============================================================================

// CreateDocument snapshots the client, allocates a number and persists the
// document with its lines in one transaction.
func (s *Service) CreateDocument(ctx context.Context, req CreateDocumentRequest) (*Document, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	snap, err := s.snapshotter.Snapshot(ctx, req.ClientID, req.ClientSnapshot)
	if err != nil {
		return nil, fmt.Errorf("snapshot client: %w", err)
	}

	now := s.now()
	issued := now
	if req.DateIssued != nil {
		issued = req.DateIssued.UTC()
	}

	var created *Document
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := s.numbers.Generate(ctx, tx, req.Type, issued.Year())
		if err != nil {
			return err
		}
		b := NewBuilder(Document{
			Type:           req.Type,
			Number:         number,
			ClientID:       req.ClientID,
			ClientSnapshot: snap,
			ProjectID:      req.ProjectID,
			DateIssued:     issued,
			DateDue:        req.DateDue,
			Status:         InitialStatus(req.Type),
			Notes:          req.Notes,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
		for _, in := range req.Lines {
			b.AddLine(in)
		}
		created, err = b.Commit(ctx, tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", req.Type, err)
	}

	s.created(created.Type)
	s.logger.InfoContext(ctx, "document created",
		slog.String("id", created.ID.String()),
		slog.String("number", created.Number),
		slog.String("type", string(created.Type)))
	return created, nil
}

// GetDocument returns the document with its lines.
func (s *Service) GetDocument(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.FindLines(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load lines: %w", err)
	}
	doc.Lines = lines
	return doc, nil
}

// ListDocuments returns one page of headers matching req.
func (s *Service) ListDocuments(ctx context.Context, req ListRequest) ([]Document, int, error) {
	if req.Limit <= 0 || req.Limit > 200 {
		req.Limit = 50
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	if req.Type != nil && !req.Type.Valid() {
		return nil, 0, &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown document type %q", *req.Type)}
	}
	docs, total, err := s.repo.List(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("list documents: %w", err)
	}
	return docs, total, nil
}

// UpdateDocument patches header fields of a draft and, when Lines is set,
// replaces the whole line set and recomputes totals.
func (s *Service) UpdateDocument(ctx context.Context, id uuid.UUID, req UpdateDocumentRequest) (*Document, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var updated *Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !Editable(*current) {
			return fmt.Errorf("%w: %s %s is %s", ErrInvalidStateTransition, current.Type, current.Number, current.Status)
		}

		patch := DocumentPatch{
			DateIssued: req.DateIssued,
			DateDue:    req.DateDue,
			ProjectID:  req.ProjectID,
			Notes:      req.Notes,
		}
		var lines []Line
		if req.Lines != nil {
			if _, err := tx.DeleteAllLines(ctx, id); err != nil {
				return fmt.Errorf("delete lines: %w", err)
			}
			b := NewBuilder(*current)
			for _, in := range *req.Lines {
				b.AddLine(in)
			}
			built := b.Build()
			for _, l := range built.Lines {
				saved, err := tx.InsertLine(ctx, l)
				if err != nil {
					return fmt.Errorf("insert line: %w", err)
				}
				lines = append(lines, *saved)
			}
			patch.Totals = &built.Totals
		} else {
			lines, err = tx.FindLines(ctx, id)
			if err != nil {
				return fmt.Errorf("load lines: %w", err)
			}
		}

		updated, err = tx.UpdateDocument(ctx, id, patch)
		if err != nil {
			return err
		}
		updated.Lines = lines
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update document %s: %w", id, err)
	}
	return updated, nil
}

// DeleteDocument removes a draft and its lines. Its number is not reused.
func (s *Service) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !Editable(*current) {
			return fmt.Errorf("%w: %s %s is %s", ErrInvalidStateTransition, current.Type, current.Number, current.Status)
		}
		deleted, err := tx.DeleteDocument(ctx, id)
		if err != nil {
			return err
		}
		if !deleted {
			return ErrDocumentNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// ============================================================================
// STATUS OPERATIONS
// ============================================================================

// TransitionStatus moves a document to status to when its type allows it.
func (s *Service) TransitionStatus(ctx context.Context, id uuid.UUID, to Status) (*Document, error) {
	var updated *Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(current.Type, current.Status, to) {
			return fmt.Errorf("%w: %s %s cannot move from %s to %s",
				ErrInvalidStateTransition, current.Type, current.Number, current.Status, to)
		}
		updated, err = tx.UpdateDocument(ctx, id, DocumentPatch{Status: &to})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("transition %s: %w", id, err)
	}
	s.logger.InfoContext(ctx, "document status changed",
		slog.String("number", updated.Number),
		slog.String("status", string(to)))
	return updated, nil
}

// Send marks a draft as sent and queues delivery to the client. A delivery
// failure is logged and does not undo the transition.
func (s *Service) Send(ctx context.Context, id uuid.UUID) (*Document, error) {
	doc, err := s.TransitionStatus(ctx, id, StatusSent)
	if err != nil {
		return nil, err
	}
	if s.opts.Notifier != nil {
		if err := s.opts.Notifier.NotifyDocumentSent(ctx, doc); err != nil {
			s.logger.WarnContext(ctx, "queue document delivery failed",
				slog.String("number", doc.Number), slog.Any("error", err))
		}
	}
	return doc, nil
}

// Accept marks a sent quote or proforma as accepted.
func (s *Service) Accept(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.TransitionStatus(ctx, id, StatusAccepted)
}

// Reject marks a sent quote or proforma as rejected.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.TransitionStatus(ctx, id, StatusRejected)
}

// MarkPaid settles an invoice.
func (s *Service) MarkPaid(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.TransitionStatus(ctx, id, StatusPaid)
}

// ============================================================================
// TOTALS
// ============================================================================

// ComputeTotals prices an unsaved line set.
func (s *Service) ComputeTotals(lines []LineInput) ([]Line, Totals, error) {
	if err := validateRequest(TotalsRequest{Lines: lines}); err != nil {
		return nil, Totals{}, err
	}
	priced := linesFromInputs(lines)
	return priced, ComputeTotals(priced), nil
}

// RecalculateTotals recomputes a document's persisted totals from its lines
// regardless of status. It reports whether the stored aggregate changed.
func (s *Service) RecalculateTotals(ctx context.Context, id uuid.UUID) (bool, error) {
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		lines, err := tx.FindLines(ctx, id)
		if err != nil {
			return fmt.Errorf("load lines: %w", err)
		}
		totals := ComputeTotals(lines)
		if totals.Equal(current.Totals) {
			return nil
		}
		changed = true
		_, err = tx.UpdateDocument(ctx, id, DocumentPatch{Totals: &totals})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("recalculate totals %s: %w", id, err)
	}
	return changed, nil
}

func (s *Service) created(t DocumentType) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.DocumentCreated(string(t))
	}
}

func (s *Service) converted(from, to DocumentType) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.DocumentConverted(string(from), string(to))
	}
}

// loadSource fetches a conversion source and checks its type.
func loadSource(ctx context.Context, tx TxRepository, id uuid.UUID, allowed ...DocumentType) (*Document, error) {
	src, err := tx.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDocumentNotFound) {
			return nil, fmt.Errorf("source %s: %w", id, ErrDocumentNotFound)
		}
		return nil, err
	}
	for _, t := range allowed {
		if src.Type == t {
			return src, nil
		}
	}
	return nil, fmt.Errorf("source %s is %s: %w", id, src.Type, ErrInvalidDocumentType)
}
