package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// lineSource picks the lines of a converted document from its source.
type lineSource func(src *Document, srcLines []Line) []Line

func copyLines(_ *Document, srcLines []Line) []Line {
	return srcLines
}

// ConvertQuoteToProforma issues a proforma from a quote, reusing its number
// suffix and copying its lines.
func (s *Service) ConvertQuoteToProforma(ctx context.Context, quoteID uuid.UUID) (*Document, error) {
	return s.convert(ctx, quoteID, []DocumentType{TypeQuote}, TypeProforma, copyLines)
}

// ConvertToInvoice issues an invoice from a quote or a proforma.
func (s *Service) ConvertToInvoice(ctx context.Context, sourceID uuid.UUID) (*Document, error) {
	return s.convert(ctx, sourceID, []DocumentType{TypeQuote, TypeProforma}, TypeInvoice, copyLines)
}

// ConvertInvoiceToCreditNote rectifies an invoice. Without explicit lines the
// credit note reverses every invoice line.
func (s *Service) ConvertInvoiceToCreditNote(ctx context.Context, invoiceID uuid.UUID, req CreditNoteRequest) (*Document, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	pick := func(_ *Document, srcLines []Line) []Line {
		if req.Lines != nil {
			return linesFromInputs(*req.Lines)
		}
		return NegateLines(srcLines)
	}
	return s.convert(ctx, invoiceID, []DocumentType{TypeInvoice}, TypeCreditNote, pick)
}

func (s *Service) convert(ctx context.Context, sourceID uuid.UUID, from []DocumentType, to DocumentType, pick lineSource) (*Document, error) {
	var (
		created *Document
		src     *Document
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		src, err = loadSource(ctx, tx, sourceID, from...)
		if err != nil {
			return err
		}
		if s.opts.Strict {
			if err := checkConvertible(*src); err != nil {
				return err
			}
		}
		if prior, err := findConverted(ctx, tx, src, to); err != nil {
			return err
		} else if prior != nil {
			return fmt.Errorf("%w: %s %s", ErrAlreadyConverted, prior.Type, prior.Number)
		}

		number, err := s.conversionNumber(ctx, tx, src, to)
		if err != nil {
			return err
		}
		srcLines, err := tx.FindLines(ctx, src.ID)
		if err != nil {
			return fmt.Errorf("load source lines: %w", err)
		}

		b := NewBuilder(s.convertedHeader(src, to, number))
		b.AddLines(pick(src, srcLines))
		created, err = b.Commit(ctx, tx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("convert %s to %s: %w", sourceID, to, err)
	}

	s.converted(src.Type, to)
	s.logger.InfoContext(ctx, "document converted",
		slog.String("source", src.Number),
		slog.String("target", created.Number),
		slog.String("type", string(to)))
	return created, nil
}

// conversionNumber reuses the source suffix under the target prefix and
// reserves it on the target counter. A source number that does not parse, or
// whose reused number is already taken, falls back to a fresh number for the
// current year.
func (s *Service) conversionNumber(ctx context.Context, tx TxRepository, src *Document, to DocumentType) (string, error) {
	now := s.now()
	number, yy, seq, ok := SwapPrefix(src.Number, []DocumentType{src.Type}, to)
	if !ok {
		s.logger.WarnContext(ctx, "source number not reusable, allocating fresh number",
			slog.String("number", src.Number), slog.String("type", string(src.Type)))
		return s.numbers.Generate(ctx, tx, to, now.Year())
	}

	existing, err := tx.FindByNumber(ctx, to, number)
	switch {
	case err == nil && existing != nil:
		s.logger.WarnContext(ctx, "reused number taken by unrelated document, allocating fresh number",
			slog.String("number", number), slog.String("source", src.Number))
		return s.numbers.Generate(ctx, tx, to, now.Year())
	case err != nil && !errors.Is(err, ErrDocumentNotFound):
		return "", fmt.Errorf("check number %s: %w", number, err)
	}

	if err := tx.ReserveSequence(ctx, to, yearFromYY(yy, now.Year()), seq); err != nil {
		return "", fmt.Errorf("reserve %s: %w", number, err)
	}
	return number, nil
}

// findConverted returns the target already issued from src, following a
// quote through its proforma when the target is an invoice.
func findConverted(ctx context.Context, tx TxRepository, src *Document, to DocumentType) (*Document, error) {
	prior, err := findBySource(ctx, tx, to, src.ID)
	if prior != nil || err != nil || src.Type != TypeQuote || to != TypeInvoice {
		return prior, err
	}
	proforma, err := findBySource(ctx, tx, TypeProforma, src.ID)
	if proforma == nil || err != nil {
		return nil, err
	}
	return findBySource(ctx, tx, TypeInvoice, proforma.ID)
}

func findBySource(ctx context.Context, tx TxRepository, t DocumentType, sourceID uuid.UUID) (*Document, error) {
	d, err := tx.FindBySource(ctx, t, sourceID)
	if errors.Is(err, ErrDocumentNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s issued from %s: %w", t, sourceID, err)
	}
	return d, nil
}

func (s *Service) convertedHeader(src *Document, to DocumentType, number string) Document {
	now := s.now()
	sourceID := src.ID
	header := Document{
		Type:              to,
		Number:            number,
		ClientID:          src.ClientID,
		ClientSnapshot:    src.ClientSnapshot,
		ProjectID:         src.ProjectID,
		DateIssued:        now,
		Status:            InitialStatus(to),
		RelatedDocumentID: &sourceID,
		Notes:             src.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if to == TypeCreditNote {
		rectifies := sourceID
		header.RectifiesDocumentID = &rectifies
		if src.RelatedDocumentID != nil {
			root := *src.RelatedDocumentID
			header.RelatedDocumentID = &root
		}
	} else {
		header.DateDue = s.dueDate(now)
	}
	return header
}
