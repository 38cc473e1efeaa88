package documents

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineInput carries the caller-owned fields of a line. Derived amounts are
// always recomputed.
type LineInput struct {
	ItemID          *uuid.UUID      `json:"item_id,omitempty"`
	Concept         string          `json:"concept" validate:"required,max=500"`
	Description     string          `json:"description" validate:"max=4000"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent"`
	GroupingTag     GroupingTag     `json:"grouping_tag" validate:"omitempty,oneof=Products Services"`
	LineOrder       int             `json:"line_order" validate:"gte=0"`
}

// CreateDocumentRequest creates a root document. Credit notes are only issued
// by rectifying an invoice.
type CreateDocumentRequest struct {
	Type           DocumentType    `json:"type" validate:"required,oneof=quote proforma invoice"`
	ClientID       uuid.UUID       `json:"client_id" validate:"required"`
	ClientSnapshot *ClientSnapshot `json:"client_snapshot,omitempty"`
	ProjectID      *uuid.UUID      `json:"project_id,omitempty"`
	DateIssued     *time.Time      `json:"date_issued,omitempty"`
	DateDue        *time.Time      `json:"date_due,omitempty"`
	Notes          *string         `json:"notes,omitempty" validate:"omitempty,max=4000"`
	Lines          []LineInput     `json:"lines" validate:"dive"`
}

// UpdateDocumentRequest patches a draft document. A non-nil Lines replaces the
// whole line set.
type UpdateDocumentRequest struct {
	ProjectID  *uuid.UUID   `json:"project_id,omitempty"`
	DateIssued *time.Time   `json:"date_issued,omitempty"`
	DateDue    *time.Time   `json:"date_due,omitempty"`
	Notes      *string      `json:"notes,omitempty" validate:"omitempty,max=4000"`
	Lines      *[]LineInput `json:"lines,omitempty" validate:"omitempty,dive"`
}

// StatusRequest asks for a status transition.
type StatusRequest struct {
	Status Status `json:"status" validate:"required,oneof=draft sent accepted rejected paid"`
}

// CreditNoteRequest optionally supplies the rectifying lines. Nil lines mean a
// full reversal of the invoice.
type CreditNoteRequest struct {
	Lines *[]LineInput `json:"lines,omitempty" validate:"omitempty,dive"`
}

// TotalsRequest computes totals for an unsaved line set.
type TotalsRequest struct {
	Lines []LineInput `json:"lines" validate:"dive"`
}

// TotalsResponse returns priced lines with their aggregate.
type TotalsResponse struct {
	Lines  []Line `json:"lines"`
	Totals Totals `json:"totals_data"`
}

// ListResponse wraps a page of documents.
type ListResponse struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}
