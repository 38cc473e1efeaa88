package documents

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DocumentType identifies a link of the quote → proforma → invoice → credit note chain.
type DocumentType string

const (
	TypeQuote      DocumentType = "quote"
	TypeProforma   DocumentType = "proforma"
	TypeInvoice    DocumentType = "invoice"
	TypeCreditNote DocumentType = "credit_note"
)

// Types lists every document type in chain order.
var Types = []DocumentType{TypeQuote, TypeProforma, TypeInvoice, TypeCreditNote}

// Valid reports whether t is a known document type.
func (t DocumentType) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Status is scoped by document type, see CanTransition.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusSent     Status = "sent"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusPaid     Status = "paid"
)

// GroupingTag groups lines for presentation only.
type GroupingTag string

const (
	GroupProducts GroupingTag = "Products"
	GroupServices GroupingTag = "Services"
)

// ClientSnapshot freezes the client's fiscal identity at issuance.
type ClientSnapshot struct {
	FiscalName     string `json:"fiscal_name"`
	CommercialName string `json:"commercial_name"`
	VATNumber      string `json:"vat_number"`
	Address        string `json:"address"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
}

// VATBucket aggregates the lines sharing one tax rate.
type VATBucket struct {
	Base  decimal.Decimal `json:"base"`
	VAT   decimal.Decimal `json:"vat"`
	Total decimal.Decimal `json:"total"`
}

// Totals is the derived aggregate of a document's lines.
type Totals struct {
	BaseImponible decimal.Decimal      `json:"base_imponible"`
	TotalVAT      decimal.Decimal      `json:"total_vat"`
	Total         decimal.Decimal      `json:"total"`
	VATBreakdown  map[string]VATBucket `json:"vat_breakdown"`
	TotalDiscount decimal.Decimal      `json:"total_discount"`
}

// Document is a quote, proforma, invoice or credit note header.
type Document struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	Type                DocumentType    `json:"type" db:"type"`
	Number              string          `json:"document_number" db:"document_number"`
	ClientID            uuid.UUID       `json:"client_id" db:"client_id"`
	ClientSnapshot      *ClientSnapshot `json:"client_snapshot,omitempty" db:"client_snapshot"`
	ProjectID           *uuid.UUID      `json:"project_id,omitempty" db:"project_id"`
	DateIssued          time.Time       `json:"date_issued" db:"date_issued"`
	DateDue             *time.Time      `json:"date_due,omitempty" db:"date_due"`
	Status              Status          `json:"status" db:"status"`
	Totals              Totals          `json:"totals_data" db:"totals_data"`
	RelatedDocumentID   *uuid.UUID      `json:"related_document_id,omitempty" db:"related_document_id"`
	RectifiesDocumentID *uuid.UUID      `json:"rectifies_document_id,omitempty" db:"rectifies_document_id"`
	Notes               *string         `json:"notes,omitempty" db:"notes"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
	Lines               []Line          `json:"lines,omitempty" db:"-"`
}

// Line is one priced row of a document. Subtotal and TotalLine are derived.
type Line struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	DocumentID      uuid.UUID       `json:"document_id" db:"document_id"`
	ItemID          *uuid.UUID      `json:"item_id,omitempty" db:"item_id"`
	Concept         string          `json:"concept" db:"concept"`
	Description     string          `json:"description" db:"description"`
	Quantity        decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price" db:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	TaxPercent      decimal.Decimal `json:"tax_percent" db:"tax_percent"`
	Subtotal        decimal.Decimal `json:"subtotal" db:"subtotal"`
	TotalLine       decimal.Decimal `json:"total_line" db:"total_line"`
	GroupingTag     GroupingTag     `json:"grouping_tag" db:"grouping_tag"`
	LineOrder       int             `json:"line_order" db:"line_order"`
}

// InputScale is the number of decimals stored for line quantities, prices
// and percentages.
const InputScale = 4

// Recalculate rounds the line inputs to InputScale and refreshes the derived
// amounts from them.
func (l *Line) Recalculate() {
	l.Quantity = l.Quantity.Round(InputScale)
	l.UnitPrice = l.UnitPrice.Round(InputScale)
	l.DiscountPercent = l.DiscountPercent.Round(InputScale)
	l.TaxPercent = l.TaxPercent.Round(InputScale)
	l.Subtotal, l.TotalLine = CalculateLine(l.Quantity, l.UnitPrice, l.DiscountPercent, l.TaxPercent)
}

// DocumentPatch lists header fields a repository update may change. Nil means
// unchanged.
type DocumentPatch struct {
	Status     *Status
	DateIssued *time.Time
	DateDue    *time.Time
	ProjectID  *uuid.UUID
	Notes      *string
	Totals     *Totals
}

// ListRequest filters document listings.
type ListRequest struct {
	Type     *DocumentType
	Status   *Status
	ClientID *uuid.UUID
	Limit    int
	Offset   int
}
