package clients

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates the client does not exist.
	ErrNotFound = errors.New("client not found")
	// ErrDuplicateVAT indicates another client already carries the VAT number.
	ErrDuplicateVAT = errors.New("client vat number already exists")
)

// Client is the live fiscal record of a customer. Documents never reference it
// directly for printing; they carry a snapshot taken at issuance.
type Client struct {
	ID             uuid.UUID `json:"id" db:"id"`
	FiscalName     string    `json:"fiscal_name" db:"fiscal_name"`
	CommercialName string    `json:"commercial_name" db:"commercial_name"`
	VATNumber      string    `json:"vat_number" db:"vat_number"`
	AddressLine    string    `json:"address_line" db:"address_line"`
	PostalCode     string    `json:"postal_code" db:"postal_code"`
	City           string    `json:"city" db:"city"`
	Province       string    `json:"province" db:"province"`
	Country        string    `json:"country" db:"country"`
	Phone          string    `json:"phone" db:"phone"`
	Email          string    `json:"email" db:"email"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// FormattedAddress joins the postal address as printed on documents.
func (c Client) FormattedAddress() string {
	locality := strings.TrimSpace(strings.Join(nonEmpty(c.PostalCode, c.City), " "))
	return strings.Join(nonEmpty(c.AddressLine, locality, c.Province, c.Country), ", ")
}

func nonEmpty(parts ...string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// CreateClientRequest carries the fields for a new client.
type CreateClientRequest struct {
	FiscalName     string `json:"fiscal_name" validate:"required,max=200"`
	CommercialName string `json:"commercial_name" validate:"omitempty,max=200"`
	VATNumber      string `json:"vat_number" validate:"required,max=32"`
	AddressLine    string `json:"address_line" validate:"omitempty,max=200"`
	PostalCode     string `json:"postal_code" validate:"omitempty,max=20"`
	City           string `json:"city" validate:"omitempty,max=100"`
	Province       string `json:"province" validate:"omitempty,max=100"`
	Country        string `json:"country" validate:"omitempty,len=2"`
	Phone          string `json:"phone" validate:"omitempty,max=50"`
	Email          string `json:"email" validate:"omitempty,email"`
}

// UpdateClientRequest patches a client. Nil fields are left untouched.
type UpdateClientRequest struct {
	FiscalName     *string `json:"fiscal_name,omitempty" validate:"omitempty,max=200"`
	CommercialName *string `json:"commercial_name,omitempty" validate:"omitempty,max=200"`
	VATNumber      *string `json:"vat_number,omitempty" validate:"omitempty,max=32"`
	AddressLine    *string `json:"address_line,omitempty" validate:"omitempty,max=200"`
	PostalCode     *string `json:"postal_code,omitempty" validate:"omitempty,max=20"`
	City           *string `json:"city,omitempty" validate:"omitempty,max=100"`
	Province       *string `json:"province,omitempty" validate:"omitempty,max=100"`
	Country        *string `json:"country,omitempty" validate:"omitempty,len=2"`
	Phone          *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	Email          *string `json:"email,omitempty" validate:"omitempty,email"`
}

// Apply copies the non-nil fields of the patch onto c.
func (req UpdateClientRequest) Apply(c *Client) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.FiscalName, req.FiscalName)
	set(&c.CommercialName, req.CommercialName)
	set(&c.VATNumber, req.VATNumber)
	set(&c.AddressLine, req.AddressLine)
	set(&c.PostalCode, req.PostalCode)
	set(&c.City, req.City)
	set(&c.Province, req.Province)
	set(&c.Country, req.Country)
	set(&c.Phone, req.Phone)
	set(&c.Email, req.Email)
}
