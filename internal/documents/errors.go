package documents

import (
	"errors"
	"fmt"
)

var (
	// ErrDocumentNotFound indicates the id did not resolve to a document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrInvalidDocumentType is returned when a document exists but has the
	// wrong type for the operation. It also matches ErrDocumentNotFound.
	ErrInvalidDocumentType = fmt.Errorf("%w: invalid document type", ErrDocumentNotFound)
	// ErrInvalidStateTransition rejects edits or conversions the status forbids.
	ErrInvalidStateTransition = errors.New("invalid state transition")
	// ErrValidation marks missing or malformed header/line fields.
	ErrValidation = errors.New("validation failed")
	// ErrAlreadyConverted is returned when the target document number exists.
	ErrAlreadyConverted = errors.New("document already converted")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// CheckLinks enforces the header links every stored document must carry.
func CheckLinks(d Document) error {
	if d.Type == TypeCreditNote && d.RectifiesDocumentID == nil {
		return &ValidationError{Field: "RectifiesDocumentID", Reason: "is required for credit notes"}
	}
	return nil
}
