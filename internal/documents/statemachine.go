package documents

import "fmt"

var transitions = map[DocumentType]map[Status][]Status{
	TypeQuote: {
		StatusDraft: {StatusSent},
		StatusSent:  {StatusAccepted, StatusRejected},
	},
	TypeProforma: {
		StatusDraft: {StatusSent},
		StatusSent:  {StatusAccepted, StatusRejected},
	},
	TypeInvoice: {
		StatusSent: {StatusPaid},
	},
	TypeCreditNote: {},
}

// InitialStatus is the status a freshly created document of type t starts in.
func InitialStatus(t DocumentType) Status {
	if t == TypeInvoice {
		return StatusSent
	}
	return StatusDraft
}

// CanTransition reports whether type t may move from one status to another.
func CanTransition(t DocumentType, from, to Status) bool {
	for _, next := range transitions[t][from] {
		if next == to {
			return true
		}
	}
	return false
}

// Editable reports whether header and lines may still change.
func Editable(d Document) bool {
	return d.Status == StatusDraft
}

// conversionSource lists the status a source must hold before conversion.
var conversionSource = map[DocumentType]Status{
	TypeQuote:    StatusAccepted,
	TypeProforma: StatusAccepted,
	TypeInvoice:  StatusPaid,
}

func checkConvertible(src Document) error {
	want, ok := conversionSource[src.Type]
	if !ok {
		return fmt.Errorf("%w: %s cannot be converted", ErrInvalidStateTransition, src.Type)
	}
	if src.Status != want {
		return fmt.Errorf("%w: %s %s is %s, must be %s", ErrInvalidStateTransition, src.Type, src.Number, src.Status, want)
	}
	return nil
}
