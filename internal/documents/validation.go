package documents

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateRequest runs struct tag validation and converts the first failure
// into a *ValidationError.
func validateRequest(req any) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &ValidationError{Field: fieldPath(fe.Namespace()), Reason: reasonFor(fe)}
	}
	return &ValidationError{Reason: err.Error()}
}

// fieldPath drops the struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "max":
		return "exceeds " + fe.Param() + " characters"
	case "gte":
		return "must be >= " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}
