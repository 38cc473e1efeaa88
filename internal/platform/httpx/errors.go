// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// ErrorMapping binds a sentinel error to an HTTP status.
type ErrorMapping struct {
	Target error
	Status int
	Title  string
}

// RespondError writes the first matching mapping as an RFC7807 problem. It
// reports false when nothing matched so the caller can log and fall back.
func RespondError(w http.ResponseWriter, err error, mappings ...ErrorMapping) bool {
	for _, m := range mappings {
		if errors.Is(err, m.Target) {
			Problem(w, m.Status, m.Title, err.Error())
			return true
		}
	}
	return false
}

// InternalError hides the underlying error from the client.
func InternalError(w http.ResponseWriter) {
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
