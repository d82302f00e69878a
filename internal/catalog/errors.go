package catalog

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/roach88/epsync/internal/ir"
)

// APIError is a non-2xx response from the catalog.
type APIError struct {
	// Op is the failed operation, e.g. "POST /api/v2/architecture/enums".
	Op string

	// Status is the HTTP status code.
	Status int

	// Message is the server's error message, or the raw body.
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Message)
}

// NotFoundError reports an entity that does not exist, typically one
// deleted by someone else between resolve and apply.
type NotFoundError struct {
	Type ir.EntityType
	ID   string
	Err  error // underlying *APIError, if any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Type, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a NotFoundError or a 404 APIError.
// Uses errors.As to handle wrapped errors.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return true
	}
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusNotFound
	}
	return false
}

// IsConflict reports whether err is a 409 APIError.
func IsConflict(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status == http.StatusConflict
	}
	return false
}

// UnsupportedError is returned for entity types an API version does not
// serve, such as version types on the v1 API.
type UnsupportedError struct {
	Type ir.EntityType
	API  APIVersion
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("entity type %s is not served by the %s API", e.Type, e.API)
}
