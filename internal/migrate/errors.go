package migrate

import (
	"errors"
	"fmt"

	"github.com/roach88/epsync/internal/ir"
)

// UnresolvedReferenceError reports a source entity whose parent or
// referenced entity has no entry in the ID Map, usually because that
// entity failed or was skipped earlier in the run.
type UnresolvedReferenceError struct {
	EntityType ir.EntityType
	SourceID   string
	Ref        string
}

func (e *UnresolvedReferenceError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("%s %s: no parent reference", e.EntityType, e.SourceID)
	}
	return fmt.Sprintf("%s %s: unresolved reference %s", e.EntityType, e.SourceID, e.Ref)
}

// IsUnresolvedReference reports whether err is an UnresolvedReferenceError.
// Uses errors.As to handle wrapped errors.
func IsUnresolvedReference(err error) bool {
	var ue *UnresolvedReferenceError
	return errors.As(err, &ue)
}

// InvalidPrefixError rejects an absent run whose domain prefix is too
// short to be safe.
type InvalidPrefixError struct {
	Prefix string
	Min    int
}

func (e *InvalidPrefixError) Error() string {
	return fmt.Sprintf("absent run needs a domain prefix of at least %d characters, got %q", e.Min, e.Prefix)
}

// TranslateError reports a source entity that cannot be expressed on the
// target, such as an enum value without a value.
type TranslateError struct {
	EntityType ir.EntityType
	SourceID   string
	Message    string
	Err        error
}

func (e *TranslateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("translate %s %s: %s: %v", e.EntityType, e.SourceID, e.Message, e.Err)
	}
	return fmt.Sprintf("translate %s %s: %s", e.EntityType, e.SourceID, e.Message)
}

func (e *TranslateError) Unwrap() error {
	return e.Err
}
