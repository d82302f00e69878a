package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/epsync/internal/ir"
)

// TaskError is an error raised by a reconciliation task before or instead
// of a remote mutation.
type TaskError struct {
	// Code identifies the error category.
	Code TaskErrorCode

	// Message is a human-readable description.
	Message string

	// EntityType and Name identify the entity.
	EntityType ir.EntityType
	Name       string

	// Details contains additional context.
	Details map[string]string
}

// TaskErrorCode categorizes task errors.
type TaskErrorCode string

const (
	// ErrCodeAmbiguousEntity indicates more than one remote entity matched
	// a name within its parent scope.
	ErrCodeAmbiguousEntity TaskErrorCode = "AMBIGUOUS_ENTITY"

	// ErrCodeInvalidVersion indicates a declared version that cannot be
	// created or that conflicts with an immutable existing version.
	ErrCodeInvalidVersion TaskErrorCode = "INVALID_VERSION"

	// ErrCodeInvalidTransition indicates a task state machine misuse.
	ErrCodeInvalidTransition TaskErrorCode = "INVALID_TRANSITION"

	// ErrCodeUnresolvedReference indicates a parent that no earlier spec
	// in the run declared.
	ErrCodeUnresolvedReference TaskErrorCode = "UNRESOLVED_REFERENCE"

	// ErrCodeDuplicateSpec indicates the same entity declared twice.
	ErrCodeDuplicateSpec TaskErrorCode = "DUPLICATE_SPEC"
)

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.EntityType != "" {
		return fmt.Sprintf("%s: %s (%s/%s)", e.Code, e.Message, e.EntityType, e.Name)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func hasCode(err error, code TaskErrorCode) bool {
	var te *TaskError
	if errors.As(err, &te) {
		return te.Code == code
	}
	return false
}

// IsAmbiguousEntity reports whether err is an ambiguous-entity error.
// Uses errors.As to handle wrapped errors.
func IsAmbiguousEntity(err error) bool {
	return hasCode(err, ErrCodeAmbiguousEntity)
}

// IsInvalidVersion reports whether err is an invalid-version error.
func IsInvalidVersion(err error) bool {
	return hasCode(err, ErrCodeInvalidVersion)
}

// IsInvalidTransition reports whether err is a state machine error.
func IsInvalidTransition(err error) bool {
	return hasCode(err, ErrCodeInvalidTransition)
}

// IsUnresolvedReference reports whether err is an unresolved parent error.
func IsUnresolvedReference(err error) bool {
	return hasCode(err, ErrCodeUnresolvedReference)
}

// NewAmbiguousEntityError reports count matches for name.
func NewAmbiguousEntityError(t ir.EntityType, name, parentID string, count int) *TaskError {
	return &TaskError{
		Code:       ErrCodeAmbiguousEntity,
		Message:    fmt.Sprintf("%d entities share the name", count),
		EntityType: t,
		Name:       name,
		Details: map[string]string{
			"parent_id": parentID,
			"matches":   fmt.Sprintf("%d", count),
		},
	}
}

// NewInvalidVersionError reports a version that cannot be applied.
func NewInvalidVersionError(t ir.EntityType, name, version, reason string) *TaskError {
	return &TaskError{
		Code:       ErrCodeInvalidVersion,
		Message:    fmt.Sprintf("version %s: %s", version, reason),
		EntityType: t,
		Name:       name,
		Details:    map[string]string{"version": version},
	}
}

// NewUnresolvedReferenceError reports a parent missing from the run.
func NewUnresolvedReferenceError(t ir.EntityType, name string, parent ir.Ref) *TaskError {
	return &TaskError{
		Code:       ErrCodeUnresolvedReference,
		Message:    fmt.Sprintf("parent %s is not declared before it", parent),
		EntityType: t,
		Name:       name,
		Details:    map[string]string{"parent": parent.String()},
	}
}

// SkippedError marks an entity that was not attempted because its parent
// failed, was skipped, or is being deleted.
type SkippedError struct {
	Ref    ir.Ref
	Parent ir.Ref
	Reason string
}

func (e *SkippedError) Error() string {
	return fmt.Sprintf("%s skipped: parent %s %s", e.Ref, e.Parent, e.Reason)
}

// IsSkipped reports whether err is a SkippedError.
func IsSkipped(err error) bool {
	var se *SkippedError
	return errors.As(err, &se)
}
