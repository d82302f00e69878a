package compiler

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/roach88/epsync/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrInvalidEntityType   = "E201" // unknown entity type
	ErrEmptyName           = "E202" // name is required
	ErrInvalidTargetState  = "E203" // state must be PRESENT or ABSENT
	ErrMissingParent       = "E204" // scoped type without parent
	ErrUnexpectedParent    = "E205" // top-level type with parent
	ErrParentTypeMismatch  = "E206" // parent is not the type's scope
	ErrStandaloneVersion   = "E207" // version type declared as an entity
	ErrVersionsUnsupported = "E208" // versions on an unversioned type
	ErrInvalidVersion      = "E209" // version is not semver
	ErrDuplicateVersion    = "E210" // version declared twice
	ErrDuplicateEntity     = "E211" // (type, name) declared twice
	ErrInvalidSettings     = "E212" // settings cannot be normalized
	ErrDanglingParent      = "E213" // parent not declared
	ErrAbsentParent        = "E214" // PRESENT child of an ABSENT parent
	ErrParentCycle         = "E215" // parent references form a cycle
)

// ValidationError represents a desired-state validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a desired-state set.
// Returns all errors found (does not fail-fast).
func Validate(specs []ir.EntitySpec) []ValidationError {
	var errs []ValidationError

	declared := make(map[ir.Ref]ir.TargetState, len(specs))
	for i, spec := range specs {
		errs = append(errs, validateSpec(i, spec)...)

		key := spec.Key()
		if _, dup := declared[key]; dup {
			errs = append(errs, ValidationError{
				Field:   field(i, "name"),
				Message: fmt.Sprintf("%s declared more than once", key),
				Code:    ErrDuplicateEntity,
			})
			continue
		}
		declared[key] = spec.TargetState
	}

	for i, spec := range specs {
		if spec.Parent == nil {
			continue
		}
		parentState, ok := declared[*spec.Parent]
		if !ok {
			errs = append(errs, ValidationError{
				Field:   field(i, "parent"),
				Message: fmt.Sprintf("parent %s is not declared", spec.Parent),
				Code:    ErrDanglingParent,
			})
			continue
		}
		if parentState == ir.Absent && spec.TargetState != ir.Absent {
			errs = append(errs, ValidationError{
				Field:   field(i, "state"),
				Message: fmt.Sprintf("%s is PRESENT but its parent %s is ABSENT", spec.Key(), spec.Parent),
				Code:    ErrAbsentParent,
			})
		}
	}

	return errs
}

// validateSpec checks one spec in isolation.
func validateSpec(i int, spec ir.EntitySpec) []ValidationError {
	var errs []ValidationError

	if _, err := ir.ParseEntityType(string(spec.Type)); err != nil {
		return []ValidationError{{Field: field(i, "type"), Message: err.Error(), Code: ErrInvalidEntityType}}
	}
	if spec.Type.IsVersion() {
		errs = append(errs, ValidationError{
			Field:   field(i, "type"),
			Message: fmt.Sprintf("%s is declared under its object's versions, not as an entity", spec.Type),
			Code:    ErrStandaloneVersion,
		})
	}

	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   field(i, "name"),
			Message: "name is required and must be non-empty",
			Code:    ErrEmptyName,
		})
	}

	if spec.TargetState != ir.Present && spec.TargetState != ir.Absent {
		errs = append(errs, ValidationError{
			Field:   field(i, "state"),
			Message: fmt.Sprintf("invalid target state %q, must be PRESENT or ABSENT", spec.TargetState),
			Code:    ErrInvalidTargetState,
		})
	}

	parentType, scoped := spec.Type.Parent()
	switch {
	case scoped && spec.Parent == nil:
		errs = append(errs, ValidationError{
			Field:   field(i, "parent"),
			Message: fmt.Sprintf("%s requires a %s parent", spec.Type, parentType),
			Code:    ErrMissingParent,
		})
	case !scoped && spec.Parent != nil:
		errs = append(errs, ValidationError{
			Field:   field(i, "parent"),
			Message: fmt.Sprintf("%s is top-level and takes no parent", spec.Type),
			Code:    ErrUnexpectedParent,
		})
	case scoped && spec.Parent.Type != parentType:
		errs = append(errs, ValidationError{
			Field:   field(i, "parent.type"),
			Message: fmt.Sprintf("parent of %s must be %s, got %s", spec.Type, parentType, spec.Parent.Type),
			Code:    ErrParentTypeMismatch,
		})
	}

	if _, err := ir.Normalize(spec.Settings); err != nil {
		errs = append(errs, ValidationError{Field: field(i, "settings"), Message: err.Error(), Code: ErrInvalidSettings})
	}

	errs = append(errs, validateVersions(i, spec)...)
	return errs
}

func validateVersions(i int, spec ir.EntitySpec) []ValidationError {
	if len(spec.Versions) == 0 {
		return nil
	}
	if _, ok := spec.Type.VersionType(); !ok {
		return []ValidationError{{
			Field:   field(i, "versions"),
			Message: fmt.Sprintf("%s has no versions", spec.Type),
			Code:    ErrVersionsUnsupported,
		}}
	}

	var errs []ValidationError
	seen := make(map[string]bool, len(spec.Versions))
	for j, vs := range spec.Versions {
		f := field(i, fmt.Sprintf("versions[%d]", j))
		v, err := version.NewSemver(vs.Version)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   f + ".version",
				Message: fmt.Sprintf("invalid version %q: %v", vs.Version, err),
				Code:    ErrInvalidVersion,
			})
			continue
		}
		canonical := v.String()
		if seen[canonical] {
			errs = append(errs, ValidationError{
				Field:   f + ".version",
				Message: fmt.Sprintf("version %s declared more than once", vs.Version),
				Code:    ErrDuplicateVersion,
			})
		}
		seen[canonical] = true

		if _, err := ir.Normalize(vs.Settings); err != nil {
			errs = append(errs, ValidationError{Field: f + ".settings", Message: err.Error(), Code: ErrInvalidSettings})
		}
	}
	return errs
}

func field(i int, name string) string {
	return fmt.Sprintf("entities[%d].%s", i, name)
}
