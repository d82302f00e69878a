package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/epsync/internal/ir"
)

// CompileEntity parses a CUE value into an EntitySpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the entity struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`entity: orders: { type: "application_domain" }`)
//	spec, err := CompileEntity(v.LookupPath(cue.ParsePath("entity.orders")))
//
// The name defaults to the struct label.
func CompileEntity(v cue.Value) (*ir.EntitySpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.EntitySpec{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = unquote(labels[len(labels)-1].String())
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return nil, &CompileError{Field: "type", Message: "type is required", Pos: v.Pos()}
	}
	typeStr, err := typeVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	if spec.Type, err = ir.ParseEntityType(typeStr); err != nil {
		return nil, &CompileError{Field: "type", Message: err.Error(), Pos: typeVal.Pos()}
	}

	if name, ok, err := optionalString(v, "name"); err != nil {
		return nil, err
	} else if ok {
		spec.Name = name
	}

	state, _, err := optionalString(v, "state")
	if err != nil {
		return nil, err
	}
	if spec.TargetState, err = ir.ParseTargetState(state); err != nil {
		return nil, &CompileError{Field: "state", Message: err.Error(), Pos: v.LookupPath(cue.ParsePath("state")).Pos()}
	}

	if spec.Parent, err = parseParent(v); err != nil {
		return nil, err
	}

	settingsVal := v.LookupPath(cue.ParsePath("settings"))
	if settingsVal.Exists() {
		if spec.Settings, err = decodeSettings(settingsVal); err != nil {
			return nil, err
		}
	}

	if spec.Versions, err = parseVersions(v); err != nil {
		return nil, err
	}

	return spec, nil
}

// parseParent accepts either a struct {type, name} or nothing.
func parseParent(v cue.Value) (*ir.Ref, error) {
	parentVal := v.LookupPath(cue.ParsePath("parent"))
	if !parentVal.Exists() {
		return nil, nil
	}

	typeStr, ok, err := optionalString(parentVal, "type")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &CompileError{Field: "parent.type", Message: "parent type is required", Pos: parentVal.Pos()}
	}
	t, err := ir.ParseEntityType(typeStr)
	if err != nil {
		return nil, &CompileError{Field: "parent.type", Message: err.Error(), Pos: parentVal.Pos()}
	}

	name, ok, err := optionalString(parentVal, "name")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &CompileError{Field: "parent.name", Message: "parent name is required", Pos: parentVal.Pos()}
	}
	return &ir.Ref{Type: t, Name: name}, nil
}

// parseVersions reads the optional versions list.
func parseVersions(v cue.Value) ([]ir.VersionSpec, error) {
	versionsVal := v.LookupPath(cue.ParsePath("versions"))
	if !versionsVal.Exists() {
		return nil, nil
	}

	iter, err := versionsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var versions []ir.VersionSpec
	for iter.Next() {
		item := iter.Value()
		version, ok, err := optionalString(item, "version")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &CompileError{Field: "versions.version", Message: "version is required", Pos: item.Pos()}
		}
		vs := ir.VersionSpec{Version: version}
		if s := item.LookupPath(cue.ParsePath("settings")); s.Exists() {
			if vs.Settings, err = decodeSettings(s); err != nil {
				return nil, err
			}
		}
		versions = append(versions, vs)
	}
	return versions, nil
}

// decodeSettings converts a concrete CUE struct into Settings.
func decodeSettings(v cue.Value) (ir.Settings, error) {
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{
			Field:   "settings",
			Message: fmt.Sprintf("settings must be a struct, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
	var m map[string]any
	if err := v.Decode(&m); err != nil {
		return nil, formatCUEError(err)
	}
	return ir.Settings(m), nil
}

// optionalString returns the string at field, whether it exists, and a
// CompileError if it exists but is not a string.
func optionalString(v cue.Value, field string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, &CompileError{Field: field, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, true, nil
}

// unquote strips the quotes CUE keeps on labels that are not identifiers.
func unquote(label string) string {
	if len(label) >= 2 && label[0] == '"' && label[len(label)-1] == '"' {
		return label[1 : len(label)-1]
	}
	return label
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
