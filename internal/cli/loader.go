package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/epsync/internal/compiler"
	"github.com/roach88/epsync/internal/ir"
)

// DesiredState is what a desired-state directory declares.
type DesiredState struct {
	Specs     []ir.EntitySpec
	CUEFiles  []string
	YAMLFiles []string
}

// FileCount is the number of desired-state files read.
func (d *DesiredState) FileCount() int {
	return len(d.CUEFiles) + len(d.YAMLFiles)
}

// LoadError represents an error that occurred while loading desired state.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDesiredState reads every .cue file of dir as one CUE package, taking
// each field of its top-level "entity" struct as an entity, and every
// .yaml/.yml file as an "entities" list. The result is not validated.
func LoadDesiredState(dir string) (*DesiredState, error) {
	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("desired-state directory not found: %s", dir)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing desired-state directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}
	}

	cueFiles, yamlFiles, err := findDesiredStateFiles(dir)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	if len(cueFiles) == 0 && len(yamlFiles) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE or YAML files found in %s", dir)}
	}

	state := &DesiredState{CUEFiles: cueFiles, YAMLFiles: yamlFiles}
	if len(cueFiles) > 0 {
		specs, err := loadCUE(dir)
		if err != nil {
			return nil, err
		}
		state.Specs = append(state.Specs, specs...)
	}
	for _, path := range yamlFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
		}
		specs, err := compiler.CompileYAML(data, path)
		if err != nil {
			return nil, convertCompileError(err, path)
		}
		state.Specs = append(state.Specs, specs...)
	}
	return state, nil
}

// LoadOrdered loads dir, validates the specs and orders them parent-first.
// Validation problems are returned as the second value.
func LoadOrdered(dir string) ([]ir.EntitySpec, []compiler.ValidationError, error) {
	state, err := LoadDesiredState(dir)
	if err != nil {
		return nil, nil, err
	}
	if verrs := compiler.Validate(state.Specs); len(verrs) > 0 {
		return nil, verrs, nil
	}
	ordered, err := compiler.Order(state.Specs)
	if err != nil {
		return nil, nil, &LoadError{Code: compiler.ErrParentCycle, Message: err.Error()}
	}
	return ordered, nil, nil
}

func loadCUE(dir string) ([]ir.EntitySpec, error) {
	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	entities := value.LookupPath(cue.ParsePath("entity"))
	if !entities.Exists() {
		return nil, nil
	}
	iter, err := entities.Fields()
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("iterating entities: %v", err)}
	}
	var specs []ir.EntitySpec
	for iter.Next() {
		spec, err := compiler.CompileEntity(iter.Value())
		if err != nil {
			return nil, convertCompileError(err, "entity."+iter.Label())
		}
		specs = append(specs, *spec)
	}
	return specs, nil
}

// findDesiredStateFiles lists the CUE and YAML files directly in dir, in
// lexical order. Subdirectories are not read.
func findDesiredStateFiles(dir string) (cueFiles, yamlFiles []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch filepath.Ext(path) {
		case ".cue":
			cueFiles = append(cueFiles, path)
		case ".yaml", ".yml":
			yamlFiles = append(yamlFiles, path)
		}
	}
	return cueFiles, yamlFiles, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeLoadFailed,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}
