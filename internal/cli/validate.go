package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/epsync/internal/compiler"
	"github.com/roach88/epsync/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Files    int                        `json:"files"`
	Entities int                        `json:"entities"`
	Order    []string                   `json:"order,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <desired-state-dir>",
		Short: "Validate desired state without touching a catalog",
		Long: `Validate the CUE and YAML desired-state files in a directory.

Checks entity types, names, target states, parent scopes, versions and
parent cycles, then prints the order entities would be reconciled in.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	state, err := LoadDesiredState(dir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Found %d CUE and %d YAML file(s) in %s", len(state.CUEFiles), len(state.YAMLFiles), dir)

	result := ValidationResult{
		Files:    state.FileCount(),
		Entities: len(state.Specs),
		Errors:   compiler.Validate(state.Specs),
	}
	if len(result.Errors) == 0 {
		ordered, err := compiler.Order(state.Specs)
		if err != nil {
			result.Errors = append(result.Errors, compiler.ValidationError{
				Field:   "parent",
				Message: err.Error(),
				Code:    compiler.ErrParentCycle,
			})
		}
		for _, s := range ordered {
			result.Order = append(result.Order, specLabel(s))
		}
	}
	result.Valid = len(result.Errors) == 0

	if !result.Valid {
		return outputValidationErrors(formatter, result, ExitFailure)
	}
	if formatter.IsJSON() {
		return formatter.Success(result)
	}
	w := formatter.Writer
	fmt.Fprintf(w, "✓ %d entities in %d file(s) are valid\n", result.Entities, result.Files)
	if opts.Verbose {
		for i, label := range result.Order {
			fmt.Fprintf(w, "  %d. %s\n", i+1, label)
		}
	}
	return nil
}

func specLabel(s ir.EntitySpec) string {
	label := fmt.Sprintf("%s %s", s.Type, s.Name)
	if s.TargetState == ir.Absent {
		label += " (absent)"
	}
	return label
}

// outputValidationErrors reports validation problems and returns the
// command error with the given exit code.
func outputValidationErrors(f *OutputFormatter, result ValidationResult, code int) error {
	message := fmt.Sprintf("%d validation error(s)", len(result.Errors))
	if f.IsJSON() {
		if err := f.Error(result.Errors[0].Code, message, result); err != nil {
			return err
		}
	} else {
		writeValidationErrors(f.Writer, result.Errors)
	}
	return NewExitError(code, message)
}

func writeValidationErrors(w io.Writer, errs []compiler.ValidationError) {
	fmt.Fprintf(w, "✗ %d validation error(s):\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(w, "  %s\n", e.Error())
	}
}

// outputLoadError reports a LoadDesiredState failure and returns the
// command error.
func outputLoadError(f *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		code = loadErr.Code
	}
	if outErr := f.Error(code, err.Error(), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitCommandError, "failed to load desired state", err)
}
