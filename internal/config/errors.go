package config

import (
	"fmt"
	"strings"
)

// FileError wraps a failure to read or decode a config file.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// MissingEnvError lists ${VAR} references with no environment value.
type MissingEnvError struct {
	Path string
	Vars []string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("config %s: environment variables not set: %s", e.Path, strings.Join(e.Vars, ", "))
}

// FieldError is one invalid config value.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every invalid value in a config.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Error()
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Has reports whether field is among the invalid values.
func (e *ValidationError) Has(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}
