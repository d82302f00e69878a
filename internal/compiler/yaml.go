package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/epsync/internal/ir"
)

// yamlDocument is the YAML desired-state file format.
type yamlDocument struct {
	Entities []yamlEntity `yaml:"entities"`
}

type yamlEntity struct {
	Type     string           `yaml:"type"`
	Name     string           `yaml:"name"`
	State    string           `yaml:"state"`
	Parent   *ir.Ref          `yaml:"parent"`
	Settings map[string]any   `yaml:"settings"`
	Versions []ir.VersionSpec `yaml:"versions"`
}

// CompileYAML parses a YAML desired-state document. Unknown fields are
// errors. filename is only used in error messages.
func CompileYAML(data []byte, filename string) ([]ir.EntitySpec, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var doc yamlDocument
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return []ir.EntitySpec{}, nil
		}
		return nil, &CompileError{Field: "yaml", Message: fmt.Sprintf("%s: %v", filename, err)}
	}

	specs := make([]ir.EntitySpec, 0, len(doc.Entities))
	for i, e := range doc.Entities {
		t, err := ir.ParseEntityType(e.Type)
		if err != nil {
			return nil, &CompileError{Field: fmt.Sprintf("entities[%d].type", i), Message: fmt.Sprintf("%s: %v", filename, err)}
		}
		state, err := ir.ParseTargetState(e.State)
		if err != nil {
			return nil, &CompileError{Field: fmt.Sprintf("entities[%d].state", i), Message: fmt.Sprintf("%s: %v", filename, err)}
		}
		specs = append(specs, ir.EntitySpec{
			Type:        t,
			Name:        e.Name,
			Parent:      e.Parent,
			TargetState: state,
			Settings:    ir.Settings(e.Settings),
			Versions:    e.Versions,
		})
	}
	return specs, nil
}
