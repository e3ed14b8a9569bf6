// Package icfg builds single-version interprocedural control-flow graphs from
// extracted instruction documents.
package icfg

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mvp-joe/mvicfg/internal/graph"
	"gopkg.in/yaml.v3"
)

// ErrInvalidInput is returned for malformed IR documents.
var ErrInvalidInput = errors.New("invalid IR document")

// Document is the extracted IR of one program version.
type Document struct {
	Functions []Function `yaml:"functions" json:"functions"`
}

// Function is one defined function in program order.
type Function struct {
	Name         string        `yaml:"name" json:"name"`
	File         string        `yaml:"file" json:"file"`
	Instructions []Instruction `yaml:"instructions" json:"instructions"`
}

// Instruction is one extracted instruction.
type Instruction struct {
	// Key identifies the instruction uniquely within the document.
	Key string `yaml:"key" json:"key"`

	// Line is the source line, 0 when the instruction carries no location.
	Line int64 `yaml:"line" json:"line"`

	Opcode string `yaml:"opcode" json:"opcode"`
	Label  string `yaml:"label,omitempty" json:"label,omitempty"`

	// Terminator marks the last instruction of a basic block; Successors
	// then holds the keys of the first instruction of each successor block.
	Terminator bool     `yaml:"terminator,omitempty" json:"terminator,omitempty"`
	Successors []string `yaml:"successors,omitempty" json:"successors,omitempty"`

	// Callee names the called function of a direct call. External marks a
	// call whose target is unknown or outside the program.
	Callee    string `yaml:"callee,omitempty" json:"callee,omitempty"`
	External  bool   `yaml:"external,omitempty" json:"external,omitempty"`
	Intrinsic bool   `yaml:"intrinsic,omitempty" json:"intrinsic,omitempty"`
}

// DisplayLabel returns the label, falling back to the opcode.
func (i Instruction) DisplayLabel() string {
	if i.Label != "" {
		return i.Label
	}
	return i.Opcode
}

// IsCall reports whether the instruction is a call site.
func (i Instruction) IsCall() bool {
	return i.Callee != "" || i.External || i.Intrinsic
}

// Load reads an IR document from a YAML or JSON file.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read IR %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse decodes and validates an IR document. YAML is tried first, then JSON.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		if jsonErr := json.Unmarshal(data, &doc); jsonErr != nil {
			return nil, fmt.Errorf("%w: YAML error: %v, JSON error: %v", ErrInvalidInput, err, jsonErr)
		}
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks names, key uniqueness and successor references.
func (d *Document) Validate() error {
	keys := make(map[string]string)
	for _, fn := range d.Functions {
		if fn.Name == "" {
			return fmt.Errorf("%w: function without name", ErrInvalidInput)
		}
		for _, inst := range fn.Instructions {
			if inst.Key == "" {
				return fmt.Errorf("%w: instruction without key in %s", ErrInvalidInput, fn.Name)
			}
			if owner, ok := keys[inst.Key]; ok {
				return fmt.Errorf("%w: duplicate key %q in %s (first seen in %s)", ErrInvalidInput, inst.Key, fn.Name, owner)
			}
			if inst.Line < 0 || inst.Line >= graph.ExitLine {
				return fmt.Errorf("%w: line %d of %q out of range", ErrInvalidInput, inst.Line, inst.Key)
			}
			keys[inst.Key] = fn.Name
		}
	}

	for _, fn := range d.Functions {
		for _, inst := range fn.Instructions {
			for _, succ := range inst.Successors {
				owner, ok := keys[succ]
				if !ok {
					return fmt.Errorf("%w: %q branches to unknown key %q", ErrInvalidInput, inst.Key, succ)
				}
				if owner != fn.Name {
					return fmt.Errorf("%w: %q branches out of %s into %s", ErrInvalidInput, inst.Key, fn.Name, owner)
				}
			}
		}
	}
	return nil
}
