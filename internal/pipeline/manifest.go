package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNoVersions is returned when a run has no program version to build.
	ErrNoVersions = errors.New("no program versions given")

	// ErrInputMismatch is returned when IR documents and source file groups disagree.
	ErrInputMismatch = errors.New("IR documents and source file groups do not match")
)

// Demarcation separates IR documents from the source files of each version
// in the positional argument form.
const Demarcation = "::"

// Manifest lists the program versions of a run in version order.
type Manifest struct {
	Versions []VersionInput `yaml:"versions"`
}

// VersionInput is one program version: its extracted IR and its source files.
type VersionInput struct {
	IR    string   `yaml:"ir"`
	Files []string `yaml:"files"`
}

// LoadManifest reads a YAML manifest. Relative paths are resolved against the
// manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range m.Versions {
		v := &m.Versions[i]
		v.IR = resolve(base, v.IR)
		for j, f := range v.Files {
			v.Files[j] = resolve(base, f)
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// ParseArgs builds a manifest from the positional form
//
//	ir1 ir2 ... irN :: files of v1 :: files of v2 ... :: files of vN
//
// A trailing demarcation is allowed.
func ParseArgs(args []string) (*Manifest, error) {
	var groups [][]string
	current := []string{}
	for _, arg := range args {
		if arg == Demarcation {
			groups = append(groups, current)
			current = []string{}
			continue
		}
		current = append(current, arg)
	}
	if len(current) > 0 || len(groups) == 0 {
		groups = append(groups, current)
	}

	irs := groups[0]
	if len(irs) == 0 {
		return nil, ErrNoVersions
	}
	files := groups[1:]
	if len(files) != len(irs) {
		return nil, fmt.Errorf("%w: %d IR documents, %d file groups", ErrInputMismatch, len(irs), len(files))
	}

	m := &Manifest{Versions: make([]VersionInput, len(irs))}
	for i, ir := range irs {
		m.Versions[i] = VersionInput{IR: ir, Files: files[i]}
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate checks that every version names an IR document.
func (m *Manifest) Validate() error {
	if len(m.Versions) == 0 {
		return ErrNoVersions
	}
	for i, v := range m.Versions {
		if v.IR == "" {
			return fmt.Errorf("%w: version %d has no IR document", ErrInputMismatch, i+1)
		}
	}
	return nil
}

// Check verifies that every referenced path is accessible.
func (m *Manifest) Check() error {
	var errs []error
	for _, v := range m.Versions {
		for _, path := range append([]string{v.IR}, v.Files...) {
			if _, err := os.Stat(path); err != nil {
				errs = append(errs, fmt.Errorf("%s not accessible: %w", path, err))
			}
		}
	}
	return errors.Join(errs...)
}
