// Package manifest parses the workspace manifest tkb.toml, which declares
// where specifications, tests, and code live and what the scanner skips.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// ManifestFile is the default filename at the repository root.
const ManifestFile = "tkb.toml"

// RootDeclaration maps a directory tree to an artifact type.
type RootDeclaration struct {
	// Path is the repo-relative directory to walk
	Path string `toml:"path"`

	// Type classifies everything under Path: "spec", "test", "code", or
	// "knowledge". Empty means classify per file by naming convention.
	Type string `toml:"type,omitempty"`
}

// Manifest is the root structure of tkb.toml.
type Manifest struct {
	// Version is the schema version
	Version int `toml:"version"`

	// Roots are the directory trees the scanner walks. Empty means the
	// whole repository.
	Roots []RootDeclaration `toml:"root"`

	// Ignore lists directory names skipped everywhere, in addition to
	// the built-in set (.git, .tkb, node_modules, vendor).
	Ignore []string `toml:"ignore,omitempty"`

	// SpecGlobs are file patterns treated as specification documents.
	SpecGlobs []string `toml:"spec_globs,omitempty"`
}

// Default returns the manifest used when tkb.toml is absent: walk the whole
// repository, classify by convention.
func Default() *Manifest {
	return &Manifest{
		Version:   1,
		Roots:     []RootDeclaration{{Path: "."}},
		SpecGlobs: []string{"*.md"},
	}
}

// Load reads tkb.toml from the repository root. A missing file yields the
// default manifest, not an error.
func Load(repoRoot string) (*Manifest, error) {
	path := filepath.Join(repoRoot, ManifestFile)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ManifestFile, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestFile, err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	if len(m.Roots) == 0 {
		m.Roots = []RootDeclaration{{Path: "."}}
	}
	if len(m.SpecGlobs) == 0 {
		m.SpecGlobs = []string{"*.md"}
	}
	return &m, nil
}

// Validate checks structural constraints.
func (m *Manifest) Validate() error {
	if m.Version != 1 {
		return fmt.Errorf("unsupported %s version %d", ManifestFile, m.Version)
	}
	for i, root := range m.Roots {
		if root.Path == "" {
			return fmt.Errorf("root %d has no path", i)
		}
		if filepath.IsAbs(root.Path) {
			return fmt.Errorf("root path %q must be repo-relative", root.Path)
		}
		switch root.Type {
		case "", "spec", "test", "code", "knowledge":
		default:
			return fmt.Errorf("root %q has unknown type %q", root.Path, root.Type)
		}
	}
	return nil
}

// Save writes the manifest to the repository root. Used by init to lay down
// a starting point.
func (m *Manifest) Save(repoRoot string) error {
	data, err := toml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", ManifestFile, err)
	}
	return os.WriteFile(filepath.Join(repoRoot, ManifestFile), data, 0644)
}

// IgnoredDirs returns the built-in skip list merged with the manifest's.
func (m *Manifest) IgnoredDirs() map[string]bool {
	ignored := map[string]bool{
		".git":         true,
		".tkb":         true,
		"node_modules": true,
		"vendor":       true,
	}
	for _, dir := range m.Ignore {
		ignored[dir] = true
	}
	return ignored
}
