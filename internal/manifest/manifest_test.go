package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	m, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(m.Roots) != 1 || m.Roots[0].Path != "." {
		t.Errorf("default roots = %+v, want the repo root", m.Roots)
	}
	if !m.IgnoredDirs()[".git"] || !m.IgnoredDirs()[".tkb"] {
		t.Error("built-in ignore set missing .git or .tkb")
	}
}

func TestLoadParsesDeclarations(t *testing.T) {
	dir := t.TempDir()
	content := `version = 1
ignore = ["build"]
spec_globs = ["*.md", "*.spec"]

[[root]]
path = "docs/specs"
type = "spec"

[[root]]
path = "src"
`
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(m.Roots) != 2 {
		t.Fatalf("roots = %d, want 2", len(m.Roots))
	}
	if m.Roots[0].Path != "docs/specs" || m.Roots[0].Type != "spec" {
		t.Errorf("unexpected first root: %+v", m.Roots[0])
	}
	if !m.IgnoredDirs()["build"] {
		t.Error("manifest ignore entry not merged")
	}
	if len(m.SpecGlobs) != 2 {
		t.Errorf("spec globs = %v", m.SpecGlobs)
	}
}

func TestKnowledgeRootTypeIsValid(t *testing.T) {
	m := &Manifest{
		Version: 1,
		Roots:   []RootDeclaration{{Path: "knowledge", Type: "knowledge"}},
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("knowledge root rejected: %v", err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad version", "version = 99\n"},
		{"absolute root", "version = 1\n[[root]]\npath = \"/etc\"\n"},
		{"unknown type", "version = 1\n[[root]]\npath = \"x\"\ntype = \"binary\"\n"},
		{"missing path", "version = 1\n[[root]]\ntype = \"spec\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(dir); err == nil {
				t.Errorf("Load accepted: %s", tt.content)
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := Default().Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load after Save failed: %v", err)
	}
	if m.Version != 1 || len(m.Roots) != 1 {
		t.Errorf("round trip changed the manifest: %+v", m)
	}
}
