// Package scan walks the workspace, classifies artifacts, and runs the
// reference extractor over them. Scanning is the only operation that reads
// artifact files; everything downstream works from the store and the
// reference index.
package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"tkb/internal/errors"
	"tkb/internal/extract"
	"tkb/internal/logging"
	"tkb/internal/manifest"
	"tkb/internal/model"
	"tkb/internal/store"
)

// Result aggregates one scan pass.
type Result struct {
	SpecCount      int `json:"specCount"`
	TestCount      int `json:"testCount"`
	CodeCount      int `json:"codeCount"`
	KnowledgeCount int `json:"knowledgeCount"`

	References []model.Reference  `json:"-"`
	Warnings   []*errors.TkbError `json:"warnings,omitempty"`
	Waivers    []model.Waiver     `json:"-"`
}

// Scanner drives one pass over the workspace.
type Scanner struct {
	repoRoot  string
	manifest  *manifest.Manifest
	extractor *extract.Extractor
	logger    *logging.Logger
}

// New creates a scanner. idPattern is the anchored spec-id regexp from
// configuration.
func New(repoRoot string, m *manifest.Manifest, idPattern *regexp.Regexp, logger *logging.Logger) *Scanner {
	return &Scanner{
		repoRoot:  repoRoot,
		manifest:  m,
		extractor: extract.New(idPattern),
		logger:    logger,
	}
}

// sourceExtensions are the file types scanned for annotations.
var sourceExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".jsx": true,
	".tsx": true, ".java": true, ".rb": true, ".rs": true, ".c": true,
	".cc": true, ".cpp": true, ".h": true, ".cs": true, ".kt": true,
	".swift": true, ".sh": true,
}

// Run walks every manifest root, extracts references, and upserts the
// discovered artifacts into the store. Unreadable or unparseable files
// become warnings, never a failed scan.
func (s *Scanner) Run(st *store.Store) (*Result, error) {
	res := &Result{}
	seen := make(map[string]bool)

	for _, root := range s.manifest.Roots {
		rootPath := filepath.Join(s.repoRoot, root.Path)
		if _, err := os.Stat(rootPath); os.IsNotExist(err) {
			res.Warnings = append(res.Warnings, errors.New(errors.ParseWarning,
				fmt.Sprintf("manifest root %s does not exist", root.Path)))
			continue
		}

		err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if s.manifest.IgnoredDirs()[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}

			rel, relErr := filepath.Rel(s.repoRoot, path)
			if relErr != nil {
				rel = path
			}
			rel = filepath.ToSlash(rel)
			if seen[rel] {
				return nil // overlapping roots scan each file once
			}
			seen[rel] = true

			artifactType, ok := s.classify(rel, root.Type)
			if !ok {
				return nil
			}
			s.scanFile(st, res, rel, path, artifactType)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root.Path, err)
		}
	}

	sortWarnings(res.Warnings)
	return res, nil
}

// classify decides which grammar applies to a file. A root-level type
// declaration wins; otherwise naming conventions decide.
func (s *Scanner) classify(relPath, rootType string) (extract.ArtifactType, bool) {
	base := filepath.Base(relPath)
	ext := filepath.Ext(base)

	switch rootType {
	case "spec":
		if s.matchesSpecGlob(base) {
			return extract.ArtifactSpec, true
		}
		return "", false
	case "test":
		if sourceExtensions[ext] {
			return extract.ArtifactTest, true
		}
		return "", false
	case "code":
		if sourceExtensions[ext] {
			return extract.ArtifactCode, true
		}
		return "", false
	case "knowledge":
		if ext == ".md" {
			return extract.ArtifactKnowledge, true
		}
		return "", false
	}

	if s.matchesSpecGlob(base) {
		return extract.ArtifactSpec, true
	}
	if !sourceExtensions[ext] {
		return "", false
	}
	if isTestFile(base) {
		return extract.ArtifactTest, true
	}
	return extract.ArtifactCode, true
}

func (s *Scanner) matchesSpecGlob(base string) bool {
	for _, glob := range s.manifest.SpecGlobs {
		if ok, _ := filepath.Match(glob, base); ok {
			return true
		}
	}
	return false
}

// isTestFile recognizes the common test naming conventions.
func isTestFile(base string) bool {
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return strings.HasPrefix(name, "test_") ||
		strings.HasSuffix(name, "_test") ||
		strings.HasSuffix(name, ".test") ||
		strings.HasSuffix(name, ".spec")
}

func (s *Scanner) scanFile(st *store.Store, res *Result, rel, path string, artifactType extract.ArtifactType) {
	data, err := os.ReadFile(path)
	if err != nil {
		res.Warnings = append(res.Warnings,
			errors.Wrap(errors.ParseWarning, "unreadable file", err).At(rel, 0))
		return
	}

	if artifactType == extract.ArtifactKnowledge {
		s.scanKnowledgeNote(st, res, rel, string(data))
		return
	}

	extracted := s.extractor.Extract(artifactType, rel, string(data))
	res.References = append(res.References, extracted.References...)
	res.Warnings = append(res.Warnings, extracted.Warnings...)
	res.Waivers = append(res.Waivers, extracted.Waivers...)

	if extracted.Spec != nil {
		// Re-scanning never deletes: a spec that disappeared from disk
		// stays in the store until archived.
		st.Upsert(extracted.Spec)
		res.SpecCount++
	}
	for _, t := range extracted.Tests {
		st.Upsert(t)
		res.TestCount++
	}
	for _, c := range extracted.Code {
		st.Upsert(c)
		res.CodeCount++
	}

	s.logger.Debug("scanned artifact", map[string]interface{}{
		"file": rel,
		"type": string(artifactType),
		"refs": len(extracted.References),
	})
}

// scanKnowledgeNote treats a markdown note under a knowledge root as a
// pattern entry: the parent directory is its domain, the file name its
// title. Discovered-From markers in the note become discovered_from edges
// sourced at that pattern.
func (s *Scanner) scanKnowledgeNote(st *store.Store, res *Result, rel, text string) {
	domain := filepath.Base(filepath.Dir(rel))
	if domain == "." || domain == string(filepath.Separator) {
		res.Warnings = append(res.Warnings, errors.New(errors.ParseWarning,
			"knowledge note "+rel+" is not inside a domain directory").At(rel, 0))
		return
	}
	title := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))

	id := model.PatternNodeID(domain, title)
	if _, ok := st.Patterns[id]; !ok {
		// A note discovered on disk starts with no attempts; capture fills
		// the counters in.
		st.Upsert(&model.Pattern{Domain: domain, Title: title, LastUsed: time.Now().UTC()})
	}
	res.KnowledgeCount++

	extracted := s.extractor.Extract(extract.ArtifactKnowledge, rel, text)
	for i := range extracted.References {
		extracted.References[i].From = id
	}
	res.References = append(res.References, extracted.References...)
	res.Warnings = append(res.Warnings, extracted.Warnings...)

	s.logger.Debug("scanned knowledge note", map[string]interface{}{
		"file": rel,
		"refs": len(extracted.References),
	})
}

func sortWarnings(warnings []*errors.TkbError) {
	sort.Slice(warnings, func(i, j int) bool {
		a, b := warnings[i], warnings[j]
		af, al := "", 0
		if a.Position != nil {
			af, al = a.Position.File, a.Position.Line
		}
		bf, bl := "", 0
		if b.Position != nil {
			bf, bl = b.Position.File, b.Position.Line
		}
		if af != bf {
			return af < bf
		}
		if al != bl {
			return al < bl
		}
		return a.Message < b.Message
	})
}
