// Package store implements the file-backed artifact store.
//
// Records live in domain-partitioned, line-oriented files under
// .tkb/store/: one file per specification (specs/<ID>.jsonl), one per
// knowledge domain (knowledge/<domain>.jsonl), plus artifacts.jsonl for
// scanned tests and code units and links.jsonl for explicit links. Every
// line is one JSON record with an explicit type tag. Writes are
// whole-partition rewrites through a temp file and rename, so a partition on
// disk always contains syntactically complete records.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tkb/internal/errors"
	"tkb/internal/model"
)

const (
	specsDir     = "specs"
	knowledgeDir = "knowledge"
	artifactFile = "artifacts.jsonl"
	linksFile    = "links.jsonl"
)

// Record type tags used in the persisted format.
const (
	TypeSpec    = "spec"
	TypePattern = "pattern"
	TypeFailure = "failure"
	TypeTest    = "test"
	TypeCode    = "code"
	TypeLink    = "link"
)

// Store holds all records, keyed by node id (links by uid). It is an
// explicit handle passed into every operation; commands open it on start and
// flush it on end. There is no process-wide singleton.
type Store struct {
	root string

	Specs    map[string]*model.Specification
	Patterns map[string]*model.Pattern
	Failures map[string]*model.Failure
	Tests    map[string]*model.Test
	Code     map[string]*model.CodeUnit
	Links    map[string]*model.Link

	// Problems collects corrupt-line diagnostics from Load; loading is
	// fail-soft so one bad line never hides the rest of a partition.
	Problems []*errors.TkbError

	dirty map[string]bool // relative partition paths needing rewrite
}

// New returns an empty store rooted at dir.
func New(dir string) *Store {
	return &Store{
		root:     dir,
		Specs:    make(map[string]*model.Specification),
		Patterns: make(map[string]*model.Pattern),
		Failures: make(map[string]*model.Failure),
		Tests:    make(map[string]*model.Test),
		Code:     make(map[string]*model.CodeUnit),
		Links:    make(map[string]*model.Link),
		dirty:    make(map[string]bool),
	}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// envelope is the persisted line format: a type tag plus the record.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Load reads every partition under dir into a new store.
func Load(dir string) (*Store, error) {
	s := New(dir)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return s, nil // empty store; first save creates it
	}

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".jsonl") {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = path
		}
		return s.loadPartition(path, rel)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	return s, nil
}

func (s *Store) loadPartition(path, rel string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var env envelope
		if err := json.Unmarshal([]byte(line), &env); err != nil {
			s.Problems = append(s.Problems,
				errors.Wrap(errors.StoreCorrupt, "unreadable record", err).At(rel, i+1))
			continue
		}

		if err := s.ingest(env); err != nil {
			s.Problems = append(s.Problems,
				errors.Wrap(errors.StoreCorrupt, "invalid record", err).At(rel, i+1))
		}
	}

	return nil
}

func (s *Store) ingest(env envelope) error {
	switch env.Type {
	case TypeSpec:
		var spec model.Specification
		if err := json.Unmarshal(env.Data, &spec); err != nil {
			return err
		}
		if spec.ID == "" {
			return fmt.Errorf("spec record missing id")
		}
		s.Specs[spec.ID] = &spec
	case TypePattern:
		var p model.Pattern
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return err
		}
		if p.Domain == "" || p.Title == "" {
			return fmt.Errorf("pattern record missing identity")
		}
		s.Patterns[model.PatternNodeID(p.Domain, p.Title)] = &p
	case TypeFailure:
		var f model.Failure
		if err := json.Unmarshal(env.Data, &f); err != nil {
			return err
		}
		if f.Domain == "" || f.Title == "" {
			return fmt.Errorf("failure record missing identity")
		}
		s.Failures[model.FailureNodeID(f.Domain, f.Title)] = &f
	case TypeTest:
		var tst model.Test
		if err := json.Unmarshal(env.Data, &tst); err != nil {
			return err
		}
		s.Tests[model.TestNodeID(tst.FilePath, tst.Symbol)] = &tst
	case TypeCode:
		var c model.CodeUnit
		if err := json.Unmarshal(env.Data, &c); err != nil {
			return err
		}
		s.Code[model.CodeNodeID(c.FilePath, c.Symbol)] = &c
	case TypeLink:
		var l model.Link
		if err := json.Unmarshal(env.Data, &l); err != nil {
			return err
		}
		if l.UID == "" {
			l.UID = model.LinkUID(l.From, l.To, l.Type)
		}
		s.Links[l.UID] = &l
	default:
		return fmt.Errorf("unknown record type %q", env.Type)
	}
	return nil
}

// Find looks up any record by node id (links by uid).
func (s *Store) Find(id string) (interface{}, bool) {
	if spec, ok := s.Specs[id]; ok {
		return spec, true
	}
	if p, ok := s.Patterns[id]; ok {
		return p, true
	}
	if f, ok := s.Failures[id]; ok {
		return f, true
	}
	if t, ok := s.Tests[id]; ok {
		return t, true
	}
	if c, ok := s.Code[id]; ok {
		return c, true
	}
	if l, ok := s.Links[id]; ok {
		return l, true
	}
	return nil, false
}

// Upsert inserts or replaces a record and marks its partition dirty.
// The same identity always lands on the same logical node.
func (s *Store) Upsert(record interface{}) error {
	switch r := record.(type) {
	case *model.Specification:
		s.Specs[r.ID] = r
		s.markDirty(specPartition(r.ID))
	case *model.Pattern:
		if r.UID == "" {
			r.UID = model.ContentUID(r.Domain, model.NormalizeTitle(r.Title), r.Prompt, r.Context, r.Gotcha)
		}
		s.Patterns[model.PatternNodeID(r.Domain, r.Title)] = r
		s.markDirty(knowledgePartition(r.Domain))
	case *model.Failure:
		if r.UID == "" {
			r.UID = model.ContentUID(r.Domain, model.NormalizeTitle(r.Title), r.Problem, r.BetterApproach)
		}
		s.Failures[model.FailureNodeID(r.Domain, r.Title)] = r
		s.markDirty(knowledgePartition(r.Domain))
	case *model.Test:
		s.Tests[model.TestNodeID(r.FilePath, r.Symbol)] = r
		s.markDirty(artifactFile)
	case *model.CodeUnit:
		s.Code[model.CodeNodeID(r.FilePath, r.Symbol)] = r
		s.markDirty(artifactFile)
	case *model.Link:
		if r.UID == "" {
			r.UID = model.LinkUID(r.From, r.To, r.Type)
		}
		s.Links[r.UID] = r
		s.markDirty(linksFile)
	default:
		return fmt.Errorf("unsupported record type %T", record)
	}
	return nil
}

func (s *Store) markDirty(rel string) {
	s.dirty[rel] = true
}

// MarkAllDirty forces the next Save to rewrite every partition.
func (s *Store) MarkAllDirty() {
	for id := range s.Specs {
		s.markDirty(specPartition(id))
	}
	for _, p := range s.Patterns {
		s.markDirty(knowledgePartition(p.Domain))
	}
	for _, f := range s.Failures {
		s.markDirty(knowledgePartition(f.Domain))
	}
	s.markDirty(artifactFile)
	s.markDirty(linksFile)
}

func specPartition(id string) string {
	return filepath.Join(specsDir, sanitize(id)+".jsonl")
}

func knowledgePartition(domain string) string {
	return filepath.Join(knowledgeDir, sanitize(domain)+".jsonl")
}

// sanitize keeps partition file names filesystem-safe.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', ' ':
			return '_'
		default:
			return r
		}
	}, name)
}

// Save rewrites every dirty partition. Partition contents are sorted by
// record identity so repeated saves of an unchanged store are byte-identical.
func (s *Store) Save() error {
	for rel := range s.dirty {
		if err := s.savePartition(rel); err != nil {
			return err
		}
	}
	s.dirty = make(map[string]bool)
	return nil
}

func (s *Store) savePartition(rel string) error {
	var lines []string
	var err error

	switch {
	case strings.HasPrefix(rel, specsDir):
		lines, err = s.specLines(rel)
	case strings.HasPrefix(rel, knowledgeDir):
		lines, err = s.knowledgeLines(rel)
	case rel == artifactFile:
		lines, err = s.artifactLines()
	case rel == linksFile:
		lines, err = s.linkLines()
	default:
		return fmt.Errorf("unknown partition %q", rel)
	}
	if err != nil {
		return err
	}

	path := filepath.Join(s.root, rel)
	if len(lines) == 0 {
		// Partition emptied out (e.g. archived domain); drop the file.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}

	return writeFileAtomic(path, []byte(strings.Join(lines, "\n")+"\n"))
}

func (s *Store) specLines(rel string) ([]string, error) {
	base := strings.TrimSuffix(filepath.Base(rel), ".jsonl")
	for id, spec := range s.Specs {
		if sanitize(id) == base {
			line, err := marshalLine(TypeSpec, spec)
			if err != nil {
				return nil, err
			}
			return []string{line}, nil
		}
	}
	return nil, nil
}

func (s *Store) knowledgeLines(rel string) ([]string, error) {
	base := strings.TrimSuffix(filepath.Base(rel), ".jsonl")

	var lines []string
	for _, id := range sortedKeys(s.Patterns) {
		p := s.Patterns[id]
		if sanitize(p.Domain) != base {
			continue
		}
		line, err := marshalLine(TypePattern, p)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	for _, id := range sortedKeys(s.Failures) {
		f := s.Failures[id]
		if sanitize(f.Domain) != base {
			continue
		}
		line, err := marshalLine(TypeFailure, f)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *Store) artifactLines() ([]string, error) {
	var lines []string
	for _, id := range sortedKeys(s.Tests) {
		line, err := marshalLine(TypeTest, s.Tests[id])
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	for _, id := range sortedKeys(s.Code) {
		line, err := marshalLine(TypeCode, s.Code[id])
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *Store) linkLines() ([]string, error) {
	var lines []string
	for _, uid := range sortedKeys(s.Links) {
		line, err := marshalLine(TypeLink, s.Links[uid])
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func marshalLine(typeTag string, record interface{}) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	env, err := json.Marshal(envelope{Type: typeTag, Data: data})
	if err != nil {
		return "", err
	}
	return string(env), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// writeFileAtomic writes data through a temp file and rename so readers
// never observe a half-written partition.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tkb-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}
