// Package extract parses annotation grammars out of artifact text into typed
// references.
//
// Each artifact type has a fixed, documented grammar: a literal marker
// followed by an identifier matching the configured id pattern:
//
//	Spec documents:  "# FEAT-001: Title", "Status: Ready", "AC-1: text",
//	                 "Parent: FEAT-000", "Blocks: FEAT-002",
//	                 "Related: FEAT-003", "Verified-By: path#symbol",
//	                 "Waived: FEAT-001/AC-2 owner=alice reason=..."
//	Test files:      "Tests: FEAT-001/AC-1, FEAT-001/AC-2" in a comment,
//	                 attaching to the next declared test symbol
//	Code files:      "Implements: FEAT-001", attaching to the next symbol
//	Knowledge:       "Discovered-From: FEAT-001"
//
// Extraction is pure input/output: no file system access, no global state.
// A marker whose identifier fails the pattern yields a non-fatal
// ParseWarning carrying the file/line position, and extraction continues.
package extract

import (
	"regexp"
	"strings"

	"tkb/internal/errors"
	"tkb/internal/model"
)

// ArtifactType declares which grammar applies to a piece of text.
type ArtifactType string

const (
	ArtifactSpec      ArtifactType = "spec"
	ArtifactTest      ArtifactType = "test"
	ArtifactCode      ArtifactType = "code"
	ArtifactKnowledge ArtifactType = "knowledge"
)

// FileScopeSymbol is the symbol assigned to markers with no following
// declaration; the reference then belongs to the file as a whole.
const FileScopeSymbol = "_file_"

// Result is the pure output of extraction.
type Result struct {
	References []model.Reference
	Warnings   []*errors.TkbError

	// Populated for spec documents only.
	Spec    *model.Specification
	Waivers []model.Waiver

	// Populated for test/code files only.
	Tests []*model.Test
	Code  []*model.CodeUnit
}

var (
	specHeaderRe = regexp.MustCompile(`^#\s+(\S+?):\s*(.+)$`)
	statusRe     = regexp.MustCompile(`^Status:\s*(\S+)\s*$`)
	acRe         = regexp.MustCompile(`^(AC-\d+):\s*(.+)$`)
	markerRe     = regexp.MustCompile(`(Parent|Blocks|Related|Tests|Implements|Discovered-From|Verified-By):\s*(.+?)\s*$`)
	waiverRe     = regexp.MustCompile(`^Waived:\s*(\S+)\s+owner=(\S+)\s+reason=(.+)$`)
	acIDRe       = regexp.MustCompile(`^AC-\d+$`)

	// Symbol declarations recognized for attaching pending markers.
	symbolRes = []*regexp.Regexp{
		regexp.MustCompile(`^func\s+([A-Za-z_]\w*)\s*\(`),             // Go func
		regexp.MustCompile(`^func\s+\([^)]+\)\s+([A-Za-z_]\w*)\s*\(`), // Go method
		regexp.MustCompile(`^\s*def\s+([A-Za-z_]\w*)\s*\(`),           // Python
		regexp.MustCompile(`^\s*(?:export\s+)?function\s+([A-Za-z_]\w*)`),
		regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)`),
	}
)

// Extractor extracts typed references from artifact text.
type Extractor struct {
	idPattern *regexp.Regexp
}

// New creates an extractor with the given anchored spec-id pattern.
func New(idPattern *regexp.Regexp) *Extractor {
	return &Extractor{idPattern: idPattern}
}

// Extract runs the grammar for the declared artifact type over text.
func (e *Extractor) Extract(artifactType ArtifactType, filePath, text string) Result {
	switch artifactType {
	case ArtifactSpec:
		return e.extractSpec(filePath, text)
	case ArtifactTest:
		return e.extractAnnotated(filePath, text, true)
	case ArtifactCode:
		return e.extractAnnotated(filePath, text, false)
	case ArtifactKnowledge:
		return e.extractKnowledge(filePath, text)
	default:
		return Result{}
	}
}

func (e *Extractor) extractSpec(filePath, text string) Result {
	var res Result
	spec := &model.Specification{Status: model.StatusDraft, FilePath: filePath}

	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)

		if spec.ID == "" {
			if m := specHeaderRe.FindStringSubmatch(trimmed); m != nil {
				if !e.idPattern.MatchString(m[1]) {
					res.Warnings = append(res.Warnings, e.badID(m[1], filePath, lineNo))
					continue
				}
				spec.ID = m[1]
				spec.Title = strings.TrimSpace(m[2])
				continue
			}
		}

		if m := statusRe.FindStringSubmatch(trimmed); m != nil {
			if model.IsValidStatus(m[1]) {
				spec.Status = model.SpecStatus(m[1])
			} else {
				res.Warnings = append(res.Warnings,
					errors.New(errors.ParseWarning, "unknown status "+m[1]).At(filePath, lineNo))
			}
			continue
		}

		if m := acRe.FindStringSubmatch(trimmed); m != nil {
			spec.ACs = append(spec.ACs, model.AcceptanceCriterion{ID: m[1], Text: strings.TrimSpace(m[2])})
			continue
		}

		if m := waiverRe.FindStringSubmatch(trimmed); m != nil {
			specID, acID, ok := model.SplitACNodeID(m[1])
			if !ok || !e.idPattern.MatchString(specID) || !acIDRe.MatchString(acID) {
				res.Warnings = append(res.Warnings, e.badID(m[1], filePath, lineNo))
				continue
			}
			res.Waivers = append(res.Waivers, model.Waiver{
				SpecID: specID, ACID: acID,
				Owner: m[2], Reason: strings.TrimSpace(m[3]),
			})
			continue
		}

		if m := markerRe.FindStringSubmatch(trimmed); m != nil {
			e.specMarker(&res, spec, m[1], m[2], filePath, lineNo)
		}
	}

	if spec.ID != "" {
		res.Spec = spec
		// Fix up reference sources now that the id is known; markers may
		// precede the header only in malformed documents.
		for i := range res.References {
			if res.References[i].From == "" {
				res.References[i].From = spec.ID
			}
		}
	}
	return res
}

func (e *Extractor) specMarker(res *Result, spec *model.Specification, marker, value, filePath string, lineNo int) {
	pos := errors.Position{File: filePath, Line: lineNo}

	switch marker {
	case "Parent", "Blocks", "Related":
		linkType := map[string]model.LinkType{
			"Parent":  model.LinkParent,
			"Blocks":  model.LinkBlocks,
			"Related": model.LinkRelated,
		}[marker]
		for _, target := range splitList(value) {
			if !e.idPattern.MatchString(target) {
				res.Warnings = append(res.Warnings, e.badID(target, filePath, lineNo))
				continue
			}
			res.References = append(res.References, model.Reference{
				From: spec.ID, To: target, Type: linkType, Pos: pos,
			})
		}
	case "Verified-By":
		// Back-reference: the spec claims a test verifies it. The
		// validator checks the test declares the forward reference too.
		path, symbol, ok := strings.Cut(value, "#")
		if !ok || path == "" || symbol == "" {
			res.Warnings = append(res.Warnings,
				errors.New(errors.ParseWarning, "Verified-By expects path#symbol, got "+value).At(filePath, lineNo))
			return
		}
		res.References = append(res.References, model.Reference{
			From: spec.ID, To: model.TestNodeID(path, symbol), Type: model.LinkTests, Pos: pos,
		})
	}
}

// extractAnnotated handles test and code files: markers accumulate and
// attach to the next declared symbol, or to file scope at EOF.
func (e *Extractor) extractAnnotated(filePath, text string, isTest bool) Result {
	var res Result
	var pending []pendingRef

	flush := func(symbol string) {
		if len(pending) == 0 {
			return
		}
		if isTest {
			tst := &model.Test{FilePath: filePath, Symbol: symbol}
			from := model.TestNodeID(filePath, symbol)
			for _, p := range pending {
				tst.Verifies = append(tst.Verifies, p.target)
				res.References = append(res.References, model.Reference{
					From: from, To: p.target, Type: model.LinkTests, Pos: p.pos,
				})
			}
			res.Tests = append(res.Tests, tst)
		} else {
			unit := &model.CodeUnit{FilePath: filePath, Symbol: symbol}
			from := model.CodeNodeID(filePath, symbol)
			for _, p := range pending {
				unit.Implements = append(unit.Implements, p.target)
				res.References = append(res.References, model.Reference{
					From: from, To: p.target, Type: model.LinkImplements, Pos: p.pos,
				})
			}
			res.Code = append(res.Code, unit)
		}
		pending = nil
	}

	marker := "Implements"
	if isTest {
		marker = "Tests"
	}

	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1

		if m := markerRe.FindStringSubmatch(line); m != nil && m[1] == marker {
			pos := errors.Position{File: filePath, Line: lineNo}
			for _, target := range splitList(m[2]) {
				if !e.validTarget(target, isTest) {
					res.Warnings = append(res.Warnings, e.badID(target, filePath, lineNo))
					continue
				}
				pending = append(pending, pendingRef{target: target, pos: pos})
			}
			continue
		}

		if len(pending) > 0 {
			if symbol := matchSymbol(line); symbol != "" {
				flush(symbol)
			}
		}
	}
	flush(FileScopeSymbol)

	return res
}

func (e *Extractor) extractKnowledge(filePath, text string) Result {
	var res Result

	for i, line := range strings.Split(text, "\n") {
		lineNo := i + 1
		m := markerRe.FindStringSubmatch(line)
		if m == nil || m[1] != "Discovered-From" {
			continue
		}
		for _, target := range splitList(m[2]) {
			if !e.idPattern.MatchString(target) {
				res.Warnings = append(res.Warnings, e.badID(target, filePath, lineNo))
				continue
			}
			res.References = append(res.References, model.Reference{
				// Source node id is filled in by the scanner, which knows
				// which knowledge record the text belongs to.
				To: target, Type: model.LinkDiscoveredFrom,
				Pos: errors.Position{File: filePath, Line: lineNo},
			})
		}
	}

	return res
}

// validTarget accepts a bare spec id, and for tests also spec/AC pairs.
func (e *Extractor) validTarget(target string, isTest bool) bool {
	specID, acID, hasAC := model.SplitACNodeID(target)
	if !e.idPattern.MatchString(specID) {
		return false
	}
	if !hasAC {
		return true
	}
	return isTest && acIDRe.MatchString(acID)
}

func (e *Extractor) badID(id, filePath string, lineNo int) *errors.TkbError {
	return errors.New(errors.ParseWarning, "identifier "+id+" does not match the id pattern").
		At(filePath, lineNo)
}

type pendingRef struct {
	target string
	pos    errors.Position
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func matchSymbol(line string) string {
	for _, re := range symbolRes {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}
