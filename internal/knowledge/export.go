package knowledge

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"tkb/internal/errors"
	"tkb/internal/model"
	"tkb/internal/output"
)

// BundleVersion is the export format version. Import rejects newer versions
// rather than guessing at their semantics.
const BundleVersion = 1

// zstdMagic is the zstd frame header; used to sniff compressed bundles.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Bundle is the export payload: the knowledge entries, specifications, and
// explicit links of one repository, identity-keyed so the receiving side can
// merge by identity.
type Bundle struct {
	FormatVersion int    `json:"formatVersion"`
	BundleID      string `json:"bundleId"`
	CreatedAt     string `json:"createdAt"`
	SourceRepo    string `json:"sourceRepo,omitempty"`

	Patterns []*model.Pattern       `json:"patterns,omitempty"`
	Failures []*model.Failure       `json:"failures,omitempty"`
	Specs    []*model.Specification `json:"specs,omitempty"`
	Links    []*model.Link          `json:"links,omitempty"`
}

// Export writes the store as a bundle. Entry order is sorted by node id; the
// bundle id and timestamp are the only varying parts.
func (s *Service) Export(w io.Writer, sourceRepo string, compress bool) (string, error) {
	b := &Bundle{
		FormatVersion: BundleVersion,
		BundleID:      uuid.NewString(),
		CreatedAt:     s.now().UTC().Format(time.RFC3339),
		SourceRepo:    sourceRepo,
	}

	for _, id := range sortedKeys(s.store.Patterns) {
		b.Patterns = append(b.Patterns, s.store.Patterns[id])
	}
	for _, id := range sortedKeys(s.store.Failures) {
		b.Failures = append(b.Failures, s.store.Failures[id])
	}
	for _, id := range sortedKeys(s.store.Specs) {
		b.Specs = append(b.Specs, s.store.Specs[id])
	}
	for _, uid := range sortedKeys(s.store.Links) {
		b.Links = append(b.Links, s.store.Links[uid])
	}

	data, err := output.DeterministicEncodeIndented(b, "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode bundle: %w", err)
	}

	if compress {
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return "", err
		}
		if _, err := zw.Write(data); err != nil {
			zw.Close()
			return "", err
		}
		return b.BundleID, zw.Close()
	}

	_, err = w.Write(data)
	return b.BundleID, err
}

// ReadBundle parses a bundle, transparently decompressing zstd input.
func ReadBundle(r io.Reader) (*Bundle, error) {
	br := bufio.NewReader(r)

	head, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, err
	}

	var src io.Reader = br
	if bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		src = zr
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse bundle: %w", err)
	}
	return &b, nil
}

// ValidateBundle checks a bundle's structure without touching the store.
func ValidateBundle(b *Bundle) error {
	if b.FormatVersion == 0 {
		return fmt.Errorf("bundle has no format version")
	}
	if b.FormatVersion > BundleVersion {
		return fmt.Errorf("bundle format version %d is newer than supported version %d",
			b.FormatVersion, BundleVersion)
	}
	if b.BundleID == "" {
		return fmt.Errorf("bundle has no id")
	}
	for _, p := range b.Patterns {
		if p.Domain == "" || p.Title == "" {
			return fmt.Errorf("pattern entry missing identity")
		}
	}
	for _, f := range b.Failures {
		if f.Domain == "" || f.Title == "" {
			return fmt.Errorf("failure entry missing identity")
		}
	}
	for _, spec := range b.Specs {
		if spec.ID == "" {
			return fmt.Errorf("spec entry missing id")
		}
	}
	for _, l := range b.Links {
		if l.From == "" || l.To == "" || !model.IsValidLinkType(string(l.Type)) {
			return fmt.Errorf("link entry malformed")
		}
	}
	return nil
}

// ImportReport summarizes a merge.
type ImportReport struct {
	BundleID string `json:"bundleId"`
	Added    int    `json:"added"`
	Merged   int    `json:"merged"`

	// Notes is the provenance trail: one line per merged identity saying
	// which side contributed what.
	Notes []string `json:"notes,omitempty"`

	// Conflicts are warnings: the merge rule resolved them, the report
	// says how.
	Conflicts []*errors.TkbError `json:"conflicts,omitempty"`
}

// Import merges a bundle into the store.
//
// Merge rule per identity: the entry with the more recent timestamp wins
// wholesale for text fields, attempt and success counters are summed so
// neither side's track record is lost. Divergent text on both sides is
// reported as an IMPORT_CONFLICT warning naming the losing side.
func (s *Service) Import(b *Bundle) (*ImportReport, error) {
	if err := ValidateBundle(b); err != nil {
		return nil, errors.Wrap(errors.ImportConflict, "bundle rejected", err)
	}

	report := &ImportReport{BundleID: b.BundleID}

	for _, in := range b.Patterns {
		id := model.PatternNodeID(in.Domain, in.Title)
		existing, ok := s.store.Patterns[id]
		if !ok {
			added := *in
			added.UID = "" // re-derived for local provenance
			if err := s.store.Upsert(&added); err != nil {
				return nil, err
			}
			report.Added++
			continue
		}

		merged, conflict := mergePatterns(existing, in)
		if conflict {
			report.Conflicts = append(report.Conflicts, errors.New(errors.ImportConflict,
				fmt.Sprintf("pattern %s differs on both sides; kept the newer write-up", id)).
				WithDetails(map[string]interface{}{"bundleId": b.BundleID}))
		}
		report.Notes = append(report.Notes, fmt.Sprintf(
			"%s: summed counters (local %d/%d + bundle %s %d/%d)",
			id, existing.Successes, existing.Attempts, b.BundleID, in.Successes, in.Attempts))
		if err := s.store.Upsert(merged); err != nil {
			return nil, err
		}
		report.Merged++
	}

	for _, in := range b.Failures {
		id := model.FailureNodeID(in.Domain, in.Title)
		existing, ok := s.store.Failures[id]
		if !ok {
			added := *in
			added.UID = ""
			if err := s.store.Upsert(&added); err != nil {
				return nil, err
			}
			report.Added++
			continue
		}

		merged, conflict := mergeFailures(existing, in)
		if conflict {
			report.Conflicts = append(report.Conflicts, errors.New(errors.ImportConflict,
				fmt.Sprintf("failure %s differs on both sides; kept the newer entry", id)).
				WithDetails(map[string]interface{}{"bundleId": b.BundleID}))
		}
		report.Notes = append(report.Notes, fmt.Sprintf(
			"%s: kept the newer of local %s and bundle %s %s",
			id, existing.Date.Format("2006-01-02"), b.BundleID, in.Date.Format("2006-01-02")))
		if err := s.store.Upsert(merged); err != nil {
			return nil, err
		}
		report.Merged++
	}

	// Specifications and links merge additively: missing ones are added,
	// an existing spec with divergent content stays local and is flagged.
	for _, in := range b.Specs {
		existing, ok := s.store.Specs[in.ID]
		if !ok {
			added := *in
			if err := s.store.Upsert(&added); err != nil {
				return nil, err
			}
			report.Added++
			continue
		}
		if existing.Title != in.Title || existing.Status != in.Status ||
			textDiffers(existing.Body, in.Body) {
			report.Conflicts = append(report.Conflicts, errors.New(errors.ImportConflict,
				fmt.Sprintf("spec %s differs from the bundle copy; kept the local one", in.ID)).
				WithDetails(map[string]interface{}{"bundleId": b.BundleID}))
		}
	}

	for _, in := range b.Links {
		uid := model.LinkUID(in.From, in.To, in.Type)
		if _, ok := s.store.Links[uid]; ok {
			continue
		}
		added := *in
		added.UID = uid
		if err := s.store.Upsert(&added); err != nil {
			return nil, err
		}
		report.Added++
	}

	sort.Strings(report.Notes)
	sort.Slice(report.Conflicts, func(i, j int) bool {
		return report.Conflicts[i].Message < report.Conflicts[j].Message
	})

	return report, nil
}

func mergePatterns(local, remote *model.Pattern) (*model.Pattern, bool) {
	newer := local
	if remote.LastUsed.After(local.LastUsed) {
		newer = remote
	}

	merged := *newer
	merged.Attempts = local.Attempts + remote.Attempts
	merged.Successes = local.Successes + remote.Successes
	merged.UID = ""

	conflict := textDiffers(local.Prompt, remote.Prompt) ||
		textDiffers(local.Context, remote.Context) ||
		textDiffers(local.Gotcha, remote.Gotcha)

	return &merged, conflict
}

func mergeFailures(local, remote *model.Failure) (*model.Failure, bool) {
	newer := local
	if remote.Date.After(local.Date) {
		newer = remote
	}

	merged := *newer
	merged.UID = ""

	conflict := textDiffers(local.Problem, remote.Problem) ||
		textDiffers(local.BetterApproach, remote.BetterApproach)

	return &merged, conflict
}

// textDiffers reports a real divergence: both sides non-empty and unequal.
// One side being empty is a fill-in, not a conflict.
func textDiffers(a, b string) bool {
	return a != "" && b != "" && a != b
}
