// Package knowledge maintains the captured pattern and failure entries:
// capture with success-rate bookkeeping, staleness and anti-pattern review,
// and export/import bundles for sharing between repositories.
package knowledge

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"tkb/internal/config"
	"tkb/internal/model"
	"tkb/internal/store"
)

// Service wraps a store with the knowledge maintenance heuristics.
type Service struct {
	store *store.Store
	cfg   config.KnowledgeConfig

	// now is swappable in tests.
	now func() time.Time
}

// NewService creates a knowledge service over an opened store.
func NewService(st *store.Store, cfg config.KnowledgeConfig) *Service {
	return &Service{store: st, cfg: cfg, now: time.Now}
}

// CapturePattern records one use of a pattern. An existing entry with the
// same (domain, normalized title) identity accumulates counters; a new one
// starts at one attempt. Non-empty text fields on the incoming entry replace
// the stored ones, so a refined write-up does not need a new identity.
func (s *Service) CapturePattern(in *model.Pattern, success bool) (*model.Pattern, error) {
	if in.Domain == "" || in.Title == "" {
		return nil, fmt.Errorf("pattern capture requires domain and title")
	}

	id := model.PatternNodeID(in.Domain, in.Title)
	p, exists := s.store.Patterns[id]
	if !exists {
		p = &model.Pattern{Domain: in.Domain, Title: in.Title}
	}

	for _, field := range []struct{ dst *string; src string }{
		{&p.Prompt, in.Prompt},
		{&p.Context, in.Context},
		{&p.Gotcha, in.Gotcha},
	} {
		if field.src != "" {
			*field.dst = field.src
		}
	}

	p.Attempts++
	if success {
		p.Successes++
	}
	p.LastUsed = s.now().UTC()
	p.UID = "" // re-derived from content on upsert

	if err := s.store.Upsert(p); err != nil {
		return nil, err
	}
	return p, nil
}

// CaptureFailure records a dead end. Re-capturing the same identity replaces
// the entry and refreshes its date.
func (s *Service) CaptureFailure(in *model.Failure) (*model.Failure, error) {
	if in.Domain == "" || in.Title == "" {
		return nil, fmt.Errorf("failure capture requires domain and title")
	}

	f := &model.Failure{
		Domain:         in.Domain,
		Title:          in.Title,
		Problem:        in.Problem,
		TimeWasted:     in.TimeWasted,
		BetterApproach: in.BetterApproach,
		Date:           s.now().UTC(),
	}
	if !in.Date.IsZero() {
		f.Date = in.Date
	}

	if err := s.store.Upsert(f); err != nil {
		return nil, err
	}
	return f, nil
}

// LinkDiscovery records that a knowledge entry was discovered while working
// on a specification. The spec must already be in the store; the resulting
// discovered_from edge shows up in impact analysis for the spec's files.
func (s *Service) LinkDiscovery(nodeID, specID string) (*model.Link, error) {
	if _, ok := s.store.Specs[specID]; !ok {
		return nil, fmt.Errorf("unknown specification %s; run a scan first", specID)
	}

	l := &model.Link{From: nodeID, To: specID, Type: model.LinkDiscoveredFrom}
	if err := s.store.Upsert(l); err != nil {
		return nil, err
	}
	return l, nil
}

// Finding is one review flag on a knowledge entry. Review never deletes;
// it surfaces candidates for a human decision.
type Finding struct {
	NodeID string `json:"nodeId"`
	Reason string `json:"reason"`
}

// ReviewReport groups the maintenance findings.
type ReviewReport struct {
	Stale      []Finding `json:"stale,omitempty"`
	LowValue   []Finding `json:"lowValue,omitempty"`
	Verbose    []Finding `json:"verbose,omitempty"`
	Duplicates []Finding `json:"duplicates,omitempty"`
}

// Empty reports whether the review found nothing.
func (r *ReviewReport) Empty() bool {
	return len(r.Stale) == 0 && len(r.LowValue) == 0 &&
		len(r.Verbose) == 0 && len(r.Duplicates) == 0
}

// Review scans all knowledge entries for staleness, low-value patterns,
// over-verbose write-ups, and near-duplicate identities.
func (s *Service) Review() *ReviewReport {
	report := &ReviewReport{}
	cutoff := s.now().UTC().AddDate(0, 0, -s.cfg.StalenessDays)

	type identity struct{ domain, key string }
	seen := make(map[identity][]string)

	for _, id := range sortedKeys(s.store.Patterns) {
		p := s.store.Patterns[id]

		if p.LastUsed.Before(cutoff) {
			report.Stale = append(report.Stale, Finding{
				NodeID: id,
				Reason: fmt.Sprintf("not used since %s", p.LastUsed.Format("2006-01-02")),
			})
		}
		if p.Attempts >= s.cfg.LowValueAttempts && p.SuccessRate() < s.cfg.LowValueRate {
			report.LowValue = append(report.LowValue, Finding{
				NodeID: id,
				Reason: fmt.Sprintf("success rate %d/%d below threshold", p.Successes, p.Attempts),
			})
		}
		if words := wordCount(p.Prompt, p.Context, p.Gotcha); words > s.cfg.VerbosityWordCap {
			report.Verbose = append(report.Verbose, Finding{
				NodeID: id,
				Reason: fmt.Sprintf("%d words exceeds the %d word cap", words, s.cfg.VerbosityWordCap),
			})
		}

		key := identity{p.Domain, dedupeKey(p.Title)}
		seen[key] = append(seen[key], id)
	}

	for _, id := range sortedKeys(s.store.Failures) {
		f := s.store.Failures[id]

		if f.Date.Before(cutoff) {
			report.Stale = append(report.Stale, Finding{
				NodeID: id,
				Reason: fmt.Sprintf("recorded %s, may no longer apply", f.Date.Format("2006-01-02")),
			})
		}

		key := identity{f.Domain, dedupeKey(f.Title)}
		seen[key] = append(seen[key], id)
	}

	for _, ids := range seen {
		if len(ids) < 2 {
			continue
		}
		for _, id := range ids {
			report.Duplicates = append(report.Duplicates, Finding{
				NodeID: id,
				Reason: fmt.Sprintf("title collides with %d other entries after normalization", len(ids)-1),
			})
		}
	}
	sortFindings(report.Duplicates)

	return report
}

// ValidateFormat checks knowledge entry titles: a title must normalize to a
// non-empty kebab-case-able form (letters, digits, spaces, hyphens), and the
// same normalized title appearing in several domains is flagged so a shared
// concept does not fragment across domains.
func (s *Service) ValidateFormat() []Finding {
	var findings []Finding
	titleDomains := make(map[string][]string)

	check := func(id, domain, title string) {
		key := dedupeKey(title)
		if key == "" {
			findings = append(findings, Finding{
				NodeID: id,
				Reason: "title has no usable characters after normalization",
			})
			return
		}
		if kebabKey(title) != model.NormalizeTitle(title) {
			findings = append(findings, Finding{
				NodeID: id,
				Reason: fmt.Sprintf("title contains punctuation beyond hyphens; prefer %q", key),
			})
		}
		titleDomains[key] = append(titleDomains[key], domain)
	}

	for _, id := range sortedKeys(s.store.Patterns) {
		p := s.store.Patterns[id]
		check(id, p.Domain, p.Title)
	}
	for _, id := range sortedKeys(s.store.Failures) {
		f := s.store.Failures[id]
		check(id, f.Domain, f.Title)
	}

	for _, key := range sortedKeys(titleDomains) {
		domains := titleDomains[key]
		if len(uniqueStrings(domains)) > 1 {
			findings = append(findings, Finding{
				NodeID: key,
				Reason: fmt.Sprintf("title appears in %d domains: %s",
					len(uniqueStrings(domains)), strings.Join(uniqueStrings(domains), ", ")),
			})
		}
	}

	sortFindings(findings)
	return findings
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// dedupeKey normalizes a title for near-duplicate detection: lowercase,
// punctuation stripped, whitespace collapsed. "Retry-With-Backoff" and
// "retry with backoff" collide.
func dedupeKey(title string) string {
	return strings.Join(strings.Fields(mapAllowed(title, false)), " ")
}

// kebabKey is dedupeKey but keeps hyphens, the one punctuation mark a
// kebab-case title legitimately carries.
func kebabKey(title string) string {
	return strings.Join(strings.Fields(mapAllowed(title, true)), " ")
}

func mapAllowed(title string, keepHyphens bool) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == '-' && keepHyphens:
			return r
		default:
			return ' '
		}
	}, strings.ToLower(title))
}

func wordCount(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += len(strings.Fields(t))
	}
	return n
}

func sortFindings(findings []Finding) {
	sort.Slice(findings, func(i, j int) bool {
		return findings[i].NodeID < findings[j].NodeID
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
