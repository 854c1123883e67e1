package knowledge

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"tkb/internal/config"
	"tkb/internal/model"
	"tkb/internal/store"
)

func testConfig() config.KnowledgeConfig {
	return config.KnowledgeConfig{
		StalenessDays:    90,
		LowValueAttempts: 5,
		LowValueRate:     0.5,
		VerbosityWordCap: 400,
	}
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(store.New(t.TempDir()), testConfig())
	fixed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	return svc
}

func TestLinkDiscovery(t *testing.T) {
	svc := newTestService(t)
	if err := svc.store.Upsert(&model.Specification{ID: "FEAT-001", Status: model.StatusReady}); err != nil {
		t.Fatal(err)
	}
	p, err := svc.CapturePattern(&model.Pattern{Domain: "auth", Title: "Token refresh"}, true)
	if err != nil {
		t.Fatalf("CapturePattern failed: %v", err)
	}

	id := model.PatternNodeID(p.Domain, p.Title)
	l, err := svc.LinkDiscovery(id, "FEAT-001")
	if err != nil {
		t.Fatalf("LinkDiscovery failed: %v", err)
	}
	if l.Type != model.LinkDiscoveredFrom || l.From != id || l.To != "FEAT-001" {
		t.Errorf("unexpected link: %+v", l)
	}
	if _, ok := svc.store.Links[l.UID]; !ok {
		t.Error("link not in the store")
	}

	// Linking twice is idempotent: same UID, one stored link.
	if _, err := svc.LinkDiscovery(id, "FEAT-001"); err != nil {
		t.Fatalf("repeat LinkDiscovery failed: %v", err)
	}
	if len(svc.store.Links) != 1 {
		t.Errorf("store has %d links, want 1", len(svc.store.Links))
	}
}

func TestLinkDiscoveryRejectsUnknownSpec(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.LinkDiscovery("pattern:auth/token-refresh", "FEAT-404"); err == nil {
		t.Error("link to an unscanned spec accepted")
	}
}

func TestCapturePatternCounters(t *testing.T) {
	svc := newTestService(t)

	p, err := svc.CapturePattern(&model.Pattern{
		Domain: "auth", Title: "Token refresh with backoff", Prompt: "refresh before expiry",
	}, true)
	if err != nil {
		t.Fatalf("CapturePattern failed: %v", err)
	}
	if p.Attempts != 1 || p.Successes != 1 {
		t.Errorf("first capture counters = %d/%d, want 1/1", p.Successes, p.Attempts)
	}

	// Same identity, different casing, a failure this time.
	p, err = svc.CapturePattern(&model.Pattern{
		Domain: "auth", Title: "token  refresh with BACKOFF",
	}, false)
	if err != nil {
		t.Fatalf("CapturePattern failed: %v", err)
	}
	if p.Attempts != 2 || p.Successes != 1 {
		t.Errorf("second capture counters = %d/%d, want 1/2", p.Successes, p.Attempts)
	}
	if rate := p.SuccessRate(); rate != 0.5 {
		t.Errorf("SuccessRate = %v, want 0.5", rate)
	}
	if p.Prompt != "refresh before expiry" {
		t.Errorf("empty incoming prompt overwrote stored prompt: %q", p.Prompt)
	}
	if len(svc.store.Patterns) != 1 {
		t.Errorf("expected 1 pattern after re-capture, got %d", len(svc.store.Patterns))
	}
}

func TestCapturePatternRequiresIdentity(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.CapturePattern(&model.Pattern{Domain: "auth"}, true); err == nil {
		t.Error("capture without title succeeded")
	}
	if _, err := svc.CapturePattern(&model.Pattern{Title: "x"}, true); err == nil {
		t.Error("capture without domain succeeded")
	}
}

func TestCaptureFailure(t *testing.T) {
	svc := newTestService(t)

	f, err := svc.CaptureFailure(&model.Failure{
		Domain: "auth", Title: "Tried sessions in local storage", Problem: "XSS exposure",
	})
	if err != nil {
		t.Fatalf("CaptureFailure failed: %v", err)
	}
	if f.Date.IsZero() {
		t.Error("capture did not stamp the date")
	}
	if len(svc.store.Failures) != 1 {
		t.Errorf("expected 1 failure, got %d", len(svc.store.Failures))
	}
}

func TestReviewStaleness(t *testing.T) {
	svc := newTestService(t)
	now := svc.now()

	fresh := &model.Pattern{Domain: "auth", Title: "fresh", Attempts: 1, Successes: 1,
		LastUsed: now.AddDate(0, 0, -89)}
	stale := &model.Pattern{Domain: "auth", Title: "stale", Attempts: 1, Successes: 1,
		LastUsed: now.AddDate(0, 0, -91)}
	svc.store.Upsert(fresh)
	svc.store.Upsert(stale)

	report := svc.Review()
	if len(report.Stale) != 1 {
		t.Fatalf("stale findings = %d, want 1: %+v", len(report.Stale), report.Stale)
	}
	if report.Stale[0].NodeID != model.PatternNodeID("auth", "stale") {
		t.Errorf("wrong entry flagged stale: %s", report.Stale[0].NodeID)
	}
}

func TestReviewLowValue(t *testing.T) {
	svc := newTestService(t)
	now := svc.now()

	// 2/5 is below the 0.5 threshold at the attempt floor.
	svc.store.Upsert(&model.Pattern{Domain: "db", Title: "flaky approach",
		Attempts: 5, Successes: 2, LastUsed: now})
	// 3/5 is not.
	svc.store.Upsert(&model.Pattern{Domain: "db", Title: "decent approach",
		Attempts: 5, Successes: 3, LastUsed: now})
	// 0/4 is below the rate but under the attempt floor.
	svc.store.Upsert(&model.Pattern{Domain: "db", Title: "too early to tell",
		Attempts: 4, Successes: 0, LastUsed: now})

	report := svc.Review()
	if len(report.LowValue) != 1 {
		t.Fatalf("low-value findings = %d, want 1: %+v", len(report.LowValue), report.LowValue)
	}
	if report.LowValue[0].NodeID != model.PatternNodeID("db", "flaky approach") {
		t.Errorf("wrong entry flagged low value: %s", report.LowValue[0].NodeID)
	}
}

func TestReviewVerbosity(t *testing.T) {
	svc := newTestService(t)

	long := bytes.Repeat([]byte("word "), 401)
	svc.store.Upsert(&model.Pattern{Domain: "api", Title: "war and peace",
		Prompt: string(long), Attempts: 1, Successes: 1, LastUsed: svc.now()})

	report := svc.Review()
	if len(report.Verbose) != 1 {
		t.Fatalf("verbose findings = %d, want 1", len(report.Verbose))
	}
}

func TestReviewNearDuplicates(t *testing.T) {
	svc := newTestService(t)
	now := svc.now()

	svc.store.Upsert(&model.Pattern{Domain: "auth", Title: "Retry-With-Backoff",
		Attempts: 1, Successes: 1, LastUsed: now})
	svc.store.Upsert(&model.Pattern{Domain: "auth", Title: "retry with backoff!",
		Attempts: 1, Successes: 1, LastUsed: now})
	// Same title in another domain is a distinct identity, not a duplicate.
	svc.store.Upsert(&model.Pattern{Domain: "db", Title: "retry with backoff",
		Attempts: 1, Successes: 1, LastUsed: now})

	report := svc.Review()
	if len(report.Duplicates) != 2 {
		t.Fatalf("duplicate findings = %d, want 2: %+v", len(report.Duplicates), report.Duplicates)
	}
}

func TestValidateFormat(t *testing.T) {
	svc := newTestService(t)
	now := svc.now()

	// Kebab-case and plain titles are fine.
	svc.store.Upsert(&model.Pattern{Domain: "auth", Title: "Retry-With-Backoff",
		Attempts: 1, Successes: 1, LastUsed: now})
	// Punctuation beyond hyphens is flagged.
	svc.store.Upsert(&model.Pattern{Domain: "db", Title: "N+1 queries!",
		Attempts: 1, Successes: 1, LastUsed: now})
	// The same concept in two domains is flagged once.
	svc.store.Upsert(&model.Pattern{Domain: "api", Title: "retry with backoff",
		Attempts: 1, Successes: 1, LastUsed: now})

	findings := svc.ValidateFormat()

	var punct, cross int
	for _, f := range findings {
		switch {
		case strings.Contains(f.Reason, "punctuation"):
			punct++
		case strings.Contains(f.Reason, "domains"):
			cross++
		}
	}
	if punct != 1 {
		t.Errorf("punctuation findings = %d, want 1: %+v", punct, findings)
	}
	if cross != 1 {
		t.Errorf("cross-domain findings = %d, want 1: %+v", cross, findings)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestService(t)
	now := src.now()

	src.store.Upsert(&model.Pattern{Domain: "auth", Title: "token refresh",
		Prompt: "refresh early", Attempts: 4, Successes: 3, LastUsed: now})
	src.store.Upsert(&model.Failure{Domain: "auth", Title: "local storage sessions",
		Problem: "XSS exposure", Date: now})
	src.store.Upsert(&model.Specification{ID: "FEAT-001", Status: model.StatusReady, Title: "Login"})
	src.store.Upsert(&model.Link{From: "FEAT-001", To: "FEAT-002", Type: model.LinkRelated})

	for _, compress := range []bool{false, true} {
		var buf bytes.Buffer
		bundleID, err := src.Export(&buf, "repo-a", compress)
		if err != nil {
			t.Fatalf("Export(compress=%v) failed: %v", compress, err)
		}
		if bundleID == "" {
			t.Fatal("Export returned empty bundle id")
		}

		bundle, err := ReadBundle(&buf)
		if err != nil {
			t.Fatalf("ReadBundle(compress=%v) failed: %v", compress, err)
		}
		if err := ValidateBundle(bundle); err != nil {
			t.Fatalf("round-tripped bundle invalid: %v", err)
		}

		dst := newTestService(t)
		report, err := dst.Import(bundle)
		if err != nil {
			t.Fatalf("Import failed: %v", err)
		}
		if report.Added != 4 || report.Merged != 0 {
			t.Errorf("import added=%d merged=%d, want 4/0", report.Added, report.Merged)
		}
		if len(dst.store.Patterns) != 1 || len(dst.store.Failures) != 1 {
			t.Errorf("imported store has %d patterns, %d failures",
				len(dst.store.Patterns), len(dst.store.Failures))
		}
		if len(dst.store.Specs) != 1 || len(dst.store.Links) != 1 {
			t.Errorf("imported store has %d specs, %d links, want 1/1",
				len(dst.store.Specs), len(dst.store.Links))
		}
		// Counters and rates survive the round trip unchanged.
		p := dst.store.Patterns[model.PatternNodeID("auth", "token refresh")]
		if p.Attempts != 4 || p.Successes != 3 {
			t.Errorf("round trip changed counters to %d/%d", p.Successes, p.Attempts)
		}
	}
}

func TestImportMergeSumsCountersNewerWins(t *testing.T) {
	svc := newTestService(t)
	now := svc.now()

	svc.store.Upsert(&model.Pattern{Domain: "auth", Title: "token refresh",
		Prompt: "old write-up", Attempts: 4, Successes: 3, LastUsed: now.AddDate(0, 0, -10)})

	bundle := &Bundle{
		FormatVersion: BundleVersion,
		BundleID:      "11111111-2222-3333-4444-555555555555",
		CreatedAt:     now.Format(time.RFC3339),
		Patterns: []*model.Pattern{{
			Domain: "auth", Title: "token refresh",
			Prompt: "newer write-up", Attempts: 2, Successes: 2, LastUsed: now,
		}},
	}

	report, err := svc.Import(bundle)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if report.Merged != 1 || report.Added != 0 {
		t.Fatalf("merged=%d added=%d, want 1/0", report.Merged, report.Added)
	}
	if len(report.Conflicts) != 1 {
		t.Errorf("conflicts = %d, want 1 (both sides had text)", len(report.Conflicts))
	}

	p := svc.store.Patterns[model.PatternNodeID("auth", "token refresh")]
	if p.Prompt != "newer write-up" {
		t.Errorf("Prompt = %q, want the newer side to win", p.Prompt)
	}
	if p.Attempts != 6 || p.Successes != 5 {
		t.Errorf("counters = %d/%d, want summed 5/6", p.Successes, p.Attempts)
	}
	if !p.LastUsed.Equal(now) {
		t.Errorf("LastUsed = %v, want %v", p.LastUsed, now)
	}
}

func TestImportRejectsNewerFormat(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Import(&Bundle{FormatVersion: BundleVersion + 1, BundleID: "x"})
	if err == nil {
		t.Fatal("import of a newer format version succeeded")
	}
}
