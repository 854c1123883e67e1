package coverage

import (
	"os"
	"path/filepath"
	"testing"

	"tkb/internal/graph"
	"tkb/internal/model"
	"tkb/internal/store"
)

// twoACFixture builds a store with one two-AC spec, a test covering AC-1,
// and optionally a test covering AC-2.
func twoACFixture(t *testing.T, status model.SpecStatus, coverBoth bool) (*store.Store, *graph.Graph) {
	t.Helper()
	s := store.New(filepath.Join(t.TempDir(), "store"))

	spec := &model.Specification{ID: "FEAT-001", Status: status, ACs: []model.AcceptanceCriterion{
		{ID: "AC-1", Text: "a"},
		{ID: "AC-2", Text: "b"},
	}}
	if err := s.Upsert(spec); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(&model.Test{FilePath: "t.py", Symbol: "test_one"}); err != nil {
		t.Fatal(err)
	}

	refs := []model.Reference{
		{From: "test:t.py#test_one", To: "FEAT-001/AC-1", Type: model.LinkTests},
	}
	if coverBoth {
		if err := s.Upsert(&model.Test{FilePath: "t.py", Symbol: "test_two"}); err != nil {
			t.Fatal(err)
		}
		refs = append(refs, model.Reference{
			From: "test:t.py#test_two", To: "FEAT-001/AC-2", Type: model.LinkTests,
		})
	}

	return s, graph.Build(s, refs)
}

func TestACCoverage(t *testing.T) {
	s, g := twoACFixture(t, model.StatusInProgress, false)
	report := Compute(s, g, Options{})

	if len(report.Specs) != 1 {
		t.Fatalf("specs = %+v", report.Specs)
	}
	sc := report.Specs[0]
	if sc.ACCoverage != 0.5 {
		t.Errorf("acCoverage = %v, want 0.5", sc.ACCoverage)
	}
	if len(sc.Gaps) != 1 || sc.Gaps[0] != "FEAT-001/AC-2" {
		t.Errorf("gaps = %v", sc.Gaps)
	}
}

func TestVerifiedCoverageWithResults(t *testing.T) {
	tests := []struct {
		name    string
		results model.TestResults
		want    float64
	}{
		{"all passing", model.TestResults{
			"test:t.py#test_one": model.OutcomePass,
			"test:t.py#test_two": model.OutcomePass,
		}, 1.0},
		{"one failing", model.TestResults{
			"test:t.py#test_one": model.OutcomePass,
			"test:t.py#test_two": model.OutcomeFail,
		}, 0.5},
		{"missing result counts as not passing", model.TestResults{
			"test:t.py#test_one": model.OutcomePass,
		}, 0.5},
		{"no runner data falls back to link coverage", nil, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, g := twoACFixture(t, model.StatusInProgress, true)
			report := Compute(s, g, Options{Results: tt.results})
			if got := report.Specs[0].VerifiedCoverage; got != tt.want {
				t.Errorf("verifiedCoverage = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDoneGate(t *testing.T) {
	s, g := twoACFixture(t, model.StatusDone, false)
	report := Compute(s, g, Options{GateDone: true})

	if !report.Fatal() {
		t.Fatal("Done spec below gate must fail")
	}
	if !report.Specs[0].GateFailed {
		t.Error("spec not marked gateFailed")
	}

	// Same store, gate disabled: no failure.
	report = Compute(s, g, Options{GateDone: false})
	if report.Fatal() {
		t.Error("gate disabled but still fatal")
	}
}

func TestWaiverSatisfiesAC(t *testing.T) {
	s, g := twoACFixture(t, model.StatusDone, false)
	waivers := []model.Waiver{{SpecID: "FEAT-001", ACID: "AC-2", Owner: "alice", Reason: "legacy"}}
	report := Compute(s, g, Options{GateDone: true, Waivers: waivers})

	if report.Fatal() {
		t.Errorf("waived Done spec must pass the gate: %v", report.GateFailures)
	}
	sc := report.Specs[0]
	if sc.VerifiedCoverage != 1.0 || sc.WaivedACs != 1 {
		t.Errorf("coverage = %+v", sc)
	}
}

func TestArchivedSpecSkipped(t *testing.T) {
	s, g := twoACFixture(t, model.StatusDone, false)
	s.Specs["FEAT-001"].Archived = true
	report := Compute(s, g, Options{GateDone: true})
	if len(report.Specs) != 0 || report.Fatal() {
		t.Errorf("archived spec not skipped: %+v", report)
	}
}

func TestLoadWaivers(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".tkb"), 0755); err != nil {
		t.Fatal(err)
	}
	content := `
[[waiver]]
spec = "FEAT-001"
ac = "AC-2"
owner = "alice"
reason = "endpoint retires next quarter"
`
	if err := os.WriteFile(filepath.Join(root, WaiversFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	waivers, err := LoadWaivers(root)
	if err != nil {
		t.Fatalf("LoadWaivers: %v", err)
	}
	if len(waivers) != 1 || waivers[0].Owner != "alice" {
		t.Errorf("waivers = %+v", waivers)
	}
}

func TestLoadWaiversRejectsUndocumented(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, ".tkb"), 0755); err != nil {
		t.Fatal(err)
	}
	content := "[[waiver]]\nspec = \"FEAT-001\"\nac = \"AC-2\"\n"
	if err := os.WriteFile(filepath.Join(root, WaiversFile), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadWaivers(root); err == nil {
		t.Error("waiver without owner/reason must be rejected")
	}
}

func TestLoadWaiversMissingFile(t *testing.T) {
	waivers, err := LoadWaivers(t.TempDir())
	if err != nil || waivers != nil {
		t.Errorf("missing file should be empty registry, got %v %v", waivers, err)
	}
}
