package impact

import (
	"context"
	"testing"

	"tkb/internal/graph"
	"tkb/internal/model"
)

// authFixture builds a small graph: FEAT-001 with one AC, implemented by
// auth.py and verified by test_auth.py, plus a related spec FEAT-002 and a
// failure entry discovered from FEAT-001.
func authFixture() *graph.Graph {
	g := graph.NewGraph()

	g.AddNode("FEAT-001", model.KindSpec)
	g.AddNode("FEAT-001/AC-1", model.KindAC)
	g.AddNode("FEAT-002", model.KindSpec)
	g.AddNode("code:auth.py#login", model.KindCode)
	g.AddNode("test:test_auth.py#test_login", model.KindTest)
	g.AddNode("failure:auth/token clock skew", model.KindFailure)

	g.AddEdge(&graph.Edge{From: "code:auth.py#login", To: "FEAT-001", Type: model.LinkImplements})
	g.AddEdge(&graph.Edge{From: "test:test_auth.py#test_login", To: "FEAT-001/AC-1", Type: model.LinkTests})
	g.AddEdge(&graph.Edge{From: "FEAT-002", To: "FEAT-001", Type: model.LinkRelated})
	g.AddEdge(&graph.Edge{From: "failure:auth/token clock skew", To: "FEAT-001", Type: model.LinkDiscoveredFrom})

	return g
}

func depthOf(t *testing.T, bucket []Affected, id string) int {
	t.Helper()
	for _, a := range bucket {
		if a.ID == id {
			return a.Depth
		}
	}
	t.Fatalf("artifact %s not in impact set %v", id, bucket)
	return -1
}

func TestAnalyzeChangedImplementation(t *testing.T) {
	a := NewAnalyzer(0, 3, 1)
	report := a.Analyze(context.Background(), authFixture(), []string{"auth.py"})

	if report.Incomplete {
		t.Fatal("unbounded analysis reported incomplete")
	}
	if got := depthOf(t, report.ByType.Specs, "FEAT-001"); got != 1 {
		t.Errorf("FEAT-001 depth = %d, want 1", got)
	}
	if got := depthOf(t, report.ByType.Tests, "test:test_auth.py#test_login"); got != 1 {
		t.Errorf("test_auth.py depth = %d, want 1", got)
	}
	// The changed file's own symbols are the seed, not the impact.
	for _, c := range report.ByType.Code {
		if c.ID == "code:auth.py#login" {
			t.Errorf("seed artifact %s reported as impacted", c.ID)
		}
	}
	if got := depthOf(t, report.ByType.Specs, "FEAT-002"); got != 2 {
		t.Errorf("related FEAT-002 depth = %d, want 2", got)
	}
	if got := depthOf(t, report.ByType.Knowledge, "failure:auth/token clock skew"); got != 2 {
		t.Errorf("failure entry depth = %d, want 2", got)
	}
}

func TestAnalyzeChangedTestFile(t *testing.T) {
	a := NewAnalyzer(0, 3, 1)
	report := a.Analyze(context.Background(), authFixture(), []string{"test_auth.py"})

	if got := depthOf(t, report.ByType.Specs, "FEAT-001"); got != 1 {
		t.Errorf("FEAT-001 depth = %d, want 1", got)
	}
	if got := depthOf(t, report.ByType.Code, "code:auth.py#login"); got != 1 {
		t.Errorf("auth.py depth = %d, want 1", got)
	}
}

func TestAnalyzeMaxDepth(t *testing.T) {
	a := NewAnalyzer(1, 3, 1)
	report := a.Analyze(context.Background(), authFixture(), []string{"auth.py"})

	// Depth 1 still includes the spec and its own tests.
	depthOf(t, report.ByType.Specs, "FEAT-001")
	depthOf(t, report.ByType.Tests, "test:test_auth.py#test_login")

	for _, s := range report.ByType.Specs {
		if s.ID == "FEAT-002" {
			t.Error("depth-2 spec reported with maxDepth=1")
		}
	}
	if len(report.ByType.Knowledge) != 0 {
		t.Errorf("depth-2 knowledge reported with maxDepth=1: %v", report.ByType.Knowledge)
	}
	if report.MaxDepth != 1 {
		t.Errorf("MaxDepth = %d, want 1", report.MaxDepth)
	}
}

func TestAnalyzeDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := NewAnalyzer(0, 3, 1)
	report := a.Analyze(ctx, authFixture(), []string{"auth.py"})

	if !report.Incomplete {
		t.Fatal("expired deadline did not mark the report incomplete")
	}
}

func TestAnalyzeUnknownFile(t *testing.T) {
	a := NewAnalyzer(0, 3, 1)
	report := a.Analyze(context.Background(), authFixture(), []string{"billing.py"})

	if len(report.ByType.Specs) != 0 || len(report.ByType.Tests) != 0 {
		t.Errorf("unknown file produced impact: %+v", report.ByType)
	}
	if report.RiskLevel != RiskLow {
		t.Errorf("empty impact risk = %s, want low", report.RiskLevel)
	}
}

func TestAnalyzeRiskScore(t *testing.T) {
	a := NewAnalyzer(0, 3, 1)
	report := a.Analyze(context.Background(), authFixture(), []string{"auth.py"})

	// Two specs at weight 3 plus max depth 2 at weight 1.
	if report.RiskScore != 8 {
		t.Errorf("RiskScore = %v, want 8", report.RiskScore)
	}
	if report.RiskLevel != RiskMedium {
		t.Errorf("RiskLevel = %s, want medium", report.RiskLevel)
	}
}

func TestClassifyRisk(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{0, RiskLow},
		{4.9, RiskLow},
		{5, RiskMedium},
		{14.9, RiskMedium},
		{15, RiskHigh},
		{40, RiskHigh},
	}
	for _, tt := range tests {
		if got := ClassifyRisk(tt.score); got != tt.want {
			t.Errorf("ClassifyRisk(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}
