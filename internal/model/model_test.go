package model

import (
	"testing"
	"time"
)

func TestSuccessRate(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		attempts  int
		want      float64
	}{
		{"zero attempts", 0, 0, 0},
		{"three of four", 3, 4, 0.75},
		{"three of five", 3, 5, 0.6},
		{"all successes", 5, 5, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Pattern{Successes: tt.successes, Attempts: tt.attempts, LastUsed: time.Now()}
			if got := p.SuccessRate(); got != tt.want {
				t.Errorf("SuccessRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNodeIDs(t *testing.T) {
	if got := ACNodeID("FEAT-001", "AC-2"); got != "FEAT-001/AC-2" {
		t.Errorf("ACNodeID = %q", got)
	}
	if got := TestNodeID("tests/auth_test.py", "test_login"); got != "test:tests/auth_test.py#test_login" {
		t.Errorf("TestNodeID = %q", got)
	}
	if got := PatternNodeID("go", "  Table  Driven Tests "); got != "pattern:go/table driven tests" {
		t.Errorf("PatternNodeID = %q", got)
	}

	spec, ac, ok := SplitACNodeID("FEAT-001/AC-2")
	if !ok || spec != "FEAT-001" || ac != "AC-2" {
		t.Errorf("SplitACNodeID = %q %q %v", spec, ac, ok)
	}
	if _, _, ok := SplitACNodeID("FEAT-001"); ok {
		t.Error("expected ok=false for bare spec id")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		id   string
		want NodeKind
	}{
		{"FEAT-001", KindSpec},
		{"FEAT-001/AC-1", KindAC},
		{"test:a_test.go#TestX", KindTest},
		{"code:auth.py#login", KindCode},
		{"pattern:go/retries", KindPattern},
		{"failure:ci/flaky-docker", KindFailure},
	}
	for _, tt := range tests {
		if got := KindOf(tt.id); got != tt.want {
			t.Errorf("KindOf(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestFilePathOf(t *testing.T) {
	path, ok := FilePathOf("code:src/auth.py#login")
	if !ok || path != "src/auth.py" {
		t.Errorf("FilePathOf = %q %v", path, ok)
	}
	if _, ok := FilePathOf("FEAT-001"); ok {
		t.Error("expected ok=false for spec id")
	}
}

func TestContentUIDStableAndDistinct(t *testing.T) {
	a := ContentUID("go", "retries", "body")
	b := ContentUID("go", "retries", "body")
	if a != b {
		t.Error("same inputs should give same uid")
	}
	c := ContentUID("go", "retries", "different body")
	if a == c {
		t.Error("different content should give different uid")
	}
	// Separator must prevent boundary collisions.
	if ContentUID("ab", "c") == ContentUID("a", "bc") {
		t.Error("uid must not collide across field boundaries")
	}
}
