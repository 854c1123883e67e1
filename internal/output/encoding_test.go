package output

import (
	"bytes"
	"testing"
	"time"
)

type sampleReport struct {
	Name     string             `json:"name"`
	Score    float64            `json:"score"`
	Empty    string             `json:"empty,omitempty"`
	Items    []string           `json:"items"`
	Counts   map[string]int     `json:"counts"`
	Optional *sampleReport      `json:"optional,omitempty"`
	Hidden   string             `json:"-"`
	When     time.Time          `json:"when"`
	Nested   map[string]float64 `json:"nested"`
}

func TestDeterministicEncodeIdempotent(t *testing.T) {
	report := sampleReport{
		Name:   "validate",
		Score:  0.3333333333,
		Items:  []string{"b", "a"},
		Counts: map[string]int{"zeta": 1, "alpha": 2, "mid": 3},
		Hidden: "secret",
		When:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Nested: map[string]float64{"x": 1.0000001, "y": 2},
	}

	first, err := DeterministicEncode(report)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	second, err := DeterministicEncode(report)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("encoding not byte-identical:\n%s\n%s", first, second)
	}
	if bytes.Contains(first, []byte("secret")) {
		t.Error("json:\"-\" field leaked into output")
	}
	if bytes.Contains(first, []byte("0.3333333333")) {
		t.Error("float not rounded to 6 places")
	}
}

func TestDeterministicEncodeOmitsEmpty(t *testing.T) {
	report := sampleReport{Name: "x"}
	data, err := DeterministicEncode(report)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if bytes.Contains(data, []byte("empty")) {
		t.Errorf("omitempty field present: %s", data)
	}
	if bytes.Contains(data, []byte("items")) {
		t.Errorf("nil slice present: %s", data)
	}
}

func TestRoundFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{0.75, 0.75},
		{1.0 / 3.0, 0.333333},
		{0.6000000000000001, 0.6},
	}
	for _, tt := range tests {
		if got := RoundFloat(tt.in); got != tt.want {
			t.Errorf("RoundFloat(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFormatFloat(t *testing.T) {
	if got := FormatFloat(0.750000); got != "0.75" {
		t.Errorf("FormatFloat(0.75) = %q", got)
	}
	if got := FormatFloat(1); got != "1" {
		t.Errorf("FormatFloat(1) = %q", got)
	}
	if got := FormatPercent(0.5); got != "50%" {
		t.Errorf("FormatPercent(0.5) = %q", got)
	}
}
