package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionFlagPrintsBuildInfo(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"--version"})
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("--version failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"tkb version", "Commit:", "Built:"} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %q:\n%s", want, out)
		}
	}
}
