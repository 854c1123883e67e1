package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Knowledge.StalenessDays != 90 {
		t.Errorf("expected default staleness 90, got %d", cfg.Knowledge.StalenessDays)
	}
	if cfg.Impact.TimeoutMs != 10000 {
		t.Errorf("expected default timeout 10000, got %d", cfg.Impact.TimeoutMs)
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Knowledge.StalenessDays = 30
	cfg.Impact.MaxDepth = 4

	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".tkb", "config.json")); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	loaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.Knowledge.StalenessDays != 30 {
		t.Errorf("expected staleness 30, got %d", loaded.Knowledge.StalenessDays)
	}
	if loaded.Impact.MaxDepth != 4 {
		t.Errorf("expected maxDepth 4, got %d", loaded.Impact.MaxDepth)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults valid", func(c *Config) {}, false},
		{"bad version", func(c *Config) { c.Version = 99 }, true},
		{"coverage above one", func(c *Config) { c.Coverage.MinCoverage = 1.5 }, true},
		{"zero timeout", func(c *Config) { c.Impact.TimeoutMs = 0 }, true},
		{"bad low value rate", func(c *Config) { c.Knowledge.LowValueRate = -0.1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
