package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete tkb configuration
type Config struct {
	Version  int    `json:"version" mapstructure:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot"`

	Identity  IdentityConfig  `json:"identity" mapstructure:"identity"`
	Coverage  CoverageConfig  `json:"coverage" mapstructure:"coverage"`
	Impact    ImpactConfig    `json:"impact" mapstructure:"impact"`
	Knowledge KnowledgeConfig `json:"knowledge" mapstructure:"knowledge"`
	Logging   LoggingConfig   `json:"logging" mapstructure:"logging"`
}

// IdentityConfig controls specification id recognition
type IdentityConfig struct {
	// IdPattern is the anchored regexp a specification id must match,
	// e.g. FEAT-001 style ids
	IdPattern string `json:"idPattern" mapstructure:"idPattern"`
}

// CoverageConfig controls the coverage gate
type CoverageConfig struct {
	// MinCoverage is the default aggregate coverage target in [0,1]
	MinCoverage float64 `json:"minCoverage" mapstructure:"minCoverage"`
	// GateDone requires verifiedCoverage == 1.0 for Done specifications
	GateDone bool `json:"gateDone" mapstructure:"gateDone"`
}

// ImpactConfig controls impact traversal limits and risk weighting
type ImpactConfig struct {
	// MaxDepth bounds the BFS; 0 means unbounded (the timeout still applies)
	MaxDepth  int `json:"maxDepth" mapstructure:"maxDepth"`
	TimeoutMs int `json:"timeoutMs" mapstructure:"timeoutMs"`
	// SpecWeight and DepthWeight feed the risk score: tunables, not a contract
	SpecWeight  float64 `json:"specWeight" mapstructure:"specWeight"`
	DepthWeight float64 `json:"depthWeight" mapstructure:"depthWeight"`
}

// KnowledgeConfig controls staleness and anti-pattern heuristics
type KnowledgeConfig struct {
	StalenessDays    int     `json:"stalenessDays" mapstructure:"stalenessDays"`
	LowValueAttempts int     `json:"lowValueAttempts" mapstructure:"lowValueAttempts"`
	LowValueRate     float64 `json:"lowValueRate" mapstructure:"lowValueRate"`
	VerbosityWordCap int     `json:"verbosityWordCap" mapstructure:"verbosityWordCap"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		RepoRoot: ".",
		Identity: IdentityConfig{
			IdPattern: `^[A-Z][A-Z0-9]*-\d{3,}$`,
		},
		Coverage: CoverageConfig{
			MinCoverage: 0.9,
			GateDone:    true,
		},
		Impact: ImpactConfig{
			MaxDepth:    0,
			TimeoutMs:   10000,
			SpecWeight:  3,
			DepthWeight: 1,
		},
		Knowledge: KnowledgeConfig{
			StalenessDays:    90,
			LowValueAttempts: 5,
			LowValueRate:     0.5,
			VerbosityWordCap: 400,
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from .tkb/config.json.
// A missing config file yields the defaults, not an error.
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("repoRoot", ".")

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, ".tkb"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to .tkb/config.json
func (c *Config) Save(repoRoot string) error {
	dir := filepath.Join(repoRoot, ".tkb")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(dir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Version != 1 {
		return &ConfigError{Field: "version", Message: "unsupported config version"}
	}
	if c.Coverage.MinCoverage < 0 || c.Coverage.MinCoverage > 1 {
		return &ConfigError{Field: "coverage.minCoverage", Message: "must be in [0,1]"}
	}
	if c.Knowledge.LowValueRate < 0 || c.Knowledge.LowValueRate > 1 {
		return &ConfigError{Field: "knowledge.lowValueRate", Message: "must be in [0,1]"}
	}
	if c.Impact.TimeoutMs <= 0 {
		return &ConfigError{Field: "impact.timeoutMs", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
