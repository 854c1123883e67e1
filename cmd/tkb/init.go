package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tkb/internal/config"
	"tkb/internal/logging"
	"tkb/internal/manifest"
)

var (
	initForce bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize TKB in the current repository",
	Long: `Creates a .tkb/ directory with default configuration and a starter
tkb.toml manifest at the repository root.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false,
		"Force reinitialization (removes existing .tkb directory)")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	logger := logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.InfoLevel,
	})

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	tkbDir := filepath.Join(cwd, ".tkb")
	if _, statErr := os.Stat(tkbDir); statErr == nil {
		if !initForce {
			// Idempotent behavior: already initialized is success (CI-friendly)
			fmt.Println("TKB already initialized.")
			fmt.Printf("Configuration at: %s\n", filepath.Join(tkbDir, "config.json"))
			fmt.Println("\nRun 'tkb init --force' to reinitialize.")
			return nil
		}
		if removeErr := os.RemoveAll(tkbDir); removeErr != nil {
			return fmt.Errorf("failed to remove existing .tkb directory: %w", removeErr)
		}
		logger.Info("Removed existing .tkb directory", nil)
	}

	if mkdirErr := os.MkdirAll(tkbDir, 0755); mkdirErr != nil {
		return fmt.Errorf("failed to create .tkb directory: %w", mkdirErr)
	}

	cfg := config.DefaultConfig()
	cfg.RepoRoot = "."
	if err := cfg.Save(cwd); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	// Lay down a manifest only where none exists; an existing one is the
	// user's, not ours to overwrite.
	manifestPath := filepath.Join(cwd, manifest.ManifestFile)
	if _, statErr := os.Stat(manifestPath); os.IsNotExist(statErr) {
		if err := manifest.Default().Save(cwd); err != nil {
			return fmt.Errorf("failed to write %s: %w", manifest.ManifestFile, err)
		}
	}

	logger.Info("TKB initialized successfully", map[string]interface{}{
		"config_path": filepath.Join(tkbDir, "config.json"),
	})

	fmt.Println("TKB initialized successfully!")
	fmt.Printf("Configuration written to: %s\n", filepath.Join(tkbDir, "config.json"))
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Declare scan roots in tkb.toml")
	fmt.Println("  2. Run 'tkb scan' to extract references")
	fmt.Println("  3. Run 'tkb validate' to check the graph")
	return nil
}
