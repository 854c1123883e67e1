package main

import (
	"os"

	"tkb/internal/logging"
)

// Exit codes: 0 success, 1 fatal findings or gate failure, 2 usage error.
const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

func main() {
	logger := logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.InfoLevel,
	})

	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", map[string]interface{}{
			"error": err.Error(),
		})
		os.Exit(exitUsage)
	}
}
