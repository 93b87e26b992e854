package server

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.log")
	logger, err := NewLogger(path, true)
	if err != nil {
		t.Fatalf("NewLogger() error: %v", err)
	}
	defer logger.Sync()

	logger.Info("smoke test entry")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file not written: %v", err)
	}
}
