package daemonrun

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"skylink/internal/testsupport"
)

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skylink.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pid file: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid %q", got)
	}
	if err := writePIDFile(""); err != nil {
		t.Fatalf("empty path should be ignored: %v", err)
	}
}

func TestNewLoggerLevelOverride(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Logging.Level = "info"

	logger, err := newLogger(cfg, "debug")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected debug override to take effect")
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("override leaked into config: %q", cfg.Logging.Level)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.LogDir, "skylink.log")); err != nil {
		t.Fatalf("expected daemon log file: %v", err)
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error without config")
	}
}
