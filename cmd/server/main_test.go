package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/skypro1111/audio-ingest-service/internal/config"
	"github.com/skypro1111/audio-ingest-service/internal/storage"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}

	if !strings.Contains(out.String(), serviceVersion) {
		t.Errorf("Expected version in output, got %q", out.String())
	}
}

func TestInitDBCommand(t *testing.T) {
	t.Setenv("DATABASE", "")
	t.Setenv("STORAGE_DRIVER", "")

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "metadata.db")
	cfgPath := filepath.Join(tmpDir, "config.yaml")

	content := "storage:\n  driver: sqlite\n  path: " + dbPath + "\nlogging:\n  level: error\n  format: text\n  output: stderr\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	rootCmd.SetArgs([]string{"init-db", "--config", cfgPath})
	defer rootCmd.SetArgs(nil)

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("init-db failed: %v", err)
	}

	// The table exists afterwards and accepts inserts
	ctx := context.Background()
	store, err := storage.OpenSQLite(ctx, dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer store.Close()

	if _, err := store.Insert(ctx, storage.Record{SessionID: "s", Timestamp: "2025-01-02T12:00:00Z", FileName: "a.wav"}); err != nil {
		t.Errorf("Insert after init-db failed: %v", err)
	}
}

func TestInitLoggerLevels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := initLogger(config.LoggingConfig{Level: tt.level, Format: "json", Output: "stderr"})
			ctx := context.Background()

			if !logger.Enabled(ctx, tt.want) {
				t.Errorf("Expected level %v enabled", tt.want)
			}
			if tt.want > slog.LevelDebug && logger.Enabled(ctx, tt.want-4) {
				t.Errorf("Expected level below %v disabled", tt.want)
			}
		})
	}
}
