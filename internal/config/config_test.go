package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestInitializeAt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ".restbench")
	if err := InitializeAt(dir); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}
	for _, d := range []string{ConfigDir, ProjectsDir, FixturesDir, SessionsDir} {
		if info, err := os.Stat(d); err != nil || !info.IsDir() {
			t.Errorf("Expected directory %s, got: %v", d, err)
		}
	}
	if DatabasePath != filepath.Join(dir, "restbench.db") {
		t.Errorf("Unexpected database path: %s", DatabasePath)
	}
}

func TestLoad_Defaults(t *testing.T) {
	if err := InitializeAt(t.TempDir()); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}
	s, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for a missing file, got: %v", err)
	}

	if s.MaxConcurrency != 10000 || s.ReservoirCapacity != 100000 {
		t.Errorf("Unexpected limits: %+v", s)
	}
	if s.RequestTimeout != 30*time.Second || s.ScriptTimeout != 5*time.Second || s.UIRefresh != 200*time.Millisecond {
		t.Errorf("Unexpected durations: %+v", s)
	}
	if s.FixturesDir != FixturesDir || s.DatabasePath != DatabasePath || s.LogLevel != "info" {
		t.Errorf("Unexpected paths or level: %+v", s)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	if err := InitializeAt(t.TempDir()); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "max_concurrency: 50\nrequest_timeout: 2s\nlog_level: debug\nmetrics_addr: \":9100\"\n"
	if err := os.WriteFile(path, []byte(content), FilePermissions); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("RESTBENCH_RESERVOIR_CAPACITY", "500")
	t.Setenv("RESTBENCH_MAX_CONCURRENCY", "75")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if s.MaxConcurrency != 75 {
		t.Errorf("Expected env to override file, got: %d", s.MaxConcurrency)
	}
	if s.ReservoirCapacity != 500 || s.RequestTimeout != 2*time.Second || s.LogLevel != "debug" || s.MetricsAddr != ":9100" {
		t.Errorf("Unexpected settings: %+v", s)
	}
}

func TestLoad_Invalid(t *testing.T) {
	if err := InitializeAt(t.TempDir()); err != nil {
		t.Fatalf("Failed to initialize: %v", err)
	}
	tests := []struct {
		name    string
		content string
	}{
		{"zero concurrency", "max_concurrency: 0\n"},
		{"bad level", "log_level: loud\n"},
		{"broken yaml", "max_concurrency: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.content), FilePermissions); err != nil {
				t.Fatalf("Failed to write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "INFO"} {
		if _, err := ParseLogLevel(level); err != nil {
			t.Errorf("Expected %q to parse, got: %v", level, err)
		}
	}
}
