package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755

	// EnvPrefix prefixes environment overrides, e.g. RESTBENCH_MAX_CONCURRENCY
	EnvPrefix = "RESTBENCH"
)

var (
	// ConfigDir is the global configuration directory (~/.restbench)
	ConfigDir string

	// ProjectsDir is the default project directory
	ProjectsDir string

	// FixturesDir is the only directory scripts may read and write
	FixturesDir string

	// DatabasePath is the SQLite database file for runs and history
	DatabasePath string

	// ConfigFile is the settings file
	ConfigFile string

	// SessionsDir holds captured variables per project
	SessionsDir string

	// KeybindsFile holds user key overrides for the terminal views
	KeybindsFile string
)

// Initialize sets up the configuration directories.
// It creates ~/.restbench/ if it doesn't exist.
func Initialize() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	return InitializeAt(filepath.Join(homeDir, ".restbench"))
}

// InitializeAt is Initialize rooted at dir
func InitializeAt(dir string) error {
	ConfigDir = dir
	ProjectsDir = filepath.Join(ConfigDir, "projects")
	FixturesDir = filepath.Join(ConfigDir, "fixtures")
	DatabasePath = filepath.Join(ConfigDir, "restbench.db")
	ConfigFile = filepath.Join(ConfigDir, "config.yaml")
	SessionsDir = filepath.Join(ConfigDir, "sessions")
	KeybindsFile = filepath.Join(ConfigDir, "keybinds.json")

	for _, d := range []string{ConfigDir, ProjectsDir, FixturesDir, SessionsDir} {
		if err := os.MkdirAll(d, DirPermissions); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", d, err)
		}
	}
	return nil
}

// Settings holds every tunable value
type Settings struct {
	MaxConcurrency     int
	ReservoirCapacity  int
	RequestTimeout     time.Duration
	ScriptTimeout      time.Duration
	FixturesDir        string
	DatabasePath       string
	LogLevel           string
	MetricsAddr        string
	UIRefresh          time.Duration
	InsecureSkipVerify bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_concurrency", 10000)
	v.SetDefault("reservoir_capacity", 100000)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("script_timeout", 5*time.Second)
	v.SetDefault("fixtures_dir", FixturesDir)
	v.SetDefault("database_path", DatabasePath)
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("ui_refresh", 200*time.Millisecond)
	v.SetDefault("insecure_skip_verify", false)
}

// Load reads settings from configPath (ConfigFile when empty) with defaults
// and RESTBENCH_* environment overrides. A missing file is not an error.
func Load(configPath string) (*Settings, error) {
	if configPath == "" {
		configPath = ConfigFile
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	s := &Settings{
		MaxConcurrency:     v.GetInt("max_concurrency"),
		ReservoirCapacity:  v.GetInt("reservoir_capacity"),
		RequestTimeout:     v.GetDuration("request_timeout"),
		ScriptTimeout:      v.GetDuration("script_timeout"),
		FixturesDir:        expandHome(v.GetString("fixtures_dir")),
		DatabasePath:       expandHome(v.GetString("database_path")),
		LogLevel:           v.GetString("log_level"),
		MetricsAddr:        v.GetString("metrics_addr"),
		UIRefresh:          v.GetDuration("ui_refresh"),
		InsecureSkipVerify: v.GetBool("insecure_skip_verify"),
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate rejects settings the engine cannot run with
func (s *Settings) Validate() error {
	if s.MaxConcurrency <= 0 {
		return fmt.Errorf("max_concurrency must be greater than 0")
	}
	if s.ReservoirCapacity <= 0 {
		return fmt.Errorf("reservoir_capacity must be greater than 0")
	}
	if s.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive")
	}
	if s.ScriptTimeout <= 0 {
		return fmt.Errorf("script_timeout must be positive")
	}
	if s.UIRefresh <= 0 {
		return fmt.Errorf("ui_refresh must be positive")
	}
	if _, err := ParseLogLevel(s.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLogLevel converts debug/info/warn/error to a slog level
func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", level)
	}
	return l, nil
}

// NewLogger builds the text logger used across the application
func (s *Settings) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLogLevel(s.LogLevel)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// expandHome expands a leading ~/ to the home directory
func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(homeDir, p[2:])
}
