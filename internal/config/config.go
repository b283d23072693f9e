// Package config loads viewer settings from a TOML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	// EnvConfigPath overrides the location of the configuration file.
	EnvConfigPath = "FLUORINE_CONFIG"

	// DefaultLogLevel controls verbosity for viewer logs.
	DefaultLogLevel = "info"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 20
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 5
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true

	// DefaultDedupeWindow suppresses re-opening the same file shortly after a successful load.
	DefaultDedupeWindow = 5 * time.Second
	// DefaultPlainExtension names files that are never tried as compressed containers.
	DefaultPlainExtension = ".json"
	// DefaultReplayExtension is the extension of compressed engine replays.
	DefaultReplayExtension = ".hlt"
	// DefaultMaxDecompressedMB bounds the decompressed size of a single replay.
	DefaultMaxDecompressedMB = 1024

	// DefaultAutoplayInterval is the period between autoplay steps.
	DefaultAutoplayInterval = 50 * time.Millisecond
	// DefaultPollInterval is the monitor's rescan period when fsnotify is disabled.
	DefaultPollInterval = 2 * time.Second
	// DefaultExportIndent is the indentation used for exported JSON.
	DefaultExportIndent = "\t"

	// MaxGridAesthetic is the highest supported grid shading mode.
	MaxGridAesthetic = 3
)

// Config captures all runtime tunables for the viewer.
type Config struct {
	Logging  LoggingConfig  `toml:"logging"`
	Load     LoadConfig     `toml:"load"`
	Display  DisplayConfig  `toml:"display"`
	Autoplay AutoplayConfig `toml:"autoplay"`
	Monitor  MonitorConfig  `toml:"monitor"`
	Export   ExportConfig   `toml:"export"`
}

// LoggingConfig captures structured logging configuration options. An empty
// Path logs to stderr only.
type LoggingConfig struct {
	Level      string `toml:"level"`
	Path       string `toml:"path"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// LoadConfig controls how replay files are opened.
type LoadConfig struct {
	DedupeWindow      string `toml:"dedupe_window"`    // e.g. "5s"
	PlainExtension    string `toml:"plain_extension"`  // never decompressed
	ReplayExtension   string `toml:"replay_extension"` // compressed engine output
	MaxDecompressedMB int    `toml:"max_decompressed_mb"`
}

// DisplayConfig holds the display flags the core reads but never writes.
type DisplayConfig struct {
	TurnsStartAtOne   bool `toml:"turns_start_at_one"`
	GridAesthetic     int  `toml:"grid_aesthetic"`
	TrianglesShowNext bool `toml:"triangles_show_next"`
	IntegerBoxSizes   bool `toml:"integer_box_sizes"`
}

// AutoplayConfig controls the autoplay timer.
type AutoplayConfig struct {
	Interval string `toml:"interval"`
}

// MonitorConfig lists directories watched for new replays.
type MonitorConfig struct {
	Dirs         []string `toml:"dirs"`
	UseFsnotify  bool     `toml:"use_fsnotify"`
	PollInterval string   `toml:"poll_interval"`
}

// ExportConfig controls JSON exports.
type ExportConfig struct {
	Indent string `toml:"indent"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:      DefaultLogLevel,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
		Load: LoadConfig{
			DedupeWindow:      DefaultDedupeWindow.String(),
			PlainExtension:    DefaultPlainExtension,
			ReplayExtension:   DefaultReplayExtension,
			MaxDecompressedMB: DefaultMaxDecompressedMB,
		},
		Autoplay: AutoplayConfig{Interval: DefaultAutoplayInterval.String()},
		Monitor: MonitorConfig{
			UseFsnotify:  true,
			PollInterval: DefaultPollInterval.String(),
		},
		Export: ExportConfig{Indent: DefaultExportIndent},
	}
}

// Path resolves the configuration file location.
func Path() (string, error) {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, "fluorine", "config.toml"), nil
}

// Load reads the configuration file at Path, applies environment overrides
// and validates the result. A missing file yields the defaults.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile is Load with an explicit file path.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	//1.- Overlay file values on top of the defaults when the file exists.
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file: %w", err)
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	//2.- Environment variables win over the file.
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as TOML, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var problems []string

	c.Logging.Level = getString("FLUORINE_LOG_LEVEL", c.Logging.Level)
	c.Logging.Path = getString("FLUORINE_LOG_PATH", c.Logging.Path)

	if raw := strings.TrimSpace(os.Getenv("FLUORINE_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("FLUORINE_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			c.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLUORINE_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("FLUORINE_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			c.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLUORINE_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("FLUORINE_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			c.Logging.Compress = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLUORINE_DEDUPE_WINDOW")); raw != "" {
		if _, err := time.ParseDuration(raw); err != nil {
			problems = append(problems, fmt.Sprintf("FLUORINE_DEDUPE_WINDOW must be a duration, got %q", raw))
		} else {
			c.Load.DedupeWindow = raw
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLUORINE_MAX_DECOMPRESSED_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("FLUORINE_MAX_DECOMPRESSED_MB must be a non-negative integer, got %q", raw))
		} else {
			c.Load.MaxDecompressedMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLUORINE_AUTOPLAY_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("FLUORINE_AUTOPLAY_INTERVAL must be a positive duration, got %q", raw))
		} else {
			c.Autoplay.Interval = raw
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLUORINE_TURNS_START_AT_ONE")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("FLUORINE_TURNS_START_AT_ONE must be a boolean value, got %q", raw))
		} else {
			c.Display.TurnsStartAtOne = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLUORINE_GRID_AESTHETIC")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("FLUORINE_GRID_AESTHETIC must be an integer, got %q", raw))
		} else {
			c.Display.GridAesthetic = value
		}
	}

	if dirs := parseList(os.Getenv("FLUORINE_WATCH_DIRS")); dirs != nil {
		c.Monitor.Dirs = dirs
	}

	if raw := strings.TrimSpace(os.Getenv("FLUORINE_USE_FSNOTIFY")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("FLUORINE_USE_FSNOTIFY must be a boolean value, got %q", raw))
		} else {
			c.Monitor.UseFsnotify = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("FLUORINE_POLL_INTERVAL")); raw != "" {
		c.Monitor.PollInterval = raw
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// Validate checks durations, ranges and enumerations, reporting every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if window, err := time.ParseDuration(c.Load.DedupeWindow); err != nil || window < 0 {
		problems = append(problems, fmt.Sprintf("load.dedupe_window must be a non-negative duration, got %q", c.Load.DedupeWindow))
	}
	if interval, err := time.ParseDuration(c.Autoplay.Interval); err != nil || interval <= 0 {
		problems = append(problems, fmt.Sprintf("autoplay.interval must be a positive duration, got %q", c.Autoplay.Interval))
	}
	if interval, err := time.ParseDuration(c.Monitor.PollInterval); err != nil || interval <= 0 {
		problems = append(problems, fmt.Sprintf("monitor.poll_interval must be a positive duration, got %q", c.Monitor.PollInterval))
	}
	if c.Display.GridAesthetic < 0 || c.Display.GridAesthetic > MaxGridAesthetic {
		problems = append(problems, fmt.Sprintf("display.grid_aesthetic must be between 0 and %d, got %d", MaxGridAesthetic, c.Display.GridAesthetic))
	}
	if c.Load.MaxDecompressedMB < 0 {
		problems = append(problems, fmt.Sprintf("load.max_decompressed_mb cannot be negative: %d", c.Load.MaxDecompressedMB))
	}
	if c.Logging.MaxSizeMB <= 0 {
		problems = append(problems, fmt.Sprintf("logging.max_size_mb must be positive, got %d", c.Logging.MaxSizeMB))
	}
	if c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		problems = append(problems, "logging.max_backups and logging.max_age_days must be non-negative")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// DedupeWindow returns the parsed load.dedupe_window.
func (c *Config) DedupeWindow() time.Duration {
	return parseDuration(c.Load.DedupeWindow, DefaultDedupeWindow)
}

// AutoplayInterval returns the parsed autoplay.interval.
func (c *Config) AutoplayInterval() time.Duration {
	return parseDuration(c.Autoplay.Interval, DefaultAutoplayInterval)
}

// PollInterval returns the parsed monitor.poll_interval.
func (c *Config) PollInterval() time.Duration {
	return parseDuration(c.Monitor.PollInterval, DefaultPollInterval)
}

// MaxDecompressedBytes converts load.max_decompressed_mb to bytes; zero means unbounded.
func (c *Config) MaxDecompressedBytes() int64 {
	return int64(c.Load.MaxDecompressedMB) * 1024 * 1024
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return value
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, string(os.PathListSeparator))
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
