package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directory layout the pipeline operates on.
type Paths struct {
	WatchDir      string `toml:"watch_dir"`
	ProcessedDir  string `toml:"processed_dir"`
	QuarantineDir string `toml:"quarantine_dir"`
	StagingDir    string `toml:"staging_dir"`
	LogDir        string `toml:"log_dir"`
}

// Card contains the physical print target and normalization settings.
type Card struct {
	WidthInches      float64 `toml:"width_inches"`
	HeightInches     float64 `toml:"height_inches"`
	DPI              int     `toml:"dpi"`
	OutputFormat     string  `toml:"output_format"`
	JPEGQuality      int     `toml:"jpeg_quality"`
	MinSourceWidth   int     `toml:"min_source_width"`
	MinSourceHeight  int     `toml:"min_source_height"`
	AspectTolerance  float64 `toml:"aspect_tolerance"`
	FitMode          string  `toml:"fit_mode"`
	OptimizeForPrint bool    `toml:"optimize_for_print"`
}

// Intake contains debounce and file-acceptance settings for the watch folder.
type Intake struct {
	SupportedExtensions []string `toml:"supported_extensions"`
	DebounceSeconds     int      `toml:"debounce_seconds"`
	RescanSeconds       int      `toml:"rescan_seconds"`
	ProcessExisting     bool     `toml:"process_existing"`
}

// Printer contains CUPS destination and job polling settings.
type Printer struct {
	Name               string `toml:"name"`
	MediaType          string `toml:"media_type"`
	PageSize           string `toml:"page_size"`
	PollSeconds        int    `toml:"poll_seconds"`
	PollTimeoutSeconds int    `toml:"poll_timeout_seconds"`
}

// Queue contains capacity, retry, and worker settings for the job queue.
type Queue struct {
	Capacity                int  `toml:"capacity"`
	PollSeconds             int  `toml:"poll_seconds"`
	ErrorRetrySeconds       int  `toml:"error_retry_seconds"`
	HeartbeatSeconds        int  `toml:"heartbeat_seconds"`
	HeartbeatTimeoutSeconds int  `toml:"heartbeat_timeout_seconds"`
	MaxAttempts             int  `toml:"max_attempts"`
	BackoffInitialSeconds   int  `toml:"backoff_initial_seconds"`
	BackoffMaxSeconds       int  `toml:"backoff_max_seconds"`
	NormalizeWorkers        int  `toml:"normalize_workers"`
	NormalizeTimeoutSeconds int  `toml:"normalize_timeout_seconds"`
	AutoDelete              bool `toml:"auto_delete"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Quarantined    bool   `toml:"quarantined"`
	QueueDrained   bool   `toml:"queue_drained"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for cardpress.
//
// Configuration sections by subsystem:
//   - Paths: watch/processed/quarantine/staging/log directories
//   - Card: physical print target and normalization behavior
//   - Intake: watch-folder debounce and accepted file types
//   - Printer: CUPS destination and job polling
//   - Queue: capacity, retry budget, backoff, and worker counts
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Card          Card          `toml:"card"`
	Intake        Intake        `toml:"intake"`
	Printer       Printer       `toml:"printer"`
	Queue         Queue         `toml:"queue"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/cardpress/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was actually found.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cardpress.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon operates on.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.Paths.WatchDir,
		c.Paths.ProcessedDir,
		c.Paths.QuarantineDir,
		c.Paths.StagingDir,
		c.Paths.LogDir,
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LPBinary returns the CUPS submission executable name.
func (c *Config) LPBinary() string {
	return "lp"
}

// LPStatBinary returns the CUPS status executable name.
func (c *Config) LPStatBinary() string {
	return "lpstat"
}

// TargetPixelWidth returns the horizontal print resolution in pixels.
func (c *Config) TargetPixelWidth() int {
	return int(c.Card.WidthInches*float64(c.Card.DPI) + 0.5)
}

// TargetPixelHeight returns the vertical print resolution in pixels.
func (c *Config) TargetPixelHeight() int {
	return int(c.Card.HeightInches*float64(c.Card.DPI) + 0.5)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
