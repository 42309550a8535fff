package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCard(); err != nil {
		return err
	}
	if err := c.validateIntake(); err != nil {
		return err
	}
	if err := c.validatePrinter(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.WatchDir == "" {
		return errors.New("paths.watch_dir must be set")
	}
	if c.Paths.ProcessedDir == "" {
		return errors.New("paths.processed_dir must be set")
	}
	if c.Paths.QuarantineDir == "" {
		return errors.New("paths.quarantine_dir must be set")
	}
	if c.Paths.StagingDir == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.WatchDir == c.Paths.ProcessedDir {
		return errors.New("paths.processed_dir must differ from paths.watch_dir")
	}
	if c.Paths.WatchDir == c.Paths.QuarantineDir {
		return errors.New("paths.quarantine_dir must differ from paths.watch_dir")
	}
	return nil
}

func (c *Config) validateCard() error {
	if c.Card.WidthInches <= 0 || c.Card.HeightInches <= 0 {
		return errors.New("card.width_inches and card.height_inches must be positive")
	}
	if c.Card.DPI <= 0 {
		return errors.New("card.dpi must be positive")
	}
	switch c.Card.OutputFormat {
	case "jpeg", "png":
	default:
		return fmt.Errorf("card.output_format must be jpeg or png, got %q", c.Card.OutputFormat)
	}
	if c.Card.JPEGQuality < 1 || c.Card.JPEGQuality > 100 {
		return errors.New("card.jpeg_quality must be between 1 and 100")
	}
	if c.Card.MinSourceWidth < 1 || c.Card.MinSourceHeight < 1 {
		return errors.New("card.min_source_width and card.min_source_height must be positive")
	}
	if c.Card.AspectTolerance < 0 || c.Card.AspectTolerance >= 1 {
		return errors.New("card.aspect_tolerance must be in [0, 1)")
	}
	switch c.Card.FitMode {
	case "cover", "contain":
	default:
		return fmt.Errorf("card.fit_mode must be cover or contain, got %q", c.Card.FitMode)
	}
	return nil
}

func (c *Config) validateIntake() error {
	if len(c.Intake.SupportedExtensions) == 0 {
		return errors.New("intake.supported_extensions must list at least one extension")
	}
	if c.Intake.DebounceSeconds < 0 {
		return errors.New("intake.debounce_seconds must not be negative")
	}
	if c.Intake.RescanSeconds < 1 {
		return errors.New("intake.rescan_seconds must be at least 1")
	}
	return nil
}

func (c *Config) validatePrinter() error {
	if c.Printer.Name == "" {
		return errors.New("printer.name must be set to a CUPS queue name")
	}
	if c.Printer.PollSeconds < 1 {
		return errors.New("printer.poll_seconds must be at least 1")
	}
	if c.Printer.PollTimeoutSeconds < c.Printer.PollSeconds {
		return errors.New("printer.poll_timeout_seconds must be at least printer.poll_seconds")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.Capacity < 1 {
		return errors.New("queue.capacity must be at least 1")
	}
	if c.Queue.PollSeconds < 1 {
		return errors.New("queue.poll_seconds must be at least 1")
	}
	if c.Queue.ErrorRetrySeconds < 1 {
		return errors.New("queue.error_retry_seconds must be at least 1")
	}
	if c.Queue.HeartbeatSeconds < 1 {
		return errors.New("queue.heartbeat_seconds must be at least 1")
	}
	if c.Queue.HeartbeatTimeoutSeconds <= c.Queue.HeartbeatSeconds {
		return errors.New("queue.heartbeat_timeout_seconds must exceed queue.heartbeat_seconds")
	}
	if c.Queue.MaxAttempts < 1 {
		return errors.New("queue.max_attempts must be at least 1")
	}
	if c.Queue.BackoffInitialSeconds < 1 {
		return errors.New("queue.backoff_initial_seconds must be at least 1")
	}
	if c.Queue.BackoffMaxSeconds < c.Queue.BackoffInitialSeconds {
		return errors.New("queue.backoff_max_seconds must be at least queue.backoff_initial_seconds")
	}
	if c.Queue.NormalizeWorkers < 1 {
		return errors.New("queue.normalize_workers must be at least 1")
	}
	if c.Queue.NormalizeTimeoutSeconds < 1 {
		return errors.New("queue.normalize_timeout_seconds must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", c.Logging.Level)
	}
	if c.Logging.RetentionDays < 1 {
		return errors.New("logging.retention_days must be at least 1")
	}
	return nil
}
