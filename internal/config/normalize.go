package config

import "strings"

// normalize cleans user-supplied values and expands path fields before
// validation.
func (c *Config) normalize() error {
	for _, field := range []*string{
		&c.Paths.WatchDir,
		&c.Paths.ProcessedDir,
		&c.Paths.QuarantineDir,
		&c.Paths.StagingDir,
		&c.Paths.LogDir,
	} {
		expanded, err := expandPath(strings.TrimSpace(*field))
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Card.OutputFormat = strings.ToLower(strings.TrimSpace(c.Card.OutputFormat))
	if c.Card.OutputFormat == "jpg" {
		c.Card.OutputFormat = "jpeg"
	}
	c.Card.FitMode = strings.ToLower(strings.TrimSpace(c.Card.FitMode))

	c.Intake.SupportedExtensions = normalizeExtensions(c.Intake.SupportedExtensions)

	c.Printer.Name = strings.TrimSpace(c.Printer.Name)
	c.Printer.MediaType = strings.TrimSpace(c.Printer.MediaType)
	c.Printer.PageSize = strings.TrimSpace(c.Printer.PageSize)

	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)

	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	return nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, dup := seen[ext]; dup {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}
