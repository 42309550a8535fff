package printer

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"cardpress/internal/config"
	"cardpress/internal/logging"
	"cardpress/internal/services"
)

type commandRunner func(ctx context.Context, name string, args ...string) (string, error)

func defaultCommandRunner(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

// requestIDPattern matches lp's "request id is Printer-123 (1 file(s))".
var requestIDPattern = regexp.MustCompile(`request id is (\S+)`)

// CUPS submits jobs through lp and tracks them through lpstat.
type CUPS struct {
	destination string
	lpBin       string
	lpstatBin   string
	options     []string
	logger      *slog.Logger
	run         commandRunner
}

// NewCUPS constructs a backend for the configured destination.
func NewCUPS(cfg *config.Config, logger *slog.Logger) *CUPS {
	options := []string{
		fmt.Sprintf("media=%s", cfg.Printer.PageSize),
		fmt.Sprintf("Resolution=%ddpi", cfg.Card.DPI),
		"ColorModel=RGB",
		"print-scaling=none",
	}
	if cfg.Printer.MediaType != "" {
		options = append(options, fmt.Sprintf("MediaType=%s", cfg.Printer.MediaType))
	}
	return &CUPS{
		destination: cfg.Printer.Name,
		lpBin:       cfg.LPBinary(),
		lpstatBin:   cfg.LPStatBinary(),
		options:     options,
		logger:      logging.NewComponentLogger(logger, "printer"),
		run:         defaultCommandRunner,
	}
}

// WithCommandRunner allows injecting a custom command runner for tests.
func (c *CUPS) WithCommandRunner(r commandRunner) {
	if c != nil && r != nil {
		c.run = r
	}
}

// Available checks that the destination exists and is accepting jobs.
func (c *CUPS) Available(ctx context.Context) error {
	out, err := c.run(ctx, c.lpstatBin, "-p", c.destination)
	if err != nil {
		return services.Wrap(services.ErrPrinterUnavailable, "print", "lpstat",
			fmt.Sprintf("printer %q not reachable: %s", c.destination, strings.TrimSpace(out)), err)
	}
	lowered := strings.ToLower(out)
	if strings.Contains(lowered, "disabled") || strings.Contains(lowered, "paused") {
		return services.Wrap(services.ErrPrinterUnavailable, "print", "lpstat",
			fmt.Sprintf("printer %q is disabled", c.destination), nil)
	}

	out, err = c.run(ctx, c.lpstatBin, "-a", c.destination)
	if err != nil {
		return services.Wrap(services.ErrPrinterUnavailable, "print", "lpstat",
			fmt.Sprintf("printer %q acceptance unknown: %s", c.destination, strings.TrimSpace(out)), err)
	}
	if strings.Contains(strings.ToLower(out), "not accepting") {
		return services.Wrap(services.ErrPrinterUnavailable, "print", "lpstat",
			fmt.Sprintf("printer %q is not accepting jobs", c.destination), nil)
	}
	return nil
}

// Submit hands the file to lp and returns the CUPS job identifier.
func (c *CUPS) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	args := []string{"-d", c.destination}
	if req.Title != "" {
		args = append(args, "-t", req.Title)
	}
	for _, opt := range c.options {
		args = append(args, "-o", opt)
	}
	args = append(args, "--", req.FilePath)

	out, err := c.run(ctx, c.lpBin, args...)
	if err != nil {
		return "", services.Wrap(services.ErrExternalTool, "print", "lp",
			fmt.Sprintf("submission failed: %s", strings.TrimSpace(out)), err)
	}

	match := requestIDPattern.FindStringSubmatch(out)
	if match == nil {
		return "", services.Wrap(services.ErrExternalTool, "print", "lp",
			fmt.Sprintf("could not parse job id from %q", strings.TrimSpace(out)), nil)
	}
	jobID := match[1]
	c.logger.Info("job submitted",
		logging.String("printer", c.destination),
		logging.String("print_job_id", jobID),
		logging.String(logging.FieldSourcePath, req.FilePath))
	return jobID, nil
}

// Poll reports the job's spooler state. A job present in the active queue is
// printing; one present in the completed listing is done; a job in neither
// was canceled or aborted.
func (c *CUPS) Poll(ctx context.Context, jobID string) (JobState, error) {
	active, err := c.run(ctx, c.lpstatBin, "-W", "not-completed", "-o", c.destination)
	if err != nil {
		return StateUnknown, services.Wrap(services.ErrExternalTool, "print", "lpstat",
			fmt.Sprintf("poll failed: %s", strings.TrimSpace(active)), err)
	}
	if containsJob(active, jobID) {
		return StatePrinting, nil
	}

	completed, err := c.run(ctx, c.lpstatBin, "-W", "completed", "-o", c.destination)
	if err != nil {
		return StateUnknown, services.Wrap(services.ErrExternalTool, "print", "lpstat",
			fmt.Sprintf("poll failed: %s", strings.TrimSpace(completed)), err)
	}
	if containsJob(completed, jobID) {
		return StateCompleted, nil
	}
	return StateFailed, nil
}

// Cancel withdraws the job from the spooler.
func (c *CUPS) Cancel(ctx context.Context, jobID string) error {
	out, err := c.run(ctx, "cancel", jobID)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "print", "cancel",
			fmt.Sprintf("cancel failed: %s", strings.TrimSpace(out)), err)
	}
	return nil
}

func containsJob(listing, jobID string) bool {
	for _, line := range strings.Split(listing, "\n") {
		fields := strings.Fields(line)
		if len(fields) > 0 && fields[0] == jobID {
			return true
		}
	}
	return false
}
