package printing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	"cardpress/internal/config"
	"cardpress/internal/fileutil"
	"cardpress/internal/logging"
	"cardpress/internal/notifications"
	"cardpress/internal/printer"
	"cardpress/internal/queue"
	"cardpress/internal/services"
	"cardpress/internal/stage"
)

// Printer drives spooler submission, completion polling, and terminal
// disposition for queued cards.
type Printer struct {
	store    *queue.Store
	cfg      *config.Config
	logger   *slog.Logger
	backend  printer.Backend
	notifier notifications.Service

	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewPrinter constructs the print stage handler using the CUPS backend.
func NewPrinter(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Printer {
	return NewPrinterWithDependencies(cfg, store, logger, printer.NewCUPS(cfg, logger), notifications.NewService(cfg))
}

// NewPrinterWithDependencies allows injecting collaborators (used in tests).
func NewPrinterWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, backend printer.Backend, notifier notifications.Service) *Printer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "printer"))
	}
	return &Printer{
		store:        store,
		cfg:          cfg,
		logger:       stageLogger,
		backend:      backend,
		notifier:     notifier,
		pollInterval: time.Duration(cfg.Printer.PollSeconds) * time.Second,
		pollTimeout:  time.Duration(cfg.Printer.PollTimeoutSeconds) * time.Second,
	}
}

func (p *Printer) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, p.logger)
	job.InitProgress("Printing", "Preparing print submission")
	if job.ArtifactPath == "" {
		return services.Wrap(services.ErrTransient, "print", "validate inputs",
			"no artifact present; job must be normalized before printing", nil)
	}
	if _, err := os.Stat(job.ArtifactPath); err != nil {
		return services.Wrap(services.ErrTransient, "print", "stat artifact",
			fmt.Sprintf("artifact missing, retry will renormalize: %s", job.ArtifactPath), err)
	}
	logger.Info("starting print preparation",
		logging.String("card_name", job.CardName),
		logging.String("artifact_path", job.ArtifactPath),
	)
	return nil
}

func (p *Printer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, p.logger)

	if err := p.backend.Available(ctx); err != nil {
		return err
	}

	// Last check before committing to the spooler: a source replaced after
	// the claim must never put its stale artifact on paper.
	current, err := p.store.GetByID(ctx, job.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "print", "recheck supersession", "", err)
	}
	if current != nil && current.Status == queue.StatusSuperseded {
		p.removeArtifact(job, logger)
		*job = *current
		logger.Info("job superseded before submission, print skipped",
			logging.String(logging.FieldSourcePath, job.SourcePath))
		return nil
	}

	printJobID, err := p.backend.Submit(ctx, printer.SubmitRequest{
		FilePath: job.ArtifactPath,
		Title:    job.CardName,
	})
	if err != nil {
		return services.Wrap(services.ErrPrintFailure, "print", "submit", "", err)
	}

	job.PrintJobID = printJobID
	job.Status = queue.StatusPrinting
	job.SetProgress("Printing", fmt.Sprintf("Spooled as job %s", printJobID), 40)
	if err := p.store.Update(ctx, job); err != nil {
		if errors.Is(err, queue.ErrTerminalState) {
			// Superseded in the window between the recheck and the persist.
			// The spooler already has the job, so pull it back.
			if cancelErr := p.backend.Cancel(ctx, printJobID); cancelErr != nil {
				logger.Warn("failed to cancel print job for superseded card",
					logging.String("print_job_id", printJobID), logging.Error(cancelErr))
			}
			p.removeArtifact(job, logger)
			return services.Wrap(services.ErrStaleSource, "print", "persist submission",
				"job superseded after submit, print canceled", err)
		}
		return services.Wrap(services.ErrTransient, "print", "persist submission", "", err)
	}

	if err := p.waitForCompletion(ctx, job); err != nil {
		return err
	}

	job.Status = queue.StatusCompleted
	now := time.Now().UTC()
	job.CompletedAt = &now
	job.SetProgress("Completed", "Card printed", 100)
	p.disposeSource(ctx, job, logger)
	p.removeArtifact(job, logger)

	logger.Info("print complete",
		logging.String("card_name", job.CardName),
		logging.String("print_job_id", printJobID),
		logging.String("archived_path", job.ArchivedPath),
	)
	if p.notifier != nil {
		if err := p.notifier.NotifyPrintCompleted(ctx, job.CardName); err != nil {
			logger.Warn("print completion notification failed", logging.Error(err))
		}
	}
	return nil
}

// HealthCheck reports whether the spooler currently accepts jobs.
func (p *Printer) HealthCheck(ctx context.Context) stage.Health {
	if err := p.backend.Available(ctx); err != nil {
		return stage.Unhealthy("printer", err.Error())
	}
	return stage.Healthy("printer")
}

// waitForCompletion polls the spooler until the job finishes, fails, or the
// poll budget runs out. A job that outlives the budget is canceled so the
// spooler does not print it long after the queue gave up on it.
func (p *Printer) waitForCompletion(ctx context.Context, job *queue.Job) error {
	deadline := time.Now().Add(p.pollTimeout)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		state, err := p.backend.Poll(ctx, job.PrintJobID)
		if err != nil {
			return services.Wrap(services.ErrPrintFailure, "print", "poll", "", err)
		}
		switch state {
		case printer.StateCompleted:
			return nil
		case printer.StateFailed:
			return services.Wrap(services.ErrPrintFailure, "print", "poll",
				fmt.Sprintf("job %s left the spooler without completing", job.PrintJobID), nil)
		}

		if time.Now().After(deadline) {
			if cancelErr := p.backend.Cancel(ctx, job.PrintJobID); cancelErr != nil {
				logging.WithContext(ctx, p.logger).Warn("cancel after poll timeout failed",
					logging.String("print_job_id", job.PrintJobID), logging.Error(cancelErr))
			}
			return services.Wrap(services.ErrPrintFailure, "print", "poll",
				fmt.Sprintf("job %s did not complete within %s", job.PrintJobID, p.pollTimeout), nil)
		}
	}
}

// disposeSource archives or deletes the original file once the card printed.
// Failures here flag the job for attention but never fail a printed card.
func (p *Printer) disposeSource(ctx context.Context, job *queue.Job, logger *slog.Logger) {
	if p.cfg.Queue.AutoDelete {
		if err := os.Remove(job.SourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.flagAttention(job, logger, fmt.Sprintf("could not delete printed source: %v", err))
		}
		return
	}

	dest := filepath.Join(p.cfg.Paths.ProcessedDir, filepath.Base(job.SourcePath))
	unique, err := fileutil.UniquePath(dest)
	if err != nil {
		p.flagAttention(job, logger, fmt.Sprintf("could not pick archive name: %v", err))
		return
	}
	if err := fileutil.MoveFile(job.SourcePath, unique); err != nil {
		if _, statErr := os.Stat(job.SourcePath); errors.Is(statErr, os.ErrNotExist) {
			logger.Warn("printed source vanished before archiving",
				logging.String(logging.FieldSourcePath, job.SourcePath))
			return
		}
		p.flagAttention(job, logger, fmt.Sprintf("could not archive printed source: %v", err))
		return
	}
	job.ArchivedPath = unique
}

func (p *Printer) removeArtifact(job *queue.Job, logger *slog.Logger) {
	if job.ArtifactPath == "" {
		return
	}
	if err := os.Remove(job.ArtifactPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to remove printed artifact",
			logging.String("artifact_path", job.ArtifactPath), logging.Error(err))
	}
}

func (p *Printer) flagAttention(job *queue.Job, logger *slog.Logger, reason string) {
	job.NeedsAttention = true
	job.AttentionReason = reason
	logger.Warn("disposition needs operator attention",
		logging.String("reason", reason),
		logging.String(logging.FieldSourcePath, job.SourcePath),
		logging.Alert("disposition_failure"),
	)
}
