package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cardpress/internal/logging"
	"cardpress/internal/queue"
	"cardpress/internal/services"
)

// handleStageFailure classifies a stage error, applies the retry policy, and
// persists the resulting job state.
//
// Printer unavailability is environmental: the job returns to queued with a
// backoff gate and never consumes the retry budget. Image and configuration
// defects quarantine immediately. Everything else burns one attempt and
// either reschedules with backoff or, once the streak exceeds max_attempts,
// quarantines.
func (m *Manager) handleStageFailure(ctx context.Context, lane *laneState, job *queue.Job, stageErr error) {
	if errors.Is(stageErr, services.ErrStaleSource) {
		m.handleStaleSource(ctx, lane, job, stageErr)
		return
	}

	logger := logging.WithContext(ctx, lane.logger)

	message := strings.TrimSpace(stageErr.Error())
	if message == "" {
		message = fmt.Sprintf("%s stage failed", lane.name)
	}

	job.AttemptCount++
	job.RetryStreak++
	job.LastHeartbeat = nil
	job.ErrorMessage = message

	resolved := services.FailureStatus(stageErr)
	countsAgainstBudget := services.CountsAgainstBudget(stageErr)
	switch {
	case !countsAgainstBudget:
		resolved = queue.StatusQueued
	case resolved != queue.StatusQuarantined && job.RetryStreak > m.cfg.Queue.MaxAttempts:
		resolved = queue.StatusQuarantined
		job.ErrorMessage = fmt.Sprintf("%s (retry budget exhausted after %d attempts)", message, job.RetryStreak)
	}

	job.Status = resolved
	if resolved == queue.StatusQuarantined {
		job.NextAttemptAt = nil
		job.NeedsAttention = true
		if job.AttentionReason == "" {
			job.AttentionReason = job.ErrorMessage
		}
		job.SetProgress("Quarantined", "Manual review required", job.ProgressPercent)
	} else {
		next := time.Now().UTC().Add(m.backoff.delay(job.RetryStreak))
		job.NextAttemptAt = &next
	}

	logger.Error("stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("resolved_status", string(resolved)),
		logging.Bool("counts_against_budget", countsAgainstBudget),
		logging.Int("retry_streak", job.RetryStreak),
		logging.Int("attempt_count", job.AttemptCount),
		logging.Alert("stage_failure"),
		logging.Error(stageErr),
	)

	if err := m.store.Update(ctx, job); err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			logger.Debug("daemon shutting down, could not persist stage failure")
		case errors.Is(err, queue.ErrTerminalState):
			// The job was retired (typically superseded) while the stage ran.
			logger.Debug("job already terminal, stage failure not persisted")
			m.setLastJob(job)
			m.checkQueueDrained(ctx)
			return
		default:
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	} else if resolved == queue.StatusQuarantined {
		m.writeQuarantineTag(logger, job)
	}

	m.setLastJob(job)
	m.notifyFailure(ctx, lane, job, stageErr, resolved)
	m.checkQueueDrained(ctx)
}

// handleStaleSource retires a job whose source file vanished or was
// rewritten after intake. Replacement is an expected event, not a defect:
// the job moves to superseded without burning attempts, flagging attention,
// or notifying anyone, and the next rescan enqueues the new content.
func (m *Manager) handleStaleSource(ctx context.Context, lane *laneState, job *queue.Job, stageErr error) {
	logger := logging.WithContext(ctx, lane.logger)

	if err := m.store.MarkSuperseded(ctx, job.ID, strings.TrimSpace(stageErr.Error())); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not persist supersession")
		} else {
			logger.Error("failed to persist supersession", logging.Error(err))
		}
		return
	}
	if current, err := m.store.GetByID(ctx, job.ID); err == nil && current != nil {
		*job = *current
	} else {
		job.Status = queue.StatusSuperseded
	}

	logger.Debug("job superseded by stale source",
		logging.String(logging.FieldEventType, "job_superseded"),
		logging.String(logging.FieldSourcePath, job.SourcePath),
		logging.Error(stageErr),
	)
	m.setLastJob(job)
	m.checkQueueDrained(ctx)
}

// writeQuarantineTag records why a job left automatic processing. The source
// file stays where it was dropped; the tag in the quarantine directory is
// what an operator reviews before clearing or retrying the job.
func (m *Manager) writeQuarantineTag(logger *slog.Logger, job *queue.Job) {
	dir := m.cfg.Paths.QuarantineDir
	if dir == "" {
		return
	}
	name := fmt.Sprintf("job-%d.txt", job.ID)
	if base := filepath.Base(job.SourcePath); base != "" && base != "." && base != "/" {
		name = fmt.Sprintf("%s.job-%d.txt", base, job.ID)
	}
	body := fmt.Sprintf("source: %s\nreason: %s\nquarantined_at: %s\n",
		job.SourcePath, job.ErrorMessage, time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		logger.Warn("failed to write quarantine tag",
			logging.String("quarantine_dir", dir),
			logging.Error(err))
	}
}

func (m *Manager) notifyFailure(ctx context.Context, lane *laneState, job *queue.Job, stageErr error, resolved queue.Status) {
	if m.notifier == nil {
		return
	}
	logger := logging.WithContext(ctx, lane.logger)
	if resolved == queue.StatusQuarantined {
		if err := m.notifier.NotifyQuarantined(ctx, job.CardName, job.ErrorMessage); err != nil && !errors.Is(err, context.Canceled) {
			logger.Debug("quarantine notification failed", logging.Error(err))
		}
		return
	}
	contextLabel := fmt.Sprintf("%s (job #%d)", lane.name, job.ID)
	if err := m.notifier.NotifyError(ctx, stageErr, contextLabel); err != nil && !errors.Is(err, context.Canceled) {
		logger.Debug("stage error notification failed", logging.Error(err))
	}
}
