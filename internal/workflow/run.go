package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cardpress/internal/logging"
	"cardpress/internal/queue"
	"cardpress/internal/services"
)

func (m *Manager) runWorker(ctx context.Context, lane *laneState, worker int) {
	defer m.wg.Done()
	logger := lane.logger.With(logging.Int("worker", worker))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Only worker zero reclaims, so a lane with several workers does
		// not hammer the same UPDATE each round.
		if worker == 0 {
			if err := m.heartbeat.ReclaimStale(ctx, logger); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("reclaim stale processing failed, stuck jobs may remain",
					logging.Error(err),
					logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
					logging.String(logging.FieldErrorHint, "check queue database access"),
				)
			}
		}

		job, err := m.store.ClaimNextForStatuses(ctx, lane.processingStatus, lane.claimStatuses...)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			logger.Error("failed to claim next queue job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_claim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
			m.sleep(ctx, m.errorRetry)
			continue
		}
		if job == nil {
			m.sleep(ctx, m.pollInterval)
			continue
		}

		if err := m.processJob(ctx, lane, logger, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (m *Manager) processJob(ctx context.Context, lane *laneState, laneLogger *slog.Logger, job *queue.Job) error {
	requestID := uuid.NewString()
	stageCtx := services.WithJobID(ctx, job.ID)
	stageCtx = services.WithStage(stageCtx, lane.name)
	stageCtx = services.WithLane(stageCtx, lane.name)
	stageCtx = services.WithRequestID(stageCtx, requestID)
	logger := logging.WithContext(stageCtx, laneLogger)

	m.onJobStarted()
	stageStart := time.Now()
	logger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("processing_status", string(lane.processingStatus)),
		logging.String("card_name", job.CardName),
		logging.String(logging.FieldSourcePath, job.SourcePath),
	)

	if err := lane.handler.Prepare(stageCtx, job); err != nil {
		m.handleStageFailure(stageCtx, lane, job, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.Update(stageCtx, job); err != nil {
		if errors.Is(err, queue.ErrTerminalState) {
			logger.Debug("job retired before execution, skipping stage")
			return nil
		}
		m.setLastError(err)
		logger.Error("failed to persist stage preparation", logging.Error(err))
		return err
	}

	execErr := m.executeWithHeartbeat(stageCtx, lane, job)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			logger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.handleStageFailure(stageCtx, lane, job, execErr)
		m.setLastError(execErr)
		return execErr
	}

	if job.Status == "" || queue.IsProcessingStatus(job.Status) {
		job.Status = lane.doneStatus
	}
	job.LastHeartbeat = nil
	// A successful stage advance closes any retry streak.
	job.RetryStreak = 0
	job.NextAttemptAt = nil
	job.ErrorMessage = ""
	if err := m.store.Update(stageCtx, job); err != nil {
		if errors.Is(err, queue.ErrTerminalState) {
			logger.Debug("job retired mid-stage, stage result discarded")
			if current, getErr := m.store.GetByID(stageCtx, job.ID); getErr == nil && current != nil {
				*job = *current
			}
			m.setLastJob(job)
			m.checkQueueDrained(stageCtx)
			return nil
		}
		m.setLastError(err)
		logger.Error("failed to persist stage result", logging.Error(err))
		return err
	}

	logger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_status", string(job.Status)),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	m.setLastJob(job)
	m.checkQueueDrained(stageCtx)
	return nil
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, lane *laneState, job *queue.Job) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	defer hbCancel()
	done := m.heartbeat.StartLoop(hbCtx, job.ID)
	err := lane.handler.Execute(ctx, job)
	hbCancel()
	<-done
	return err
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
