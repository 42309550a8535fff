package queue

import (
	"context"
	"fmt"
	"time"
)

// ResetStuckProcessing resets jobs in processing states back to the start
// of their current stage. Used on daemon startup after an unclean shutdown.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	res, err := s.exec(
		ctx,
		`UPDATE jobs
         SET status = CASE status
             WHEN ? THEN ?
             WHEN ? THEN ?
             WHEN ? THEN ?
             WHEN ? THEN ?
             ELSE status
         END,
             progress_stage = 'Reset from stuck processing',
             progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
         WHERE status IN (?, ?, ?, ?)`,
		StatusValidating, StatusDetected,
		StatusNormalizing, StatusDetected,
		StatusSubmitting, StatusQueued,
		StatusPrinting, StatusQueued,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusValidating,
		StatusNormalizing,
		StatusSubmitting,
		StatusPrinting,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC()
	if err := s.execNoResult(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleProcessing returns jobs stuck in processing back to the start
// of their current stage when heartbeats expire.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC()
	res, err := s.exec(
		ctx,
		`UPDATE jobs
        SET status = CASE status
            WHEN ? THEN ?
            WHEN ? THEN ?
            WHEN ? THEN ?
            WHEN ? THEN ?
            ELSE status
        END,
            progress_stage = 'Reclaimed from stale processing',
            progress_percent = 0, progress_message = NULL, last_heartbeat = NULL, updated_at = ?
        WHERE status IN (?, ?, ?, ?) AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusValidating, StatusDetected,
		StatusNormalizing, StatusDetected,
		StatusSubmitting, StatusQueued,
		StatusPrinting, StatusQueued,
		now.Format(time.RFC3339Nano),
		StatusValidating,
		StatusNormalizing,
		StatusSubmitting,
		StatusPrinting,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed (and quarantined, when explicitly selected) jobs
// back to detected for reprocessing with a fresh retry budget.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.exec(
			ctx,
			`UPDATE jobs
            SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
                progress_message = NULL, error_message = NULL, retry_streak = 0,
                next_attempt_at = NULL, updated_at = ?
            WHERE status = ?`,
			StatusDetected,
			now,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed jobs: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+4)
	args = append(args, StatusDetected, now)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, StatusFailed, StatusQuarantined)
	query := `UPDATE jobs
        SET status = ?, progress_stage = 'Retry requested', progress_percent = 0,
            progress_message = NULL, error_message = NULL, retry_streak = 0,
            next_attempt_at = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status IN (?, ?)`
	res, err := s.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected jobs: %w", err)
	}
	return res.RowsAffected()
}

// MarkSuperseded retires a live job whose source file was replaced or
// removed before printing finished. Completed and quarantined rows are
// immutable and stay as they are.
func (s *Store) MarkSuperseded(ctx context.Context, id int64, reason string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := s.execNoResult(
		ctx,
		`UPDATE jobs
        SET status = ?, progress_stage = 'Superseded', progress_percent = 0,
            progress_message = ?, last_heartbeat = NULL, next_attempt_at = NULL,
            updated_at = ?, completed_at = ?
        WHERE id = ? AND status NOT IN (?, ?)`,
		StatusSuperseded,
		nullableString(reason),
		now,
		now,
		id,
		StatusCompleted,
		StatusQuarantined,
	); err != nil {
		return fmt.Errorf("mark superseded: %w", err)
	}
	return nil
}

// SupersedeActiveForPath retires every live job tracking the given source
// path. Returns the number of jobs affected.
func (s *Store) SupersedeActiveForPath(ctx context.Context, sourcePath, reason string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	placeholders := makePlaceholders(len(liveStatuses))
	args := make([]any, 0, len(liveStatuses)+5)
	args = append(args, StatusSuperseded, nullableString(reason), now, now, sourcePath)
	args = append(args, statusArgs(liveStatuses)...)
	res, err := s.exec(
		ctx,
		`UPDATE jobs
        SET status = ?, progress_stage = 'Superseded', progress_percent = 0,
            progress_message = ?, last_heartbeat = NULL, next_attempt_at = NULL,
            updated_at = ?, completed_at = ?
        WHERE source_path = ? AND status IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("supersede jobs for path: %w", err)
	}
	return res.RowsAffected()
}
