package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// NewJob inserts a job for a detected source file, enforcing queue capacity
// and the one-live-job-per-path invariant. Returns ErrQueueFull when live
// jobs have reached capacity, ErrDuplicate when a live job already tracks
// the same path and fingerprint, and ErrLivePath when a live job tracks the
// path with different content and has not been superseded.
func (s *Store) NewJob(ctx context.Context, sourcePath, fingerprint string) (*Job, error) {
	ctx = ensureContext(ctx)

	if s.capacity > 0 {
		live, err := s.CountLive(ctx)
		if err != nil {
			return nil, err
		}
		if live >= s.capacity {
			return nil, fmt.Errorf("%w: %d live jobs at capacity %d", ErrQueueFull, live, s.capacity)
		}
	}

	existing, err := s.FindActiveBySourcePath(ctx, sourcePath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if fingerprint != "" && existing.Fingerprint == fingerprint {
			return nil, fmt.Errorf("%w: job %d already tracks %s", ErrDuplicate, existing.ID, sourcePath)
		}
		return nil, fmt.Errorf("%w: job %d still tracks %s, supersede it first", ErrLivePath, existing.ID, sourcePath)
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := s.exec(
		ctx,
		`INSERT INTO jobs (
            source_path, card_name, fingerprint, status, created_at, updated_at,
            progress_stage, progress_percent, progress_message
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sourcePath,
		nullableString(deriveCardName(sourcePath)),
		nullableString(fingerprint),
		StatusDetected,
		timestamp,
		timestamp,
		nil,
		0.0,
		nil,
	)
	if err != nil {
		// Lost a race with a concurrent insert: the partial unique index on
		// live source paths rejected the row.
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrLivePath, sourcePath)
		}
		return nil, fmt.Errorf("insert job: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

// GetByID fetches a job by identifier.
func (s *Store) GetByID(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// FindActiveBySourcePath returns the live job tracking the given source
// path, or nil when none exists.
func (s *Store) FindActiveBySourcePath(ctx context.Context, sourcePath string) (*Job, error) {
	placeholders := makePlaceholders(len(liveStatuses))
	args := append([]any{sourcePath}, statusArgs(liveStatuses)...)
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE source_path = ? AND status IN (`+placeholders+`) ORDER BY id DESC LIMIT 1`,
		args...,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active by source path: %w", err)
	}
	return job, nil
}

// FindBySourceAndFingerprint returns the most recent job for the exact
// path and content combination regardless of status.
func (s *Store) FindBySourceAndFingerprint(ctx context.Context, sourcePath, fingerprint string) (*Job, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE source_path = ? AND fingerprint = ? ORDER BY id DESC LIMIT 1`,
		sourcePath,
		fingerprint,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by source and fingerprint: %w", err)
	}
	return job, nil
}

// CountLive returns the number of jobs occupying queue capacity.
func (s *Store) CountLive(ctx context.Context) (int, error) {
	placeholders := makePlaceholders(len(liveStatuses))
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT COUNT(1) FROM jobs WHERE status IN (`+placeholders+`)`,
		statusArgs(liveStatuses)...,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count live jobs: %w", err)
	}
	return count, nil
}

// Update persists changes to an existing job. Rows that already reached a
// terminal status are left untouched and ErrTerminalState is returned, so a
// stage racing a supersession cannot resurrect a retired job.
func (s *Store) Update(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	res, err := s.exec(
		ctx,
		`UPDATE jobs
         SET source_path = ?, card_name = ?, fingerprint = ?, status = ?,
             artifact_path = ?, archived_path = ?, print_job_id = ?,
             source_width = ?, source_height = ?, error_message = ?,
             needs_attention = ?, attention_reason = ?, attempt_count = ?,
             retry_streak = ?, next_attempt_at = ?, last_heartbeat = ?,
             progress_stage = ?, progress_percent = ?, progress_message = ?,
             updated_at = ?, completed_at = ?
         WHERE id = ? AND status NOT IN (?, ?, ?)`,
		job.SourcePath,
		nullableString(job.CardName),
		nullableString(job.Fingerprint),
		job.Status,
		nullableString(job.ArtifactPath),
		nullableString(job.ArchivedPath),
		nullableString(job.PrintJobID),
		job.SourceWidth,
		job.SourceHeight,
		nullableString(job.ErrorMessage),
		boolToInt(job.NeedsAttention),
		nullableString(job.AttentionReason),
		job.AttemptCount,
		job.RetryStreak,
		nullableTime(job.NextAttemptAt),
		nullableTime(job.LastHeartbeat),
		nullableString(job.ProgressStage),
		job.ProgressPercent,
		nullableString(job.ProgressMessage),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.CompletedAt),
		job.ID,
		StatusCompleted,
		StatusQuarantined,
		StatusSuperseded,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if affected == 0 {
		current, getErr := s.GetByID(ctx, job.ID)
		if getErr != nil {
			return getErr
		}
		if current != nil && current.Status.IsTerminal() {
			return fmt.Errorf("job %d is %s: %w", job.ID, current.Status, ErrTerminalState)
		}
	}
	return nil
}

// JobsByStatus returns jobs matching a status ordered by creation time.
func (s *Store) JobsByStatus(ctx context.Context, status Status) ([]*Job, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT `+jobColumns+` FROM jobs WHERE status = ? ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("query by status: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// List returns jobs filtered by status set (or all jobs when no status is
// provided).
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Job, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	ctx = ensureContext(ctx)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		query := baseQuery + ` WHERE status IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, statusArgs(statuses)...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Remove deletes a job by identifier.
func (s *Store) Remove(ctx context.Context, id int64) (bool, error) {
	res, err := s.exec(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearCompleted removes completed and superseded jobs from the queue.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM jobs WHERE status IN (?, ?)`, StatusCompleted, StatusSuperseded)
	if err != nil {
		return 0, fmt.Errorf("clear completed: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes failed and quarantined jobs from the queue.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM jobs WHERE status IN (?, ?)`, StatusFailed, StatusQuarantined)
	if err != nil {
		return 0, fmt.Errorf("clear failed: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all jobs from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}
