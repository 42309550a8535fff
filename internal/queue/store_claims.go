package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ClaimNextForStatuses atomically claims the oldest eligible job in any of
// the given statuses and moves it to the processing status. Jobs with a
// future next_attempt_at are skipped. Returns nil when nothing is eligible.
//
// The claim is a single UPDATE so concurrent lane workers never pick up the
// same job.
func (s *Store) ClaimNextForStatuses(ctx context.Context, processing Status, statuses ...Status) (*Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	ctx = ensureContext(ctx)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	placeholders := makePlaceholders(len(statuses))
	args := make([]any, 0, len(statuses)+4)
	args = append(args, processing, now, now)
	args = append(args, statusArgs(statuses)...)
	args = append(args, now)

	query := `UPDATE jobs
        SET status = ?, last_heartbeat = ?, updated_at = ?
        WHERE id = (
            SELECT id FROM jobs
            WHERE status IN (` + placeholders + `)
              AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
            ORDER BY created_at, id
            LIMIT 1
        )
        RETURNING ` + jobColumns

	var job *Job
	err := withBusyRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, query, args...)
		claimed, scanErr := scanJob(row)
		if scanErr != nil {
			return scanErr
		}
		job = claimed
		return nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return job, nil
}
