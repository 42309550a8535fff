package queue

import (
	"database/sql"
	"errors"
	"time"
)

const jobColumns = "id, source_path, card_name, fingerprint, status, artifact_path, archived_path, print_job_id, source_width, source_height, error_message, needs_attention, attention_reason, attempt_count, retry_streak, next_attempt_at, last_heartbeat, progress_stage, progress_percent, progress_message, created_at, updated_at, completed_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id              int64
		sourcePath      string
		cardName        sql.NullString
		fingerprint     sql.NullString
		statusStr       string
		artifactPath    sql.NullString
		archivedPath    sql.NullString
		printJobID      sql.NullString
		sourceWidth     sql.NullInt64
		sourceHeight    sql.NullInt64
		errorMessage    sql.NullString
		needsAttention  sql.NullInt64
		attentionReason sql.NullString
		attemptCount    sql.NullInt64
		retryStreak     sql.NullInt64
		nextAttemptRaw  sql.NullString
		heartbeatRaw    sql.NullString
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
		completedRaw    sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourcePath,
		&cardName,
		&fingerprint,
		&statusStr,
		&artifactPath,
		&archivedPath,
		&printJobID,
		&sourceWidth,
		&sourceHeight,
		&errorMessage,
		&needsAttention,
		&attentionReason,
		&attemptCount,
		&retryStreak,
		&nextAttemptRaw,
		&heartbeatRaw,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:              id,
		SourcePath:      sourcePath,
		CardName:        cardName.String,
		Fingerprint:     fingerprint.String,
		Status:          Status(statusStr),
		ArtifactPath:    artifactPath.String,
		ArchivedPath:    archivedPath.String,
		PrintJobID:      printJobID.String,
		SourceWidth:     int(sourceWidth.Int64),
		SourceHeight:    int(sourceHeight.Int64),
		ErrorMessage:    errorMessage.String,
		AttentionReason: attentionReason.String,
		AttemptCount:    int(attemptCount.Int64),
		RetryStreak:     int(retryStreak.Int64),
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
	}
	if needsAttention.Valid {
		job.NeedsAttention = needsAttention.Int64 != 0
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if nextAttemptRaw.Valid {
		if next, err := parseTimeString(nextAttemptRaw.String); err == nil {
			job.NextAttemptAt = &next
		}
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			job.LastHeartbeat = &heartbeat
		}
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func statusArgs(statuses []Status) []any {
	args := make([]any, len(statuses))
	for i, status := range statuses {
		args[i] = status
	}
	return args
}
