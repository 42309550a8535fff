package api

import (
	"slices"

	"cardpress/internal/queue"
	"cardpress/internal/workflow"
)

// FromQueueJob converts a queue record to its API representation.
func FromQueueJob(job *queue.Job) QueueJob {
	if job == nil {
		return QueueJob{}
	}

	dto := QueueJob{
		ID:          job.ID,
		CardName:    job.CardName,
		SourcePath:  job.SourcePath,
		Status:      string(job.Status),
		Fingerprint: job.Fingerprint,
		Progress: QueueProgress{
			Stage:   job.ProgressStage,
			Percent: job.ProgressPercent,
			Message: job.ProgressMessage,
		},
		ErrorMessage:    job.ErrorMessage,
		ArtifactPath:    job.ArtifactPath,
		ArchivedPath:    job.ArchivedPath,
		PrintJobID:      job.PrintJobID,
		SourceWidth:     job.SourceWidth,
		SourceHeight:    job.SourceHeight,
		AttemptCount:    job.AttemptCount,
		RetryStreak:     job.RetryStreak,
		NeedsAttention:  job.NeedsAttention,
		AttentionReason: job.AttentionReason,
	}
	if job.NextAttemptAt != nil {
		dto.NextAttemptAt = job.NextAttemptAt.UTC().Format(dateTimeFormat)
	}
	if !job.CreatedAt.IsZero() {
		dto.CreatedAt = job.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !job.UpdatedAt.IsZero() {
		dto.UpdatedAt = job.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	if job.CompletedAt != nil {
		dto.CompletedAt = job.CompletedAt.UTC().Format(dateTimeFormat)
	}
	return dto
}

// FromQueueJobs converts a slice of queue records into API DTOs.
func FromQueueJobs(jobs []*queue.Job) []QueueJob {
	if len(jobs) == 0 {
		return nil
	}
	out := make([]QueueJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromQueueJob(job))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	healthNames := make([]string, 0, len(summary.StageHealth))
	for name := range summary.StageHealth {
		healthNames = append(healthNames, name)
	}
	slices.Sort(healthNames)

	health := make([]StageHealth, 0, len(healthNames))
	for _, name := range healthNames {
		h := summary.StageHealth[name]
		health = append(health, StageHealth{
			Name:   name,
			Ready:  h.Ready,
			Detail: h.Detail,
		})
	}

	stats := make(map[string]int, len(summary.QueueStats))
	for status, count := range summary.QueueStats {
		stats[string(status)] = count
	}

	wf := WorkflowStatus{
		Running:     summary.Running,
		QueueStats:  stats,
		StageHealth: health,
	}
	if summary.LastError != "" {
		wf.LastError = summary.LastError
	}
	if summary.LastJob != nil {
		last := FromQueueJob(summary.LastJob)
		wf.LastJob = &last
	}
	return wf
}
