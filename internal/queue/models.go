package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a print job.
type Status string

const (
	StatusDetected    Status = "detected"
	StatusValidating  Status = "validating"
	StatusNormalizing Status = "normalizing"
	StatusQueued      Status = "queued"
	StatusSubmitting  Status = "submitting"
	StatusPrinting    Status = "printing"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusQuarantined Status = "quarantined"
	StatusSuperseded  Status = "superseded"
)

// DaemonStopReason is the progress note set when in-flight jobs are released
// during daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusDetected,
	StatusValidating,
	StatusNormalizing,
	StatusQueued,
	StatusSubmitting,
	StatusPrinting,
	StatusCompleted,
	StatusFailed,
	StatusQuarantined,
	StatusSuperseded,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusValidating:  {},
	StatusNormalizing: {},
	StatusSubmitting:  {},
	StatusPrinting:    {},
}

// liveStatuses are the states that occupy queue capacity: everything that
// has not reached a terminal disposition.
var liveStatuses = []Status{
	StatusDetected,
	StatusValidating,
	StatusNormalizing,
	StatusQueued,
	StatusSubmitting,
	StatusPrinting,
	StatusFailed,
}

type statusTransition struct {
	from Status
	to   Status
}

// stageRollbackTransitions return in-flight jobs to the start of their
// current stage when a worker dies mid-processing.
var stageRollbackTransitions = []statusTransition{
	{from: StatusValidating, to: StatusDetected},
	{from: StatusNormalizing, to: StatusDetected},
	{from: StatusSubmitting, to: StatusQueued},
	{from: StatusPrinting, to: StatusQueued},
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total       int
	Waiting     int
	Processing  int
	Queued      int
	Failed      int
	Completed   int
	Quarantined int
}

// Job represents a print job persisted in SQLite.
type Job struct {
	ID              int64
	SourcePath      string
	CardName        string
	Fingerprint     string
	Status          Status
	ArtifactPath    string
	ArchivedPath    string
	PrintJobID      string
	SourceWidth     int
	SourceHeight    int
	ErrorMessage    string
	NeedsAttention  bool
	AttentionReason string
	AttemptCount    int
	RetryStreak     int
	NextAttemptAt   *time.Time
	LastHeartbeat   *time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// LiveStatuses returns the states that count toward queue capacity.
func LiveStatuses() []Status {
	cp := make([]Status, len(liveStatuses))
	copy(cp, liveStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (j Job) IsProcessing() bool {
	_, ok := processingStatuses[j.Status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminal reports whether the status is a final disposition.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusQuarantined, StatusSuperseded:
		return true
	default:
		return false
	}
}

// IsLive reports whether a job in this status occupies queue capacity.
func (s Status) IsLive() bool {
	for _, live := range liveStatuses {
		if s == live {
			return true
		}
	}
	return false
}

// InitProgress resets progress fields for a new stage.
func (j *Job) InitProgress(stage, message string) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	j.ProgressPercent = 0
	j.ErrorMessage = ""
}

// SetProgress updates all three progress fields together.
func (j *Job) SetProgress(stage, message string, percent float64) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// SetFailed marks the job as failed with the given error message.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ProgressPercent = 0
	j.ProgressMessage = message
	j.LastHeartbeat = nil
	j.ProgressStage = "Failed"
}
