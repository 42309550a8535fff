package printer

import "context"

// JobState describes where a submitted job sits in the spooler.
type JobState string

const (
	StateUnknown   JobState = "unknown"
	StateQueued    JobState = "queued"
	StatePrinting  JobState = "printing"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// SubmitRequest describes a file to hand to the spooler.
type SubmitRequest struct {
	FilePath string
	Title    string
}

// Backend abstracts the print spooler.
type Backend interface {
	// Available returns nil when the destination accepts jobs and an error
	// wrapping services.ErrPrinterUnavailable otherwise.
	Available(ctx context.Context) error
	// Submit hands the file to the spooler and returns its job identifier.
	Submit(ctx context.Context, req SubmitRequest) (string, error)
	// Poll reports the current state of a submitted job.
	Poll(ctx context.Context, jobID string) (JobState, error)
	// Cancel withdraws a job from the spooler.
	Cancel(ctx context.Context, jobID string) error
}
