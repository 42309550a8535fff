package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueJob describes a queue entry in a transport-friendly format.
type QueueJob struct {
	ID              int64         `json:"id"`
	CardName        string        `json:"cardName"`
	SourcePath      string        `json:"sourcePath"`
	Status          string        `json:"status"`
	Progress        QueueProgress `json:"progress"`
	ErrorMessage    string        `json:"errorMessage,omitempty"`
	Fingerprint     string        `json:"fingerprint,omitempty"`
	ArtifactPath    string        `json:"artifactPath,omitempty"`
	ArchivedPath    string        `json:"archivedPath,omitempty"`
	PrintJobID      string        `json:"printJobId,omitempty"`
	SourceWidth     int           `json:"sourceWidth,omitempty"`
	SourceHeight    int           `json:"sourceHeight,omitempty"`
	AttemptCount    int           `json:"attemptCount"`
	RetryStreak     int           `json:"retryStreak"`
	NextAttemptAt   string        `json:"nextAttemptAt,omitempty"`
	NeedsAttention  bool          `json:"needsAttention"`
	AttentionReason string        `json:"attentionReason,omitempty"`
	CreatedAt       string        `json:"createdAt,omitempty"`
	UpdatedAt       string        `json:"updatedAt,omitempty"`
	CompletedAt     string        `json:"completedAt,omitempty"`
}

// QueueProgress captures stage progress information for a queue entry.
type QueueProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastJob     *QueueJob      `json:"lastJob,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	Paused       bool               `json:"paused"`
	PID          int                `json:"pid"`
	QueueDBPath  string             `json:"queueDbPath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
}
