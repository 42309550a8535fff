package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"cardpress/internal/config"
	"cardpress/internal/logging"
	"cardpress/internal/notifications"
	"cardpress/internal/queue"
	"cardpress/internal/stage"
)

// StageSet bundles the concrete stage handlers the manager orchestrates.
type StageSet struct {
	Normalizer stage.Handler
	Printer    stage.Handler
}

type laneState struct {
	name             string
	workers          int
	claimStatuses    []queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
	handler          stage.Handler
	logger           *slog.Logger
}

// Manager coordinates queue processing across the normalize and print lanes.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	notifier     notifications.Service
	heartbeat    *HeartbeatMonitor
	backoff      backoffPolicy
	pollInterval time.Duration
	errorRetry   time.Duration

	mu      sync.RWMutex
	lanes   []*laneState
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job

	queueActive bool
}

// NewManager constructs a workflow manager with default dependencies.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom notifier
// (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		logger:   logger,
		notifier: notifier,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Queue.HeartbeatSeconds)*time.Second,
			time.Duration(cfg.Queue.HeartbeatTimeoutSeconds)*time.Second,
		),
		backoff:      backoffFromConfig(cfg),
		pollInterval: time.Duration(cfg.Queue.PollSeconds) * time.Second,
		errorRetry:   time.Duration(cfg.Queue.ErrorRetrySeconds) * time.Second,
	}
}

// ConfigureStages registers the concrete stage handlers the workflow will run.
func (m *Manager) ConfigureStages(set StageSet) {
	lanes := make([]*laneState, 0, 2)

	if set.Normalizer != nil {
		workers := m.cfg.Queue.NormalizeWorkers
		if workers < 1 {
			workers = 1
		}
		lanes = append(lanes, &laneState{
			name:             "normalize",
			workers:          workers,
			claimStatuses:    []queue.Status{queue.StatusDetected, queue.StatusFailed},
			processingStatus: queue.StatusValidating,
			doneStatus:       queue.StatusQueued,
			handler:          set.Normalizer,
		})
	}
	if set.Printer != nil {
		// The print lane is deliberately single-worker: the spooler must
		// never be handed overlapping card jobs.
		lanes = append(lanes, &laneState{
			name:             "print",
			workers:          1,
			claimStatuses:    []queue.Status{queue.StatusQueued},
			processingStatus: queue.StatusSubmitting,
			doneStatus:       queue.StatusCompleted,
			handler:          set.Printer,
		})
	}

	m.mu.Lock()
	m.lanes = lanes
	m.mu.Unlock()
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.lanes) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	total := 0
	for _, lane := range m.lanes {
		lane.logger = logging.NewComponentLogger(m.logger, "workflow").With(logging.String(logging.FieldLane, lane.name))
		total += lane.workers
	}
	lanes := m.lanes
	m.wg.Add(total)
	m.mu.Unlock()

	for _, lane := range lanes {
		for worker := 0; worker < lane.workers; worker++ {
			go m.runWorker(runCtx, lane, worker)
		}
	}
	return nil
}

// Stop terminates background processing and waits for workers to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastJob(job *queue.Job) {
	m.mu.Lock()
	if job != nil {
		copied := *job
		m.lastJob = &copied
	} else {
		m.lastJob = nil
	}
	m.mu.Unlock()
}
