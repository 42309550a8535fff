package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cardpress/internal/logging"
	"cardpress/internal/queue"
)

// HeartbeatMonitor keeps claimed jobs alive and reclaims jobs whose worker
// stopped heartbeating.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

// NewHeartbeatMonitor creates a new monitor.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *HeartbeatMonitor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &HeartbeatMonitor{store: store, logger: logger, interval: interval, timeout: timeout}
}

// ReclaimStale rolls back processing jobs whose heartbeat went quiet for
// longer than the configured timeout.
func (h *HeartbeatMonitor) ReclaimStale(ctx context.Context, logger *slog.Logger) error {
	if h.timeout <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-h.timeout)
	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		if logger == nil {
			logger = h.logger
		}
		logger.Info("reclaimed stale jobs", logging.Int64("count", reclaimed))
	}
	return nil
}

// StartLoop writes periodic heartbeats for the job until the context is
// canceled. The returned channel closes when the loop exits.
func (h *HeartbeatMonitor) StartLoop(ctx context.Context, jobID int64) <-chan struct{} {
	done := make(chan struct{})
	interval := h.interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		logger := logging.WithContext(ctx, h.logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := h.store.UpdateHeartbeat(ctx, jobID); err != nil {
					if errors.Is(err, context.Canceled) {
						return
					}
					logger.Warn("heartbeat update failed", logging.Error(err))
				}
			}
		}
	}()
	return done
}
