package workflow

import (
	"context"
	"errors"

	"cardpress/internal/logging"
	"cardpress/internal/queue"
)

// onJobStarted marks the queue as active so a later drain can be announced.
func (m *Manager) onJobStarted() {
	m.mu.Lock()
	m.queueActive = true
	m.mu.Unlock()
}

// checkQueueDrained announces queue completion once no job remains in a
// claimable or processing state.
func (m *Manager) checkQueueDrained(ctx context.Context) {
	if m.notifier == nil {
		return
	}
	stats, err := m.store.Stats(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.logger.Warn("queue stats unavailable for drain notification",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_stats_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		return
	}
	if countActionable(stats) > 0 {
		return
	}

	m.mu.Lock()
	if !m.queueActive {
		m.mu.Unlock()
		return
	}
	m.queueActive = false
	m.mu.Unlock()

	completed := stats[queue.StatusCompleted]
	failed := stats[queue.StatusFailed] + stats[queue.StatusQuarantined]
	if err := m.notifier.NotifyQueueDrained(ctx, completed, failed); err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Debug("queue drain notification failed", logging.Error(err))
	}
}

// countActionable tallies jobs the lanes could still pick up or are working
// on. Failed jobs count because their backoff gate will pass.
func countActionable(stats map[queue.Status]int) int {
	total := 0
	for _, status := range []queue.Status{
		queue.StatusDetected,
		queue.StatusValidating,
		queue.StatusNormalizing,
		queue.StatusQueued,
		queue.StatusSubmitting,
		queue.StatusPrinting,
		queue.StatusFailed,
	} {
		total += stats[status]
	}
	return total
}
