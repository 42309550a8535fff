// Package intake turns raw watcher events into queue jobs. It debounces
// partially written files, deduplicates by content fingerprint, supersedes
// jobs whose source changed underfoot, and holds files back while the queue
// is at capacity.
package intake

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cardpress/internal/config"
	"cardpress/internal/fingerprint"
	"cardpress/internal/logging"
	"cardpress/internal/queue"
	"cardpress/internal/watcher"
)

// pendingFile tracks a file between first sighting and enqueue.
type pendingFile struct {
	size       int64
	mtime      time.Time
	lastChange time.Time
}

// Tracker consumes watcher events and drives jobs into the queue.
type Tracker struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger

	extensions map[string]struct{}
	debounce   time.Duration
	rescan     time.Duration

	mu      sync.Mutex
	pending map[string]*pendingFile
	paused  bool

	now        func() time.Time
	onEnqueued func(*queue.Job)
}

// OnEnqueued registers a callback invoked after a file is promoted into the
// queue. Set it before Run starts.
func (t *Tracker) OnEnqueued(fn func(*queue.Job)) {
	t.onEnqueued = fn
}

// New constructs a tracker backed by the given store.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Tracker {
	extensions := make(map[string]struct{}, len(cfg.Intake.SupportedExtensions))
	for _, ext := range cfg.Intake.SupportedExtensions {
		extensions[ext] = struct{}{}
	}
	return &Tracker{
		cfg:        cfg,
		store:      store,
		logger:     logging.NewComponentLogger(logger, "intake"),
		extensions: extensions,
		debounce:   time.Duration(cfg.Intake.DebounceSeconds) * time.Second,
		rescan:     time.Duration(cfg.Intake.RescanSeconds) * time.Second,
		pending:    make(map[string]*pendingFile),
		now:        time.Now,
	}
}

// Run consumes events until the context is canceled.
func (t *Tracker) Run(ctx context.Context, events <-chan watcher.Event) error {
	ticker := time.NewTicker(t.rescan)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			t.HandleEvent(ctx, ev)
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

// Pause stops promoting files into the queue; deletions are still honored.
func (t *Tracker) Pause() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
	t.logger.Info("intake paused")
}

// Resume restarts promotion.
func (t *Tracker) Resume() {
	t.mu.Lock()
	t.paused = false
	t.mu.Unlock()
	t.logger.Info("intake resumed")
}

// Paused reports whether promotion is suspended.
func (t *Tracker) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// PendingCount returns the number of files waiting to stabilize or enqueue.
func (t *Tracker) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// HandleEvent records a single watcher event.
func (t *Tracker) HandleEvent(ctx context.Context, ev watcher.Event) {
	switch ev.Kind {
	case watcher.KindDeleted:
		t.handleDeleted(ctx, ev.Path)
	case watcher.KindCreated, watcher.KindModified:
		t.handleChanged(ev.Path)
	}
}

func (t *Tracker) handleChanged(path string) {
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := t.extensions[ext]; !ok {
		t.logger.Debug("ignoring unsupported file", logging.String(logging.FieldSourcePath, path))
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	entry, exists := t.pending[path]
	if !exists {
		t.pending[path] = &pendingFile{size: info.Size(), mtime: info.ModTime(), lastChange: t.now()}
		return
	}
	if entry.size != info.Size() || !entry.mtime.Equal(info.ModTime()) {
		entry.size = info.Size()
		entry.mtime = info.ModTime()
		entry.lastChange = t.now()
	}
}

func (t *Tracker) handleDeleted(ctx context.Context, path string) {
	t.mu.Lock()
	delete(t.pending, path)
	t.mu.Unlock()

	affected, err := t.store.SupersedeActiveForPath(ctx, path, "source file removed")
	if err != nil {
		t.logger.Warn("supersede on delete failed", logging.String(logging.FieldSourcePath, path), logging.Error(err))
		return
	}
	if affected > 0 {
		t.logger.Info("superseded jobs for removed source",
			logging.String(logging.FieldSourcePath, path),
			logging.Int64("jobs", affected))
	}
}

// Sweep promotes files that have been quiet for the debounce interval. Files
// rejected for capacity stay pending and are re-offered on the next sweep.
func (t *Tracker) Sweep(ctx context.Context) {
	t.mu.Lock()
	if t.paused {
		t.mu.Unlock()
		return
	}
	candidates := make([]string, 0, len(t.pending))
	now := t.now()
	for path, entry := range t.pending {
		if now.Sub(entry.lastChange) >= t.debounce {
			candidates = append(candidates, path)
		}
	}
	t.mu.Unlock()

	for _, path := range candidates {
		t.promote(ctx, path)
	}
}

func (t *Tracker) promote(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		t.mu.Lock()
		delete(t.pending, path)
		t.mu.Unlock()
		return
	}

	// A file that changed after candidate selection restarts its quiet
	// period on the next sweep.
	t.mu.Lock()
	entry, tracked := t.pending[path]
	if !tracked || entry.size != info.Size() || !entry.mtime.Equal(info.ModTime()) {
		if tracked {
			entry.size = info.Size()
			entry.mtime = info.ModTime()
			entry.lastChange = t.now()
		}
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	fp, err := fingerprint.File(path)
	if err != nil {
		t.logger.Warn("fingerprint failed", logging.String(logging.FieldSourcePath, path), logging.Error(err))
		return
	}

	log := t.logger.With(
		logging.String(logging.FieldSourcePath, path),
		logging.String(logging.FieldFingerprint, fingerprint.Short(fp)))

	// Identical content that already ran to a terminal state is not
	// reprocessed; quarantined files stay out until manually cleared.
	prior, err := t.store.FindBySourceAndFingerprint(ctx, path, fp)
	if err != nil {
		log.Warn("duplicate lookup failed", logging.Error(err))
		return
	}
	if prior != nil && prior.Status.IsTerminal() && prior.Status != queue.StatusSuperseded {
		log.Debug("dropping already-processed file", logging.String("prior_status", string(prior.Status)))
		t.forget(path)
		return
	}

	// Same path, different content: the old job is stale.
	active, err := t.store.FindActiveBySourcePath(ctx, path)
	if err != nil {
		log.Warn("active lookup failed", logging.Error(err))
		return
	}
	if active != nil && active.Fingerprint != fp {
		if _, err := t.store.SupersedeActiveForPath(ctx, path, "source file replaced"); err != nil {
			log.Warn("supersede failed", logging.Error(err))
			return
		}
		log.Info("superseded job for replaced source", logging.Int64(logging.FieldJobID, active.ID))
	}

	job, err := t.store.NewJob(ctx, path, fp)
	switch {
	case errors.Is(err, queue.ErrQueueFull):
		log.Debug("queue full, keeping file pending")
		return
	case errors.Is(err, queue.ErrDuplicate):
		log.Debug("dropping duplicate of live job")
		t.forget(path)
		return
	case errors.Is(err, queue.ErrLivePath):
		// Raced another insert for the path; the rescan sorts it out.
		log.Debug("live job still tracks path, keeping file pending")
		return
	case err != nil:
		log.Error("enqueue failed", logging.Error(err))
		return
	}

	log.Info("card detected", logging.Int64(logging.FieldJobID, job.ID), logging.String("card", job.CardName))
	t.forget(path)
	if t.onEnqueued != nil {
		t.onEnqueued(job)
	}
}

func (t *Tracker) forget(path string) {
	t.mu.Lock()
	delete(t.pending, path)
	t.mu.Unlock()
}
