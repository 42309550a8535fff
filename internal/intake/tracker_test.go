package intake

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cardpress/internal/logging"
	"cardpress/internal/queue"
	"cardpress/internal/testsupport"
	"cardpress/internal/watcher"
)

func newTracker(t *testing.T, opts ...testsupport.ConfigOption) (*Tracker, *queue.Store, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	return New(cfg, store, logging.NewNop()), store, cfg.Paths.WatchDir
}

func TestSweepEnqueuesStableFile(t *testing.T) {
	tracker, store, watchDir := newTracker(t)
	ctx := context.Background()

	path := filepath.Join(watchDir, "forest.png")
	testsupport.WriteCardImage(t, path, 300, 420)
	tracker.HandleEvent(ctx, watcher.Event{Path: path, Kind: watcher.KindCreated})
	tracker.Sweep(ctx)

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(jobs))
	}
	if jobs[0].SourcePath != path || jobs[0].Status != queue.StatusDetected {
		t.Fatalf("unexpected job %#v", jobs[0])
	}
	if jobs[0].Fingerprint == "" {
		t.Fatal("expected fingerprint to be recorded")
	}
	if tracker.PendingCount() != 0 {
		t.Fatalf("expected pending map drained, got %d", tracker.PendingCount())
	}
}

func TestSweepHonorsDebounce(t *testing.T) {
	tracker, store, watchDir := newTracker(t)
	tracker.debounce = 2 * time.Second
	base := time.Now()
	tracker.now = func() time.Time { return base }
	ctx := context.Background()

	path := filepath.Join(watchDir, "still-writing.png")
	testsupport.WriteCardImage(t, path, 300, 420)
	tracker.HandleEvent(ctx, watcher.Event{Path: path, Kind: watcher.KindCreated})

	tracker.Sweep(ctx)
	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatal("file must not be enqueued inside the quiet window")
	}

	tracker.now = func() time.Time { return base.Add(3 * time.Second) }
	tracker.Sweep(ctx)
	jobs, err = store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected job after quiet window, got %d", len(jobs))
	}
}

func TestUnsupportedExtensionIgnored(t *testing.T) {
	tracker, store, watchDir := newTracker(t)
	ctx := context.Background()

	path := filepath.Join(watchDir, "notes.txt")
	testsupport.WriteFile(t, path, 64)
	tracker.HandleEvent(ctx, watcher.Event{Path: path, Kind: watcher.KindCreated})
	tracker.Sweep(ctx)

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected no jobs for unsupported extension, got %d", len(jobs))
	}
	if tracker.PendingCount() != 0 {
		t.Fatal("unsupported files must not be tracked")
	}
}

func TestDuplicateContentDropped(t *testing.T) {
	tracker, store, watchDir := newTracker(t)
	ctx := context.Background()

	path := filepath.Join(watchDir, "island.png")
	testsupport.WriteCardImage(t, path, 300, 420)
	tracker.HandleEvent(ctx, watcher.Event{Path: path, Kind: watcher.KindCreated})
	tracker.Sweep(ctx)

	// The same file seen again while its job is live stays deduplicated.
	tracker.HandleEvent(ctx, watcher.Event{Path: path, Kind: watcher.KindModified})
	tracker.Sweep(ctx)

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected one job, got %d", len(jobs))
	}
}

func TestCompletedContentNotReprocessed(t *testing.T) {
	tracker, store, watchDir := newTracker(t)
	ctx := context.Background()

	path := filepath.Join(watchDir, "plains.png")
	testsupport.WriteCardImage(t, path, 300, 420)
	tracker.HandleEvent(ctx, watcher.Event{Path: path, Kind: watcher.KindCreated})
	tracker.Sweep(ctx)

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	jobs[0].Status = queue.StatusCompleted
	if err := store.Update(ctx, jobs[0]); err != nil {
		t.Fatalf("Update: %v", err)
	}

	tracker.HandleEvent(ctx, watcher.Event{Path: path, Kind: watcher.KindModified})
	tracker.Sweep(ctx)

	jobs, err = store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected completed job to suppress reprocessing, got %d jobs", len(jobs))
	}
}

func TestReplacedContentSupersedes(t *testing.T) {
	tracker, store, watchDir := newTracker(t)
	ctx := context.Background()

	path := filepath.Join(watchDir, "swamp.png")
	testsupport.WriteCardImage(t, path, 300, 420)
	tracker.HandleEvent(ctx, watcher.Event{Path: path, Kind: watcher.KindCreated})
	tracker.Sweep(ctx)

	// Same path, new pixels.
	testsupport.WriteCardImage(t, path, 310, 430)
	tracker.HandleEvent(ctx, watcher.Event{Path: path, Kind: watcher.KindModified})
	tracker.Sweep(ctx)

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected two jobs, got %d", len(jobs))
	}
	byStatus := map[queue.Status]int{}
	for _, job := range jobs {
		byStatus[job.Status]++
	}
	if byStatus[queue.StatusSuperseded] != 1 || byStatus[queue.StatusDetected] != 1 {
		t.Fatalf("unexpected statuses %v", byStatus)
	}
}

func TestDeletedSourceSupersedesLiveJob(t *testing.T) {
	tracker, store, watchDir := newTracker(t)
	ctx := context.Background()

	path := filepath.Join(watchDir, "mountain.png")
	testsupport.WriteCardImage(t, path, 300, 420)
	tracker.HandleEvent(ctx, watcher.Event{Path: path, Kind: watcher.KindCreated})
	tracker.Sweep(ctx)

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	tracker.HandleEvent(ctx, watcher.Event{Path: path, Kind: watcher.KindDeleted})

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Status != queue.StatusSuperseded {
		t.Fatalf("expected superseded job, got %#v", jobs[0])
	}
}

func TestQueueFullKeepsFilePending(t *testing.T) {
	tracker, store, watchDir := newTracker(t, testsupport.WithQueueCapacity(1))
	ctx := context.Background()

	first := filepath.Join(watchDir, "first.png")
	second := filepath.Join(watchDir, "second.png")
	testsupport.WriteCardImage(t, first, 300, 420)
	testsupport.WriteCardImage(t, second, 320, 440)
	tracker.HandleEvent(ctx, watcher.Event{Path: first, Kind: watcher.KindCreated})
	tracker.HandleEvent(ctx, watcher.Event{Path: second, Kind: watcher.KindCreated})
	tracker.Sweep(ctx)

	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected capacity to cap jobs at 1, got %d", len(jobs))
	}
	if tracker.PendingCount() != 1 {
		t.Fatalf("expected overflow file to stay pending, got %d", tracker.PendingCount())
	}

	// Capacity frees up; the next sweep picks the file up.
	jobs[0].Status = queue.StatusCompleted
	if err := store.Update(ctx, jobs[0]); err != nil {
		t.Fatalf("Update: %v", err)
	}
	tracker.Sweep(ctx)

	jobs, err = store.List(ctx, queue.StatusDetected)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected pending file enqueued after capacity freed, got %d", len(jobs))
	}
	if tracker.PendingCount() != 0 {
		t.Fatalf("expected pending map drained, got %d", tracker.PendingCount())
	}
}

func TestPauseSuspendsPromotion(t *testing.T) {
	tracker, store, watchDir := newTracker(t)
	ctx := context.Background()

	path := filepath.Join(watchDir, "paused.png")
	testsupport.WriteCardImage(t, path, 300, 420)
	tracker.HandleEvent(ctx, watcher.Event{Path: path, Kind: watcher.KindCreated})

	tracker.Pause()
	tracker.Sweep(ctx)
	jobs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatal("paused tracker must not enqueue")
	}

	tracker.Resume()
	tracker.Sweep(ctx)
	jobs, err = store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected job after resume, got %d", len(jobs))
	}
}
