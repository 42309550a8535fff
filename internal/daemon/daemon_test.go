package daemon_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"cardpress/internal/daemon"
	"cardpress/internal/logging"
	"cardpress/internal/queue"
	"cardpress/internal/stage"
	"cardpress/internal/testsupport"
	"cardpress/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *queue.Job) error { return nil }
func (noopStage) Execute(context.Context, *queue.Job) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{Normalizer: noopStage{}, Printer: noopStage{}})
	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status := d.Status(ctx)
	if !status.Running {
		t.Fatal("expected daemon to report running")
	}
	if status.Paused {
		t.Fatal("expected intake to start unpaused")
	}
	if status.QueueDBPath != filepath.Join(cfg.Paths.StagingDir, "queue.db") {
		t.Fatalf("unexpected queue db path %q", status.QueueDBPath)
	}

	// Second start should fail
	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	d.Stop()
	time.Sleep(50 * time.Millisecond)
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
}

func TestDaemonPauseResume(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{Normalizer: noopStage{}, Printer: noopStage{}})
	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if d.Paused() {
		t.Fatal("expected unpaused before start")
	}
	d.Pause()
	if !d.Paused() {
		t.Fatal("expected Paused after Pause")
	}
	d.Resume()
	if d.Paused() {
		t.Fatal("expected unpaused after Resume")
	}
}

func TestDaemonQueueOperations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{Normalizer: noopStage{}, Printer: noopStage{}})
	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	ctx := context.Background()
	job := testsupport.NewJob(t, store, filepath.Join(cfg.Paths.WatchDir, "black-lotus.png"), "fp-lotus")
	job.Status = queue.StatusFailed
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update: %v", err)
	}

	jobs, err := d.ListQueue(ctx, nil)
	if err != nil {
		t.Fatalf("ListQueue: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	got, err := d.GetQueueJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetQueueJob: %v", err)
	}
	if got == nil || got.ID != job.ID {
		t.Fatalf("GetQueueJob returned %+v", got)
	}

	retried, err := d.RetryFailed(ctx, nil)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if retried != 1 {
		t.Fatalf("expected 1 retried job, got %d", retried)
	}

	health, err := d.QueueHealth(ctx)
	if err != nil {
		t.Fatalf("QueueHealth: %v", err)
	}
	if health.Total != 1 {
		t.Fatalf("expected total 1, got %d", health.Total)
	}

	removed, err := d.RemoveJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("RemoveJob: %v", err)
	}
	if !removed {
		t.Fatal("expected job removal")
	}
}

func TestDaemonTestNotificationUnconfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{Normalizer: noopStage{}, Printer: noopStage{}})
	d, err := daemon.New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	ok, detail, err := d.TestNotification(context.Background())
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if ok {
		t.Fatal("expected failure without configured topic")
	}
	if detail != "ntfy topic not configured" {
		t.Fatalf("unexpected detail %q", detail)
	}
}
