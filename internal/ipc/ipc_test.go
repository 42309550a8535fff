package ipc_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cardpress/internal/daemon"
	"cardpress/internal/ipc"
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

func TestIPCServerClient(t *testing.T) {
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
	t.Cleanup(cancel)

	// The daemon is deliberately left stopped so queue statuses stay put
	// while the RPC surface is exercised.
	socket := filepath.Join(cfg.Paths.LogDir, "cardpressd.sock")
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(func() {
		srv.Close()
	})

	time.Sleep(50 * time.Millisecond)

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
	})

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to report stopped")
	}
	if status.Paused {
		t.Fatal("expected intake to start unpaused")
	}
	if !strings.HasSuffix(status.QueueDBPath, "queue.db") {
		t.Fatalf("unexpected queue db path %q", status.QueueDBPath)
	}

	pauseResp, err := client.Pause()
	if err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if !pauseResp.Paused {
		t.Fatal("expected Paused=true after Pause")
	}
	resumeResp, err := client.Resume()
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if resumeResp.Paused {
		t.Fatal("expected Paused=false after Resume")
	}

	jobA, err := store.NewJob(ctx, filepath.Join(cfg.Paths.WatchDir, "forest.png"), "fp-a")
	if err != nil {
		t.Fatalf("NewJob A: %v", err)
	}
	jobB, err := store.NewJob(ctx, filepath.Join(cfg.Paths.WatchDir, "island.png"), "fp-b")
	if err != nil {
		t.Fatalf("NewJob B: %v", err)
	}
	jobB.Status = queue.StatusFailed
	if err := store.Update(ctx, jobB); err != nil {
		t.Fatalf("Update jobB: %v", err)
	}
	jobC, err := store.NewJob(ctx, filepath.Join(cfg.Paths.WatchDir, "swamp.png"), "fp-c")
	if err != nil {
		t.Fatalf("NewJob C: %v", err)
	}
	jobC.Status = queue.StatusPrinting
	if err := store.Update(ctx, jobC); err != nil {
		t.Fatalf("Update jobC: %v", err)
	}

	listResp, err := client.QueueList(nil)
	if err != nil {
		t.Fatalf("QueueList failed: %v", err)
	}
	if len(listResp.Jobs) != 3 {
		t.Fatalf("expected 3 queue jobs, got %d", len(listResp.Jobs))
	}

	failedResp, err := client.QueueList([]string{string(queue.StatusFailed)})
	if err != nil {
		t.Fatalf("QueueList failed filter: %v", err)
	}
	if len(failedResp.Jobs) != 1 || failedResp.Jobs[0].ID != jobB.ID {
		t.Fatalf("expected failed job %d", jobB.ID)
	}

	describeResp, err := client.QueueDescribe(jobA.ID)
	if err != nil {
		t.Fatalf("QueueDescribe failed: %v", err)
	}
	if describeResp.Job.ID != jobA.ID || describeResp.Job.CardName == "" {
		t.Fatalf("unexpected describe response: %#v", describeResp.Job)
	}

	resetResp, err := client.QueueReset()
	if err != nil {
		t.Fatalf("QueueReset failed: %v", err)
	}
	if resetResp.Updated != 1 {
		t.Fatalf("expected 1 job reset, got %d", resetResp.Updated)
	}
	updatedC, err := store.GetByID(ctx, jobC.ID)
	if err != nil {
		t.Fatalf("GetByID jobC: %v", err)
	}
	if updatedC.Status != queue.StatusQueued {
		t.Fatalf("expected jobC back at queued after reset, got %s", updatedC.Status)
	}

	retryResp, err := client.QueueRetry(nil)
	if err != nil {
		t.Fatalf("QueueRetry failed: %v", err)
	}
	if retryResp.Updated != 1 {
		t.Fatalf("expected 1 retried job, got %d", retryResp.Updated)
	}

	healthResp, err := client.QueueHealth()
	if err != nil {
		t.Fatalf("QueueHealth failed: %v", err)
	}
	if healthResp.Total != 3 {
		t.Fatalf("unexpected health response: %#v", healthResp)
	}

	dbHealth, err := client.DatabaseHealth()
	if err != nil {
		t.Fatalf("DatabaseHealth failed: %v", err)
	}
	if !strings.HasSuffix(dbHealth.DBPath, "queue.db") {
		t.Fatalf("unexpected db path: %s", dbHealth.DBPath)
	}

	notifyResp, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification failed: %v", err)
	}
	if notifyResp.Sent || notifyResp.Message != "ntfy topic not configured" {
		t.Fatalf("unexpected notification response: %#v", notifyResp)
	}

	removeResp, err := client.QueueRemove([]int64{jobC.ID})
	if err != nil {
		t.Fatalf("QueueRemove failed: %v", err)
	}
	if removeResp.Removed != 1 {
		t.Fatalf("expected 1 job removed, got %d", removeResp.Removed)
	}

	clearResp, err := client.QueueClear()
	if err != nil {
		t.Fatalf("QueueClear failed: %v", err)
	}
	if clearResp.Removed != 2 {
		t.Fatalf("expected 2 jobs cleared, got %d", clearResp.Removed)
	}

	stopResp, err := client.Stop()
	if err != nil {
		t.Fatalf("Stop RPC failed: %v", err)
	}
	if !stopResp.Stopped {
		t.Fatal("expected stop response to be true")
	}

	select {
	case <-srv.StopRequested():
	case <-time.After(2 * time.Second):
		t.Fatal("expected stop request signal")
	}
}
