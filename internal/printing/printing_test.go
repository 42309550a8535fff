package printing

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cardpress/internal/config"
	"cardpress/internal/logging"
	"cardpress/internal/notifications"
	"cardpress/internal/printer"
	"cardpress/internal/queue"
	"cardpress/internal/services"
	"cardpress/internal/testsupport"
)

type fakeBackend struct {
	availableErr error
	submitID     string
	submitErr    error
	states       []printer.JobState
	pollErr      error
	pollCalls    int
	submitted    []printer.SubmitRequest
	canceled     []string
}

func (f *fakeBackend) Available(context.Context) error { return f.availableErr }

func (f *fakeBackend) Submit(_ context.Context, req printer.SubmitRequest) (string, error) {
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.submitID, nil
}

func (f *fakeBackend) Poll(context.Context, string) (printer.JobState, error) {
	if f.pollErr != nil {
		return printer.StateUnknown, f.pollErr
	}
	state := f.states[len(f.states)-1]
	if f.pollCalls < len(f.states) {
		state = f.states[f.pollCalls]
	}
	f.pollCalls++
	return state, nil
}

func (f *fakeBackend) Cancel(_ context.Context, jobID string) error {
	f.canceled = append(f.canceled, jobID)
	return nil
}

func newTestPrinter(t *testing.T, cfg *config.Config, store *queue.Store, backend *fakeBackend) *Printer {
	t.Helper()
	p := NewPrinterWithDependencies(cfg, store, logging.NewNop(), backend, notifications.NewService(cfg))
	p.pollInterval = time.Millisecond
	p.pollTimeout = 250 * time.Millisecond
	return p
}

func stagedJob(t *testing.T, cfg *config.Config, store *queue.Store, name string) *queue.Job {
	t.Helper()
	ctx := context.Background()

	source := filepath.Join(cfg.Paths.WatchDir, name)
	testsupport.WriteCardImage(t, source, 400, 560)
	job := testsupport.NewJob(t, store, source, "fp-"+name)

	artifact := filepath.Join(cfg.Paths.StagingDir, "card-artifact-"+name)
	if err := os.WriteFile(artifact, []byte("artifact"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	job.ArtifactPath = artifact
	job.Status = queue.StatusQueued
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("update job: %v", err)
	}
	return job
}

func TestPrinterExecuteArchivesSourceOnSuccess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	backend := &fakeBackend{
		submitID: "Test_Printer-42",
		states:   []printer.JobState{printer.StatePrinting, printer.StateCompleted},
	}
	p := newTestPrinter(t, cfg, store, backend)
	job := stagedJob(t, cfg, store, "black-lotus.png")

	if err := p.Prepare(context.Background(), job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := p.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if job.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want completed", job.Status)
	}
	if job.PrintJobID != "Test_Printer-42" {
		t.Fatalf("print job id = %q", job.PrintJobID)
	}
	if job.CompletedAt == nil {
		t.Fatal("expected completion timestamp")
	}
	if len(backend.submitted) != 1 || backend.submitted[0].FilePath != job.ArtifactPath {
		t.Fatalf("unexpected submissions: %+v", backend.submitted)
	}

	wantArchive := filepath.Join(cfg.Paths.ProcessedDir, "black-lotus.png")
	if job.ArchivedPath != wantArchive {
		t.Fatalf("archived path = %q, want %q", job.ArchivedPath, wantArchive)
	}
	if _, err := os.Stat(wantArchive); err != nil {
		t.Fatalf("archived file missing: %v", err)
	}
	if _, err := os.Stat(job.SourcePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("source should have moved out of the watch dir")
	}
	if _, err := os.Stat(job.ArtifactPath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("artifact should be removed after printing")
	}
}

func TestPrinterExecuteArchiveNameCollision(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	backend := &fakeBackend{submitID: "Test_Printer-7", states: []printer.JobState{printer.StateCompleted}}
	p := newTestPrinter(t, cfg, store, backend)
	job := stagedJob(t, cfg, store, "mox-ruby.png")

	existing := filepath.Join(cfg.Paths.ProcessedDir, "mox-ruby.png")
	if err := os.WriteFile(existing, []byte("earlier print"), 0o644); err != nil {
		t.Fatalf("seed collision: %v", err)
	}

	if err := p.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := filepath.Join(cfg.Paths.ProcessedDir, "mox-ruby (1).png")
	if job.ArchivedPath != want {
		t.Fatalf("archived path = %q, want %q", job.ArchivedPath, want)
	}
}

func TestPrinterExecuteAutoDeleteRemovesSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Queue.AutoDelete = true
	store := testsupport.MustOpenStore(t, cfg)
	backend := &fakeBackend{submitID: "Test_Printer-9", states: []printer.JobState{printer.StateCompleted}}
	p := newTestPrinter(t, cfg, store, backend)
	job := stagedJob(t, cfg, store, "time-walk.png")

	if err := p.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.ArchivedPath != "" {
		t.Fatalf("archived path = %q, want empty with auto delete", job.ArchivedPath)
	}
	if _, err := os.Stat(job.SourcePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("source should be deleted with auto delete enabled")
	}
}

func TestPrinterExecuteUnavailableDoesNotSubmit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	backend := &fakeBackend{
		availableErr: services.Wrap(services.ErrPrinterUnavailable, "print", "lpstat", "destination not accepting jobs", nil),
	}
	p := newTestPrinter(t, cfg, store, backend)
	job := stagedJob(t, cfg, store, "ancestral-recall.png")

	err := p.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrPrinterUnavailable) {
		t.Fatalf("Execute error = %v, want ErrPrinterUnavailable", err)
	}
	if services.CountsAgainstBudget(err) {
		t.Fatal("printer unavailability must not consume the retry budget")
	}
	if len(backend.submitted) != 0 {
		t.Fatal("must not submit when the printer is unavailable")
	}
}

func TestPrinterExecuteSupersededBeforeSubmitSkips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	backend := &fakeBackend{submitID: "Test_Printer-8", states: []printer.JobState{printer.StateCompleted}}
	p := newTestPrinter(t, cfg, store, backend)
	job := stagedJob(t, cfg, store, "replaced.png")
	artifact := job.ArtifactPath

	ctx := context.Background()
	// The source was overwritten after the print lane claimed the job.
	if err := store.MarkSuperseded(ctx, job.ID, "source file replaced"); err != nil {
		t.Fatalf("MarkSuperseded failed: %v", err)
	}

	if err := p.Execute(ctx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(backend.submitted) != 0 {
		t.Fatal("superseded job must not reach the spooler")
	}
	if job.Status != queue.StatusSuperseded {
		t.Fatalf("status = %s, want superseded", job.Status)
	}
	if _, err := os.Stat(artifact); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("stale artifact should be removed, stat err = %v", err)
	}
}

func TestPrinterExecuteSpoolerFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	backend := &fakeBackend{submitID: "Test_Printer-13", states: []printer.JobState{printer.StateFailed}}
	p := newTestPrinter(t, cfg, store, backend)
	job := stagedJob(t, cfg, store, "timetwister.png")

	err := p.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrPrintFailure) {
		t.Fatalf("Execute error = %v, want ErrPrintFailure", err)
	}
	if status := services.FailureStatus(err); status != queue.StatusFailed {
		t.Fatalf("failure status = %s, want failed", status)
	}
	if _, err := os.Stat(job.SourcePath); err != nil {
		t.Fatal("failed job must leave the source in place")
	}
}

func TestPrinterExecutePollTimeoutCancels(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	backend := &fakeBackend{submitID: "Test_Printer-21", states: []printer.JobState{printer.StatePrinting}}
	p := newTestPrinter(t, cfg, store, backend)
	p.pollTimeout = 5 * time.Millisecond
	job := stagedJob(t, cfg, store, "island.png")

	err := p.Execute(context.Background(), job)
	if !errors.Is(err, services.ErrPrintFailure) {
		t.Fatalf("Execute error = %v, want ErrPrintFailure", err)
	}
	if len(backend.canceled) != 1 || backend.canceled[0] != "Test_Printer-21" {
		t.Fatalf("expected timed-out job to be canceled, got %v", backend.canceled)
	}
}

func TestPrinterExecuteDispositionFailureFlagsAttention(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	backend := &fakeBackend{submitID: "Test_Printer-30", states: []printer.JobState{printer.StateCompleted}}
	p := newTestPrinter(t, cfg, store, backend)
	job := stagedJob(t, cfg, store, "mountain.png")

	if err := os.RemoveAll(cfg.Paths.ProcessedDir); err != nil {
		t.Fatalf("remove processed dir: %v", err)
	}

	if err := p.Execute(context.Background(), job); err != nil {
		t.Fatalf("Execute should not fail on disposition problems: %v", err)
	}
	if job.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want completed despite disposition failure", job.Status)
	}
	if !job.NeedsAttention {
		t.Fatal("expected needs_attention flag after disposition failure")
	}
	if job.AttentionReason == "" {
		t.Fatal("expected an attention reason")
	}
}

func TestPrinterPrepareRequiresArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	backend := &fakeBackend{}
	p := newTestPrinter(t, cfg, store, backend)

	source := filepath.Join(cfg.Paths.WatchDir, "no-artifact.png")
	testsupport.WriteCardImage(t, source, 400, 560)
	job := testsupport.NewJob(t, store, source, "fp-no-artifact")

	if err := p.Prepare(context.Background(), job); err == nil {
		t.Fatal("expected Prepare to reject a job with no artifact")
	}
}

func TestPrinterHealthCheckReflectsBackend(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	healthy := newTestPrinter(t, cfg, store, &fakeBackend{})
	if h := healthy.HealthCheck(context.Background()); !h.Ready {
		t.Fatalf("expected healthy printer stage, got %+v", h)
	}

	down := newTestPrinter(t, cfg, store, &fakeBackend{
		availableErr: services.Wrap(services.ErrPrinterUnavailable, "print", "lpstat", "printer offline", nil),
	})
	if h := down.HealthCheck(context.Background()); h.Ready {
		t.Fatal("expected unhealthy printer stage when backend is down")
	}
}
