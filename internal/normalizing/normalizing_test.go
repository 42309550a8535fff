package normalizing_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"cardpress/internal/fingerprint"
	"cardpress/internal/logging"
	"cardpress/internal/normalizing"
	"cardpress/internal/queue"
	"cardpress/internal/services"
	"cardpress/internal/testsupport"
)

func TestNormalizerProducesArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	source := filepath.Join(cfg.Paths.WatchDir, "black-lotus.png")
	testsupport.WriteCardImage(t, source, 800, 1120)
	fp, err := fingerprint.File(source)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	job := testsupport.NewJob(t, store, source, fp)

	normalizer := normalizing.NewNormalizer(cfg, store, logging.NewNop())
	if err := normalizer.Prepare(ctx, job); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := normalizer.Execute(ctx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if job.ArtifactPath == "" {
		t.Fatal("expected artifact path to be recorded")
	}
	if filepath.Dir(job.ArtifactPath) != filepath.Clean(cfg.Paths.StagingDir) {
		t.Fatalf("artifact %s not in staging dir %s", job.ArtifactPath, cfg.Paths.StagingDir)
	}
	if _, err := os.Stat(job.ArtifactPath); err != nil {
		t.Fatalf("artifact file missing: %v", err)
	}
	if job.SourceWidth != 800 || job.SourceHeight != 1120 {
		t.Fatalf("source dimensions = %dx%d, want 800x1120", job.SourceWidth, job.SourceHeight)
	}
	if job.ProgressPercent != 100 {
		t.Fatalf("progress percent = %v, want 100", job.ProgressPercent)
	}

	entries, err := os.ReadDir(cfg.Paths.StagingDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	for _, entry := range entries {
		if filepath.Ext(entry.Name()) == ".tmp" {
			t.Fatalf("leftover temp file in staging dir: %s", entry.Name())
		}
	}
}

func TestNormalizerPrepareRejectsMissingSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	source := filepath.Join(cfg.Paths.WatchDir, "ghost.png")
	job := testsupport.NewJob(t, store, source, "deadbeef")

	normalizer := normalizing.NewNormalizer(cfg, store, logging.NewNop())
	err := normalizer.Prepare(context.Background(), job)
	if !errors.Is(err, services.ErrStaleSource) {
		t.Fatalf("Prepare error = %v, want ErrStaleSource", err)
	}
}

func TestNormalizerExecuteRejectsChangedFingerprint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	source := filepath.Join(cfg.Paths.WatchDir, "mox-pearl.png")
	testsupport.WriteCardImage(t, source, 800, 1120)
	job := testsupport.NewJob(t, store, source, "fingerprint-from-an-older-drop")

	normalizer := normalizing.NewNormalizer(cfg, store, logging.NewNop())
	err := normalizer.Execute(ctx, job)
	if !errors.Is(err, services.ErrStaleSource) {
		t.Fatalf("Execute error = %v, want ErrStaleSource", err)
	}
	if errors.Is(err, services.ErrInvalidImage) {
		t.Fatal("fingerprint mismatch must not classify as invalid image")
	}
}

func TestNormalizerExecuteQuarantinesUndecodableSource(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	source := filepath.Join(cfg.Paths.WatchDir, "not-an-image.png")
	garbage := []byte("this is not image data at all")
	if err := os.WriteFile(source, garbage, 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	job := testsupport.NewJob(t, store, source, fingerprint.Bytes(garbage))

	normalizer := normalizing.NewNormalizer(cfg, store, logging.NewNop())
	err := normalizer.Execute(ctx, job)
	if !errors.Is(err, services.ErrInvalidImage) {
		t.Fatalf("Execute error = %v, want ErrInvalidImage", err)
	}
	if status := services.FailureStatus(err); status != queue.StatusQuarantined {
		t.Fatalf("failure status = %s, want quarantined", status)
	}
}

func TestNormalizerDiscardsArtifactWhenSuperseded(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	source := filepath.Join(cfg.Paths.WatchDir, "time-walk.png")
	testsupport.WriteCardImage(t, source, 800, 1120)
	fp, err := fingerprint.File(source)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	job := testsupport.NewJob(t, store, source, fp)

	// Another drop of the same path supersedes this job before Execute commits.
	if err := store.MarkSuperseded(ctx, job.ID, "replaced by newer drop"); err != nil {
		t.Fatalf("MarkSuperseded: %v", err)
	}

	normalizer := normalizing.NewNormalizer(cfg, store, logging.NewNop())
	if err := normalizer.Execute(ctx, job); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if job.Status != queue.StatusSuperseded {
		t.Fatalf("status = %s, want superseded", job.Status)
	}

	entries, err := os.ReadDir(cfg.Paths.StagingDir)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	for _, entry := range entries {
		if entry.Name() != "queue.db" && entry.Name() != "queue.db-wal" && entry.Name() != "queue.db-shm" {
			t.Fatalf("unexpected file left in staging dir: %s", entry.Name())
		}
	}
}

func TestNormalizerHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	normalizer := normalizing.NewNormalizer(cfg, store, logging.NewNop())
	if health := normalizer.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy stage, got %+v", health)
	}

	cfg.Paths.StagingDir = filepath.Join(testsupport.BaseDir(cfg), "does-not-exist")
	broken := normalizing.NewNormalizer(cfg, store, logging.NewNop())
	if health := broken.HealthCheck(context.Background()); health.Ready {
		t.Fatal("expected unhealthy stage for missing staging dir")
	}
}
