package normalizing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	"golang.org/x/sys/unix"

	"cardpress/internal/config"
	"cardpress/internal/fingerprint"
	"cardpress/internal/imaging"
	"cardpress/internal/logging"
	"cardpress/internal/queue"
	"cardpress/internal/services"
	"cardpress/internal/stage"
)

// Normalizer converts detected card sources into print-ready artifacts.
type Normalizer struct {
	store   *queue.Store
	cfg     *config.Config
	logger  *slog.Logger
	opts    imaging.Options
	timeout time.Duration
}

// NewNormalizer constructs the normalize stage handler.
func NewNormalizer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Normalizer {
	stageLogger := logger
	if stageLogger != nil {
		stageLogger = stageLogger.With(logging.String(logging.FieldComponent, "normalizer"))
	}
	return &Normalizer{
		store:   store,
		cfg:     cfg,
		logger:  stageLogger,
		opts:    imaging.OptionsFromConfig(cfg),
		timeout: time.Duration(cfg.Queue.NormalizeTimeoutSeconds) * time.Second,
	}
}

func (n *Normalizer) Prepare(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, n.logger)
	job.InitProgress("Normalizing", "Preparing image normalization")
	if _, err := os.Stat(job.SourcePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrStaleSource, "normalize", "stat source",
				fmt.Sprintf("source file removed before normalization: %s", job.SourcePath), nil)
		}
		return services.Wrap(services.ErrTransient, "normalize", "stat source", job.SourcePath, err)
	}
	logger.Info("starting normalization preparation",
		logging.String(logging.FieldSourcePath, job.SourcePath),
		logging.String("card_name", job.CardName),
	)
	return nil
}

func (n *Normalizer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, n.logger)

	job.Status = queue.StatusNormalizing
	job.SetProgress("Normalizing", "Reading source image", 10)
	if err := n.store.Update(ctx, job); err != nil {
		return persistErr("persist status", err)
	}

	raw, err := os.ReadFile(job.SourcePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return services.Wrap(services.ErrStaleSource, "normalize", "read source",
				fmt.Sprintf("source file removed mid-normalization: %s", job.SourcePath), nil)
		}
		return services.Wrap(services.ErrTransient, "normalize", "read source", job.SourcePath, err)
	}
	if fp := fingerprint.Bytes(raw); fp != job.Fingerprint {
		return services.Wrap(services.ErrStaleSource, "normalize", "verify fingerprint",
			"source file changed since intake; a rescan will pick up the new content", nil)
	}

	job.SetProgress("Normalizing", "Resizing to card dimensions", 30)
	if err := n.store.Update(ctx, job); err != nil {
		return persistErr("persist progress", err)
	}

	artifact, err := n.normalizeWithTimeout(ctx, raw)
	if err != nil {
		return err
	}

	artifactPath := filepath.Join(n.cfg.Paths.StagingDir,
		fmt.Sprintf("card-%d-%s%s", job.ID, fingerprint.Short(job.Fingerprint), artifact.Extension()))
	if err := writeArtifact(artifactPath, artifact.Data); err != nil {
		return services.Wrap(services.ErrTransient, "normalize", "write artifact", artifactPath, err)
	}

	current, err := n.store.GetByID(ctx, job.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "normalize", "recheck supersession", "", err)
	}
	if current != nil && current.Status == queue.StatusSuperseded {
		if removeErr := os.Remove(artifactPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			logger.Warn("failed to remove artifact for superseded job",
				logging.String("artifact_path", artifactPath), logging.Error(removeErr))
		}
		*job = *current
		logger.Info("job superseded during normalization, artifact discarded",
			logging.String(logging.FieldSourcePath, job.SourcePath))
		return nil
	}

	job.ArtifactPath = artifactPath
	job.SourceWidth = artifact.SourceWidth
	job.SourceHeight = artifact.SourceHeight
	job.SetProgress("Normalized", "Artifact ready for printing", 100)
	logger.Info("normalization complete",
		logging.String("artifact_path", artifactPath),
		logging.Int("source_width", artifact.SourceWidth),
		logging.Int("source_height", artifact.SourceHeight),
		logging.Int("artifact_width", artifact.Width),
		logging.Int("artifact_height", artifact.Height),
		logging.String("source_format", artifact.SourceFormat),
	)
	return nil
}

// HealthCheck verifies the staging directory accepts new artifacts.
func (n *Normalizer) HealthCheck(ctx context.Context) stage.Health {
	staging := n.cfg.Paths.StagingDir
	if staging == "" {
		return stage.Unhealthy("normalizer", "staging directory not configured")
	}
	if err := unix.Access(staging, unix.W_OK|unix.X_OK); err != nil {
		return stage.Unhealthy("normalizer", fmt.Sprintf("staging directory not writable: %v", err))
	}
	return stage.Healthy("normalizer")
}

// persistErr classifies a failed status write. A terminal-state refusal
// means the job was superseded while the stage ran, which the failure
// handler resolves as a supersession rather than a retry.
func persistErr(op string, err error) error {
	if errors.Is(err, queue.ErrTerminalState) {
		return services.Wrap(services.ErrStaleSource, "normalize", op, "job superseded mid-stage", err)
	}
	return services.Wrap(services.ErrTransient, "normalize", op, "", err)
}

// normalizeWithTimeout bounds a single imaging run so a pathological source
// cannot wedge a worker. The imaging pipeline is CPU-bound and cannot observe
// context cancellation, so on timeout the goroutine is abandoned and its
// result dropped.
func (n *Normalizer) normalizeWithTimeout(ctx context.Context, raw []byte) (imaging.Artifact, error) {
	if n.timeout <= 0 {
		return imaging.Normalize(raw, n.opts)
	}

	type result struct {
		artifact imaging.Artifact
		err      error
	}
	done := make(chan result, 1)
	go func() {
		artifact, err := imaging.Normalize(raw, n.opts)
		done <- result{artifact: artifact, err: err}
	}()

	timer := time.NewTimer(n.timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		return res.artifact, res.err
	case <-ctx.Done():
		return imaging.Artifact{}, ctx.Err()
	case <-timer.C:
		return imaging.Artifact{}, services.Wrap(services.ErrTimeout, "normalize", "resize",
			fmt.Sprintf("normalization exceeded %s", n.timeout), nil)
	}
}

// writeArtifact commits data via a temp file and rename so readers never see
// a partially written artifact.
func writeArtifact(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
