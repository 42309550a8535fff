package testsupport

import (
	"context"
	"testing"

	"cardpress/internal/config"
	"cardpress/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewJob creates a job for tests using the provided store.
func NewJob(t testing.TB, store *queue.Store, sourcePath, fingerprint string) *queue.Job {
	t.Helper()

	job, err := store.NewJob(context.Background(), sourcePath, fingerprint)
	if err != nil {
		t.Fatalf("store.NewJob: %v", err)
	}
	return job
}
