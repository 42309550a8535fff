// Package watcher surfaces filesystem activity in the drop directory as a
// stream of intake events.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"cardpress/internal/logging"
)

// Kind classifies a filesystem event.
type Kind string

const (
	KindCreated  Kind = "created"
	KindModified Kind = "modified"
	KindDeleted  Kind = "deleted"
)

// Event describes a change to a file in the watch directory.
type Event struct {
	Path string
	Kind Kind
}

// Watcher wraps fsnotify for a single directory and synthesizes created
// events for files already present when watching starts.
type Watcher struct {
	dir             string
	processExisting bool
	logger          *slog.Logger
	events          chan Event
}

// New constructs a watcher for the given directory.
func New(dir string, processExisting bool, logger *slog.Logger) *Watcher {
	return &Watcher{
		dir:             dir,
		processExisting: processExisting,
		logger:          logging.NewComponentLogger(logger, "watcher"),
		events:          make(chan Event, 256),
	}
}

// Events returns the channel intake consumes.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Run watches until the context is canceled. The events channel is closed on
// return.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.events)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %q: %w", w.dir, err)
	}

	if w.processExisting {
		if err := w.scanExisting(ctx); err != nil {
			return err
		}
	}

	w.logger.Info("watching for card images", logging.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event, relevant := translate(ev); relevant {
				select {
				case w.events <- event:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", logging.Error(err))
		}
	}
}

// scanExisting emits created events for files already in the directory so a
// restart does not strand previously dropped cards.
func (w *Watcher) scanExisting(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scan %q: %w", w.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		select {
		case w.events <- Event{Path: filepath.Join(w.dir, entry.Name()), Kind: KindCreated}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func translate(ev fsnotify.Event) (Event, bool) {
	switch {
	case ev.Op.Has(fsnotify.Create):
		return Event{Path: ev.Name, Kind: KindCreated}, true
	case ev.Op.Has(fsnotify.Write):
		return Event{Path: ev.Name, Kind: KindModified}, true
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		return Event{Path: ev.Name, Kind: KindDeleted}, true
	default:
		return Event{}, false
	}
}
