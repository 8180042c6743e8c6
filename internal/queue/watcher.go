package queue

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"stash/internal/logging"
)

const defaultWatchDebounce = 100 * time.Millisecond

// Watcher reloads a queue when the database files change on disk, picking up
// commits made by other processes.
type Watcher struct {
	queue    *Queue
	dir      string
	base     string
	debounce time.Duration
	logger   *slog.Logger
	onChange func()
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Debounce time.Duration
	Logger   *slog.Logger
	// OnChange runs after a reload that picked up a newer version.
	OnChange func()
}

// NewWatcher watches the database at dbPath (and its WAL and journal siblings).
func NewWatcher(q *Queue, dbPath string, opts WatcherOptions) *Watcher {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultWatchDebounce
	}
	return &Watcher{
		queue:    q,
		dir:      filepath.Dir(dbPath),
		base:     filepath.Base(dbPath),
		debounce: debounce,
		logger:   logging.NewComponentLogger(opts.Logger, "queue-watcher"),
		onChange: opts.OnChange,
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("queue watcher started",
		logging.String(logging.FieldEventType, "queue_watcher_started"),
		logging.String("dir", w.dir),
	)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.relevant(event) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logging.WarnWithContext(w.logger, "queue watcher error", "queue_watcher_error",
				logging.Error(err),
				logging.String(logging.FieldImpact, "changes from other processes may be picked up late"),
			)
		case <-timer.C:
			w.check()
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return false
	}
	return strings.HasPrefix(filepath.Base(event.Name), w.base)
}

func (w *Watcher) check() {
	if !w.queue.ReloadIfChanged() {
		return
	}
	w.logger.Debug("queue reloaded from disk",
		logging.Int("items", w.queue.Len()),
		logging.Int64("version", w.queue.Version()),
	)
	if w.onChange != nil {
		w.onChange()
	}
}
