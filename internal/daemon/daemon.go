package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"stash/internal/config"
	"stash/internal/connectivity"
	"stash/internal/kvstore"
	"stash/internal/logging"
	"stash/internal/queue"
	"stash/internal/reconcile"
)

// Deps are the collaborators the daemon coordinates. Source and Applier are
// optional: without a source the tracker keeps its seeded state, without an
// applier the queue is only held, never drained.
type Deps struct {
	Store   *kvstore.Store
	Queue   *queue.Queue
	Tracker *connectivity.Tracker
	Source  connectivity.Source
	Applier reconcile.Applier
}

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *kvstore.Store
	queue   *queue.Queue
	tracker *connectivity.Tracker
	monitor *connectivityMonitor
	driver  *reconcile.Driver
	watcher *queue.Watcher

	lockPath string
	lock     *flock.Flock

	running   atomic.Bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startedAt time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	StartedAt     time.Time
	Online        bool
	SourceRunning bool
	Reconciling   bool
	Queue         queue.Summary
	QueueVersion  int64
	LastPass      reconcile.Result
	LastPassAt    time.Time
	Usage         kvstore.Usage
	DatabasePath  string
	LockFilePath  string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Store == nil || deps.Queue == nil || deps.Tracker == nil {
		return nil, errors.New("daemon requires config, store, queue, and tracker")
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    deps.Store,
		queue:    deps.Queue,
		tracker:  deps.Tracker,
		monitor:  newConnectivityMonitor(deps.Tracker, deps.Source, logger),
		lockPath: cfg.DaemonLockPath(),
		lock:     flock.New(cfg.DaemonLockPath()),
	}
	if deps.Applier != nil {
		d.driver = reconcile.NewDriver(deps.Queue, deps.Tracker, deps.Applier, reconcile.OptionsFromConfig(cfg, logger))
	}
	if cfg.Queue.Watch {
		var onChange func()
		if d.driver != nil {
			onChange = d.driver.Trigger
		}
		d.watcher = queue.NewWatcher(deps.Queue, cfg.DatabasePath(), queue.WatcherOptions{
			Debounce: time.Duration(cfg.Queue.WatchDebounceMs) * time.Millisecond,
			Logger:   logger,
			OnChange: onChange,
		})
	}
	return d, nil
}

// Start acquires the daemon lock and launches the background services.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another stashd instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	d.monitor.Start(d.ctx)
	if d.watcher != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.watcher.Run(d.ctx); err != nil {
				logging.WarnWithContext(d.logger, "queue watcher stopped", "queue_watch_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check inotify limits or set queue.watch = false"),
					logging.String(logging.FieldImpact, "writes from other processes are picked up on the next local mutation"),
				)
			}
		}()
	}
	if d.driver != nil {
		if err := d.driver.Start(d.ctx); err != nil {
			d.shutdown()
			return fmt.Errorf("start reconcile driver: %w", err)
		}
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("stash daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.Bool(logging.FieldOnline, d.tracker.Online()),
		logging.Bool("reconcile", d.driver != nil),
		logging.Int("queued", d.queue.Len()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.shutdown()
	d.running.Store(false)
	d.logger.Info("stash daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

func (d *Daemon) shutdown() {
	if d.driver != nil {
		d.driver.Stop()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.monitor.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock",
			logging.Error(err),
			logging.String(logging.FieldEventType, "daemon_unlock_failed"),
			logging.String(logging.FieldErrorHint, "remove the lock file if no stashd process is running"),
			logging.String(logging.FieldImpact, "next daemon start may report an existing instance"),
		)
	}
	d.ctx = nil
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// RequestDrain asks the reconcile loop for a pass. Passes never overlap; a
// request made while one is running queues at most one more.
func (d *Daemon) RequestDrain() error {
	if d.driver == nil {
		return reconcile.ErrNotConfigured
	}
	d.driver.Trigger()
	return nil
}

// LockPath returns the daemon lock file.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:       d.running.Load(),
		StartedAt:     d.startedAt,
		Online:        d.tracker.Online(),
		SourceRunning: d.monitor.Running(),
		Queue:         d.queue.Summary(d.cfg.Reconcile.MaxAttempts),
		QueueVersion:  d.queue.Version(),
		DatabasePath:  d.cfg.DatabasePath(),
		LockFilePath:  d.lockPath,
	}
	if d.driver != nil {
		status.Reconciling = d.driver.Running()
		status.LastPass, status.LastPassAt = d.driver.LastResult()
	}
	if usage, ok := d.store.Usage(); ok {
		status.Usage = usage
	}
	return status
}
