package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"stash/internal/config"
	"stash/internal/connectivity"
	"stash/internal/logging"
	"stash/internal/queue"
)

const (
	defaultBackoffInitial = 500 * time.Millisecond
	defaultBackoffMax     = 5 * time.Minute
)

// Options configures a Driver.
type Options struct {
	// MaxAttempts skips items whose attempt count reached it. Zero means unlimited.
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Logger         *slog.Logger
}

// OptionsFromConfig maps the [reconcile] section onto driver options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		MaxAttempts:    cfg.Reconcile.MaxAttempts,
		BackoffInitial: time.Duration(cfg.Reconcile.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.Reconcile.BackoffMaxSeconds) * time.Second,
		Logger:         logger,
	}
}

// Result summarizes one drain pass.
type Result struct {
	Applied int
	Failed  int
	Skipped int
	// Stopped is set when the pass ended early because the tracker went
	// offline or the context was cancelled.
	Stopped bool
}

// Driver drains a queue through an Applier whenever connectivity allows.
type Driver struct {
	queue       *queue.Queue
	tracker     *connectivity.Tracker
	applier     Applier
	maxAttempts int
	logger      *slog.Logger

	backoff      *backoff.ExponentialBackOff
	resetBackoff atomic.Bool
	wake         chan struct{}

	mu          sync.Mutex
	cancelDrain context.CancelFunc
	cancelLoop  context.CancelFunc
	done        chan struct{}
	last        Result
	lastAt      time.Time
}

// NewDriver wires a driver to q, tracker and applier.
func NewDriver(q *queue.Queue, tracker *connectivity.Tracker, applier Applier, opts Options) *Driver {
	initial := opts.BackoffInitial
	if initial <= 0 {
		initial = defaultBackoffInitial
	}
	maxInterval := opts.BackoffMax
	if maxInterval <= 0 {
		maxInterval = defaultBackoffMax
	}
	if maxInterval < initial {
		maxInterval = initial
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	return &Driver{
		queue:       q,
		tracker:     tracker,
		applier:     applier,
		maxAttempts: opts.MaxAttempts,
		logger:      logging.NewComponentLogger(opts.Logger, "reconcile"),
		backoff:     b,
		wake:        make(chan struct{}, 1),
	}
}

// Start subscribes to the tracker and runs the drain loop in the background.
// A drain is scheduled immediately when the tracker is already online.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.done != nil {
		d.mu.Unlock()
		return errors.New("reconcile driver already running")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	d.cancelLoop = cancel
	d.done = make(chan struct{})
	done := d.done
	d.mu.Unlock()

	unsubscribe := d.tracker.AddListener(d.handleConnectivity)
	if d.tracker.Online() {
		d.Trigger()
	}
	go func() {
		defer close(done)
		defer unsubscribe()
		d.loop(loopCtx)
	}()
	return nil
}

// Stop cancels the loop and waits for it to exit.
func (d *Driver) Stop() {
	d.mu.Lock()
	cancel := d.cancelLoop
	done := d.done
	d.cancelLoop = nil
	d.done = nil
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (d *Driver) Running() bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.done != nil
}

// Trigger schedules a drain pass. Calls coalesce while one is pending.
func (d *Driver) Trigger() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// LastResult returns the outcome of the most recent pass run by the loop.
func (d *Driver) LastResult() (Result, time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.lastAt
}

func (d *Driver) handleConnectivity(online bool) {
	if online {
		d.resetBackoff.Store(true)
		d.Trigger()
		return
	}
	d.mu.Lock()
	cancel := d.cancelDrain
	d.mu.Unlock()
	if cancel != nil {
		d.logger.Info("connectivity lost; interrupting drain", logging.String(logging.FieldEventType, "reconcile_interrupted"))
		cancel()
	}
}

func (d *Driver) loop(ctx context.Context) {
	var retry *time.Timer
	var retryC <-chan time.Time
	stopRetry := func() {
		if retry != nil {
			retry.Stop()
		}
		retry = nil
		retryC = nil
	}
	defer stopRetry()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		case <-retryC:
			retry = nil
			retryC = nil
		}

		if d.resetBackoff.Swap(false) {
			d.backoff.Reset()
			stopRetry()
		}
		if !d.tracker.Online() {
			continue
		}

		drainCtx, cancel := context.WithCancel(ctx)
		d.mu.Lock()
		d.cancelDrain = cancel
		d.mu.Unlock()

		result := d.Drain(drainCtx)

		d.mu.Lock()
		d.cancelDrain = nil
		d.last = result
		d.lastAt = time.Now()
		d.mu.Unlock()
		cancel()

		if ctx.Err() != nil {
			return
		}
		switch {
		case result.Failed > 0 && !result.Stopped:
			wait := d.backoff.NextBackOff()
			if wait == backoff.Stop {
				continue
			}
			stopRetry()
			retry = time.NewTimer(wait)
			retryC = retry.C
			d.logger.Debug("scheduled reconcile retry",
				logging.Duration("wait", wait),
				logging.Int("failed", result.Failed),
			)
		case result.Failed == 0 && !result.Stopped:
			d.backoff.Reset()
			stopRetry()
		}
	}
}

// Drain applies a snapshot of the queue in order. Applied items are removed,
// failed items are marked with Retry, and exhausted items are skipped. The
// pass stops early once the tracker reports offline or ctx is done.
func (d *Driver) Drain(ctx context.Context) Result {
	var result Result
	items := d.queue.GetAll()
	if len(items) == 0 {
		return result
	}
	started := time.Now()
	for _, item := range items {
		if ctx.Err() != nil || !d.tracker.Online() {
			result.Stopped = true
			break
		}
		if item.Exhausted(d.maxAttempts) {
			result.Skipped++
			continue
		}

		err := d.applier.Apply(logging.WithItemID(ctx, item.ID), item)
		if err == nil {
			d.queue.Remove(item.ID)
			result.Applied++
			continue
		}
		if ctx.Err() != nil {
			// Interrupted by shutdown or connectivity loss.
			result.Stopped = true
			break
		}
		d.queue.Retry(item.ID)
		result.Failed++
		logging.WarnWithContext(d.logger, "failed to apply queued item", "reconcile_apply_failed",
			logging.String(logging.FieldItemID, item.ID),
			logging.String(logging.FieldAction, item.Action),
			logging.Int(logging.FieldAttempts, item.Attempts+1),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the reconcile endpoint and its logs"),
			logging.String(logging.FieldImpact, "item stays queued and will be retried"),
		)
	}

	d.logger.Info("reconcile pass complete",
		logging.String(logging.FieldEventType, "reconcile_pass"),
		logging.Int("applied", result.Applied),
		logging.Int("failed", result.Failed),
		logging.Int("skipped", result.Skipped),
		logging.Bool("stopped", result.Stopped),
		logging.Duration("duration", time.Since(started)),
	)
	return result
}
