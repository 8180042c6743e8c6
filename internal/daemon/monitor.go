package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"stash/internal/connectivity"
	"stash/internal/logging"
)

// connectivityMonitor runs a connectivity source against the tracker in the
// background.
type connectivityMonitor struct {
	tracker *connectivity.Tracker
	source  connectivity.Source
	logger  *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

func newConnectivityMonitor(tracker *connectivity.Tracker, source connectivity.Source, logger *slog.Logger) *connectivityMonitor {
	if tracker == nil || source == nil {
		return nil
	}
	return &connectivityMonitor{
		tracker: tracker,
		source:  source,
		logger:  logging.NewComponentLogger(logger, "connectivity-monitor"),
	}
}

// Start begins feeding source events into the tracker.
func (m *connectivityMonitor) Start(ctx context.Context) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done
	m.running = true

	go func() {
		defer close(done)
		err := connectivity.Attach(runCtx, m.tracker, m.source)
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.WarnWithContext(m.logger, "connectivity source stopped", "connectivity_source_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "ensure the daemon may open netlink sockets or set connectivity.source = \"static\""),
				logging.String(logging.FieldImpact, "online state frozen at its last value"),
			)
		}
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
	}()

	m.logger.Info("connectivity monitor started",
		logging.String(logging.FieldEventType, "connectivity_monitor_started"),
		logging.Bool(logging.FieldOnline, m.tracker.Online()),
	)
}

// Stop shuts down the source and waits for it to return.
func (m *connectivityMonitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.logger.Info("connectivity monitor stopped",
		logging.String(logging.FieldEventType, "connectivity_monitor_stopped"),
	)
}

// Running reports whether the source loop is active.
func (m *connectivityMonitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
