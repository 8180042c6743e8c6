package connectivity

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"stash/internal/logging"
)

// Listener receives the new connectivity state.
type Listener func(online bool)

type registration struct {
	fn     Listener
	active atomic.Bool
}

// Tracker holds the cached online state and its listeners.
type Tracker struct {
	logger *slog.Logger

	mu          sync.Mutex
	online      bool
	listeners   []*registration
	pending     []bool
	dispatching bool
}

// NewTracker returns a tracker seeded with the environment's current state.
func NewTracker(initial bool, logger *slog.Logger) *Tracker {
	return &Tracker{
		online: initial,
		logger: logging.NewComponentLogger(logger, "connectivity"),
	}
}

// Online returns the cached state without querying the environment.
func (t *Tracker) Online() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.online
}

// HandleOnline records an online event.
func (t *Tracker) HandleOnline() { t.Set(true) }

// HandleOffline records an offline event.
func (t *Tracker) HandleOffline() { t.Set(false) }

// Set records an environment event and notifies every listener with the new
// state. Events raised while listeners run (including from a listener) are
// delivered afterwards, in order.
func (t *Tracker) Set(online bool) {
	t.mu.Lock()
	t.online = online
	t.pending = append(t.pending, online)
	if t.dispatching {
		t.mu.Unlock()
		return
	}
	t.dispatching = true
	for len(t.pending) > 0 {
		state := t.pending[0]
		t.pending = t.pending[1:]
		listeners := slices.Clone(t.listeners)
		t.mu.Unlock()

		t.logger.Debug("connectivity changed",
			logging.Bool(logging.FieldOnline, state),
			logging.Int("listeners", len(listeners)),
		)
		for _, reg := range listeners {
			if reg.active.Load() {
				t.call(reg.fn, state)
			}
		}

		t.mu.Lock()
	}
	t.pending = nil
	t.dispatching = false
	t.mu.Unlock()
}

func (t *Tracker) call(fn Listener, online bool) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(t.logger, "connectivity listener panicked", "listener_panic",
				logging.String("panic", fmt.Sprint(r)),
				logging.Bool(logging.FieldOnline, online),
				logging.String(logging.FieldErrorHint, "fix the listener; remaining listeners were still notified"),
			)
		}
	}()
	fn(online)
}

// AddListener registers fn and returns a function that removes this
// registration. Registering the same function twice yields two independent
// subscriptions. The returned function is safe to call more than once.
func (t *Tracker) AddListener(fn Listener) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	reg := &registration{fn: fn}
	reg.active.Store(true)

	t.mu.Lock()
	t.listeners = append(t.listeners, reg)
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			reg.active.Store(false)
			t.mu.Lock()
			defer t.mu.Unlock()
			if idx := slices.Index(t.listeners, reg); idx >= 0 {
				t.listeners = slices.Delete(t.listeners, idx, idx+1)
			}
		})
	}
}

// ListenerCount reports how many registrations are active.
func (t *Tracker) ListenerCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listeners)
}
