package connectivity

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestTrackerInitialState(t *testing.T) {
	if !NewTracker(true, nil).Online() {
		t.Fatal("expected online tracker")
	}
	if NewTracker(false, nil).Online() {
		t.Fatal("expected offline tracker")
	}
}

func TestTrackerOfflineThenOnline(t *testing.T) {
	tracker := NewTracker(true, nil)
	var seen []bool
	tracker.AddListener(func(online bool) { seen = append(seen, online) })

	tracker.HandleOffline()
	if tracker.Online() {
		t.Fatal("expected offline after offline event")
	}
	tracker.HandleOnline()
	if !tracker.Online() {
		t.Fatal("expected online after online event")
	}
	if !slices.Equal(seen, []bool{false, true}) {
		t.Fatalf("unexpected notifications: %v", seen)
	}
}

func TestTrackerNotifiesInRegistrationOrder(t *testing.T) {
	tracker := NewTracker(false, nil)
	var order []string
	tracker.AddListener(func(bool) { order = append(order, "first") })
	tracker.AddListener(func(bool) { order = append(order, "second") })
	tracker.AddListener(func(bool) { order = append(order, "third") })

	tracker.Set(true)
	if !slices.Equal(order, []string{"first", "second", "third"}) {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestTrackerDuplicateListenersAreIndependent(t *testing.T) {
	tracker := NewTracker(false, nil)
	calls := 0
	fn := func(bool) { calls++ }

	unsubscribeA := tracker.AddListener(fn)
	tracker.AddListener(fn)

	tracker.HandleOnline()
	if calls != 2 {
		t.Fatalf("expected both registrations notified, got %d", calls)
	}

	unsubscribeA()
	unsubscribeA()
	if tracker.ListenerCount() != 1 {
		t.Fatalf("expected one remaining registration, got %d", tracker.ListenerCount())
	}
	tracker.HandleOffline()
	if calls != 3 {
		t.Fatalf("expected remaining registration notified once, got %d", calls)
	}
}

func TestTrackerUnsubscribeStopsNotifications(t *testing.T) {
	tracker := NewTracker(true, nil)
	calls := 0
	unsubscribe := tracker.AddListener(func(bool) { calls++ })
	unsubscribe()

	tracker.HandleOffline()
	if calls != 0 {
		t.Fatalf("expected no calls after unsubscribe, got %d", calls)
	}
}

func TestTrackerUnsubscribeDuringDispatch(t *testing.T) {
	tracker := NewTracker(false, nil)
	var unsubscribeSecond func()
	secondCalls := 0
	tracker.AddListener(func(bool) { unsubscribeSecond() })
	unsubscribeSecond = tracker.AddListener(func(bool) { secondCalls++ })

	tracker.HandleOnline()
	if secondCalls != 0 {
		t.Fatalf("listener removed mid-dispatch should not run, got %d calls", secondCalls)
	}
}

func TestTrackerReentrantSetIsDeliveredInOrder(t *testing.T) {
	tracker := NewTracker(false, nil)
	var seen []bool
	tracker.AddListener(func(online bool) {
		seen = append(seen, online)
		if online {
			tracker.HandleOffline()
		}
	})

	tracker.HandleOnline()
	if !slices.Equal(seen, []bool{true, false}) {
		t.Fatalf("unexpected sequence: %v", seen)
	}
	if tracker.Online() {
		t.Fatal("expected final state offline")
	}
}

func TestTrackerListenerPanicDoesNotStopOthers(t *testing.T) {
	tracker := NewTracker(false, nil)
	called := false
	tracker.AddListener(func(bool) { panic("boom") })
	tracker.AddListener(func(bool) { called = true })

	tracker.HandleOnline()
	if !called {
		t.Fatal("expected second listener to run")
	}
}

func TestTrackerNilListener(t *testing.T) {
	tracker := NewTracker(false, nil)
	unsubscribe := tracker.AddListener(nil)
	unsubscribe()
	if tracker.ListenerCount() != 0 {
		t.Fatal("nil listener must not register")
	}
	tracker.HandleOnline()
}

func TestTrackerConcurrentEvents(t *testing.T) {
	tracker := NewTracker(false, nil)
	var mu sync.Mutex
	count := 0
	tracker.AddListener(func(bool) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(online bool) {
			defer wg.Done()
			tracker.Set(online)
		}(i%2 == 0)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if count != 50 {
		t.Fatalf("expected 50 notifications, got %d", count)
	}
}

type scriptedSource struct {
	initial bool
	events  []bool
}

func (s scriptedSource) Online() bool { return s.initial }

func (s scriptedSource) Run(ctx context.Context, emit func(bool)) error {
	for _, state := range s.events {
		emit(state)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestAttachSyncsAndForwards(t *testing.T) {
	tracker := NewTracker(true, nil)
	var seen []bool
	var mu sync.Mutex
	tracker.AddListener(func(online bool) {
		mu.Lock()
		seen = append(seen, online)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Attach(ctx, tracker, scriptedSource{initial: false, events: []bool{true, false}})
	}()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n == 3 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for notifications, got %v", seen)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(seen, []bool{false, true, false}) {
		t.Fatalf("unexpected sequence: %v", seen)
	}
}

func TestAttachRequiresArguments(t *testing.T) {
	if err := Attach(context.Background(), nil, StaticSource{}); err == nil {
		t.Fatal("expected error for nil tracker")
	}
}

func TestStaticSourceBlocksUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- StaticSource{State: true}.Run(ctx, nil) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("static source did not stop")
	}
}
