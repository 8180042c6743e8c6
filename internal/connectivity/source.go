package connectivity

import (
	"context"
	"errors"
)

// Source reports connectivity and emits changes.
type Source interface {
	// Online probes the environment right now.
	Online() bool
	// Run blocks until ctx is done, calling emit on every edge.
	Run(ctx context.Context, emit func(online bool)) error
}

// StaticSource never changes state.
type StaticSource struct {
	State bool
}

func (s StaticSource) Online() bool { return s.State }

func (s StaticSource) Run(ctx context.Context, _ func(bool)) error {
	<-ctx.Done()
	return nil
}

// Attach drives tracker from source until ctx is done. The tracker is first
// brought in line with the source's current state.
func Attach(ctx context.Context, tracker *Tracker, source Source) error {
	if tracker == nil || source == nil {
		return errors.New("connectivity: attach requires a tracker and a source")
	}
	if current := source.Online(); current != tracker.Online() {
		tracker.Set(current)
	}
	err := source.Run(ctx, tracker.Set)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
