package preflight

import (
	"fmt"

	"github.com/gofrs/flock"

	"stash/internal/config"
)

// DaemonProbe reports whether a stashd instance holds the daemon lock.
type DaemonProbe struct {
	Running  bool
	LockPath string
	Err      error
}

// ProbeDaemon tries the daemon lock without holding it. A lock held by
// another process means stashd is running.
func ProbeDaemon(cfg *config.Config) DaemonProbe {
	if cfg == nil {
		return DaemonProbe{Err: fmt.Errorf("config is required")}
	}
	lockPath := cfg.DaemonLockPath()
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return DaemonProbe{LockPath: lockPath, Err: err}
	}
	if !ok {
		return DaemonProbe{Running: true, LockPath: lockPath}
	}
	_ = lock.Unlock()
	return DaemonProbe{LockPath: lockPath}
}

// Detail renders a display-friendly summary for status UIs.
func (p DaemonProbe) Detail() string {
	switch {
	case p.Err != nil:
		return fmt.Sprintf("Unknown (%v)", p.Err)
	case p.Running:
		return "Running"
	default:
		return "Not running"
	}
}
