package testsupport

import (
	"testing"

	"stash/internal/config"
	"stash/internal/kvstore"
	"stash/internal/queue"
)

// MustOpenStore opens a SQLite-backed kvstore.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *kvstore.Store {
	t.Helper()

	store, err := kvstore.Open(cfg, nil)
	if err != nil {
		t.Fatalf("kvstore.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// MustOpenQueue opens the sync queue over store using cfg's queue settings.
func MustOpenQueue(t testing.TB, cfg *config.Config, store *kvstore.Store) *queue.Queue {
	t.Helper()

	return queue.Open(store, queue.OptionsFromConfig(cfg, nil))
}
