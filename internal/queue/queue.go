package queue

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"stash/internal/config"
	"stash/internal/kvstore"
	"stash/internal/logging"
)

// DefaultKey is the storage key holding the persisted queue.
const DefaultKey = "sync_queue"

const versionSuffix = "_version"

// Options configures a Queue.
type Options struct {
	// Key is the storage key for the item array. Defaults to DefaultKey.
	Key string
	// LockPath names a file used to serialize mutations across processes.
	// Empty disables cross-process locking.
	LockPath string
	Logger   *slog.Logger
	// Now overrides the clock.
	Now func() time.Time
}

// Queue is a durable, ordered list of pending actions.
type Queue struct {
	store      *kvstore.Store
	key        string
	versionKey string
	fileLock   *flock.Flock
	logger     *slog.Logger
	now        func() time.Time
	ids        idGenerator

	mu      sync.Mutex
	items   []Item
	version int64
}

// Open loads the queue persisted in store. Absent or unreadable state yields
// an empty queue.
func Open(store *kvstore.Store, opts Options) *Queue {
	key := opts.Key
	if key == "" {
		key = DefaultKey
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	q := &Queue{
		store:      store,
		key:        key,
		versionKey: key + versionSuffix,
		logger:     logging.NewComponentLogger(opts.Logger, "queue"),
		now:        now,
	}
	if opts.LockPath != "" {
		q.fileLock = flock.New(opts.LockPath)
	}
	q.mu.Lock()
	unlock := q.lockFile()
	q.loadLocked()
	unlock()
	q.mu.Unlock()
	return q
}

// Key returns the storage key holding the item array.
func (q *Queue) Key() string {
	return q.key
}

// Add appends a new item and returns its id. It returns "" when data cannot be
// encoded as JSON.
func (q *Queue) Add(action string, data any) string {
	payload, err := json.Marshal(data)
	if err != nil {
		logging.WarnWithContext(q.logger, "queue payload not serializable", "queue_add_rejected",
			logging.String(logging.FieldAction, action),
			logging.Error(err),
			logging.String(logging.FieldImpact, "action not queued"),
			logging.String(logging.FieldErrorHint, "pass JSON-encodable data"),
		)
		return ""
	}

	var id string
	q.mutate(func(items []Item) []Item {
		id = q.uniqueID(items)
		item := Item{
			ID:        id,
			Action:    action,
			Data:      payload,
			Timestamp: timestamp(q.now()),
			Attempts:  0,
		}
		return append(items, item)
	})
	q.logger.Debug("action queued",
		logging.String(logging.FieldItemID, id),
		logging.String(logging.FieldAction, action),
	)
	return id
}

func (q *Queue) uniqueID(items []Item) string {
	for {
		id := q.ids.next()
		if !slices.ContainsFunc(items, func(item Item) bool { return item.ID == id }) {
			return id
		}
	}
}

// GetAll returns copies of every item in insertion order.
func (q *Queue) GetAll() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	return cloneItems(q.items)
}

// Get returns a copy of the item with id.
func (q *Queue) Get(id string) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := indexOf(q.items, id)
	if idx < 0 {
		return Item{}, false
	}
	return q.items[idx].Clone(), true
}

// Len returns the number of items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Remove deletes the item with id. Absent ids are ignored.
func (q *Queue) Remove(id string) {
	q.mutate(func(items []Item) []Item {
		if idx := indexOf(items, id); idx >= 0 {
			return slices.Delete(items, idx, idx+1)
		}
		return items
	})
}

// Clear removes every item.
func (q *Queue) Clear() {
	q.mutate(func([]Item) []Item { return []Item{} })
}

// Retry records a failed attempt: attempts is incremented and lastRetry set to
// now, never earlier than the previous lastRetry. Absent ids are ignored.
func (q *Queue) Retry(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	unlock := q.lockFile()
	defer unlock()
	q.refreshLocked()

	idx := indexOf(q.items, id)
	if idx < 0 {
		return
	}
	item := &q.items[idx]
	at := timestamp(q.now())
	if item.LastRetry != nil && at.Before(*item.LastRetry) {
		at = *item.LastRetry
	}
	item.Attempts++
	item.LastRetry = &at
	q.persistLocked()
}

// Summary counts items; maxAttempts > 0 also counts exhausted items.
func (q *Queue) Summary(maxAttempts int) Summary {
	q.mu.Lock()
	defer q.mu.Unlock()
	summary := Summary{Total: len(q.items)}
	for _, item := range q.items {
		if item.Attempts > 0 {
			summary.Retried++
		}
		if item.Exhausted(maxAttempts) {
			summary.Exhausted++
		}
		if summary.Oldest == nil || item.Timestamp.Before(*summary.Oldest) {
			ts := item.Timestamp
			summary.Oldest = &ts
		}
	}
	return summary
}

// Reload replaces the in-memory items with the persisted state.
func (q *Queue) Reload() {
	q.mu.Lock()
	defer q.mu.Unlock()
	unlock := q.lockFile()
	defer unlock()
	q.loadLocked()
}

// ReloadIfChanged reloads only when another writer bumped the stored version.
func (q *Queue) ReloadIfChanged() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	unlock := q.lockFile()
	defer unlock()
	return q.refreshLocked()
}

// Version returns the version of the state held in memory.
func (q *Queue) Version() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.version
}

// mutate applies fn under the in-process and cross-process locks, then writes
// the result through.
func (q *Queue) mutate(fn func([]Item) []Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	unlock := q.lockFile()
	defer unlock()
	q.refreshLocked()

	q.items = fn(q.items)
	q.persistLocked()
}

func (q *Queue) lockFile() func() {
	if q.fileLock == nil {
		return func() {}
	}
	if err := q.fileLock.Lock(); err != nil {
		logging.WarnWithContext(q.logger, "queue lock unavailable", "queue_lock_failed",
			logging.String("lock_path", q.fileLock.Path()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "concurrent writers may overwrite each other"),
			logging.String(logging.FieldErrorHint, "check permissions on the data directory"),
		)
		return func() {}
	}
	return func() {
		if err := q.fileLock.Unlock(); err != nil {
			q.logger.Debug("queue unlock failed", logging.Error(err))
		}
	}
}

func (q *Queue) storedVersion() int64 {
	return kvstore.Get(q.store, q.versionKey, int64(0))
}

// refreshLocked reloads when the stored version differs from ours. An
// unreadable version keeps the in-memory state.
func (q *Queue) refreshLocked() bool {
	var stored int64
	if _, err := q.store.Read(q.versionKey, &stored); err != nil {
		q.logger.Debug("queue version unreadable; keeping memory state", logging.Error(err))
		return false
	}
	if stored == q.version {
		return false
	}
	q.logger.Debug("queue changed externally; reloading",
		logging.Int64("version", q.version),
		logging.Int64("stored_version", stored),
	)
	q.loadLocked()
	return true
}

// loadLocked reads the version before the items. A commit landing between
// the two reads leaves the version stale, so the next refresh reloads again
// instead of writing old items over the commit.
func (q *Queue) loadLocked() {
	q.version = q.storedVersion()
	q.items = kvstore.Get(q.store, q.key, []Item{})
	if q.items == nil {
		q.items = []Item{}
	}
}

func (q *Queue) persistLocked() {
	next := q.version + 1
	ok := q.store.SetAll(
		kvstore.Pair{Key: q.key, Value: q.items},
		kvstore.Pair{Key: q.versionKey, Value: next},
	)
	if !ok {
		logging.WarnWithContext(q.logger, "queue not persisted", "queue_persist_failed",
			logging.Int("items", len(q.items)),
			logging.String(logging.FieldImpact, "pending actions exist only in memory until the next successful write"),
			logging.String(logging.FieldErrorHint, "free storage space or check the database"),
		)
		return
	}
	q.version = next
}

func indexOf(items []Item, id string) int {
	return slices.IndexFunc(items, func(item Item) bool { return item.ID == id })
}

// OptionsFromConfig derives queue options from the [queue] section.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	opts := Options{Key: cfg.Queue.Key, Logger: logger}
	if cfg.Queue.Lock {
		opts.LockPath = cfg.QueueLockPath()
	}
	return opts
}
