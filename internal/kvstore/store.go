package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"stash/internal/config"
	"stash/internal/logging"
)

const (
	probeKey  = "test"
	probeSize = 1024

	// SpaceAvailable and SpaceLimited are the two answers RemainingSpace gives.
	SpaceAvailable = "Available"
	SpaceLimited   = "Limited or unavailable"
)

// Options configures a Store.
type Options struct {
	Prefix string
	// ClearScope selects what Clear removes: config.ClearScopeAll (default)
	// wipes the backend, config.ClearScopeNamespace only prefixed keys.
	ClearScope string
	Logger     *slog.Logger
}

// Store is a namespaced JSON view over a Backend.
type Store struct {
	backend    Backend
	prefix     string
	clearScope string
	logger     *slog.Logger
}

// Pair is a value to be written by SetAll.
type Pair struct {
	Key   string
	Value any
}

// New wraps backend with the given namespace.
func New(backend Backend, opts Options) *Store {
	scope := opts.ClearScope
	if scope == "" {
		scope = config.ClearScopeAll
	}
	return &Store{
		backend:    backend,
		prefix:     opts.Prefix,
		clearScope: scope,
		logger:     logging.NewComponentLogger(opts.Logger, "kvstore"),
	}
}

// Open builds a Store over the SQLite database named by cfg.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("kvstore: nil config")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	backend, err := OpenSQLite(cfg.DatabasePath(), SQLiteOptions{QuotaBytes: cfg.Storage.QuotaBytes})
	if err != nil {
		return nil, err
	}
	return New(backend, Options{
		Prefix:     cfg.Storage.Prefix,
		ClearScope: cfg.Storage.ClearScope,
		Logger:     logger,
	}), nil
}

// Close releases the backend.
func (s *Store) Close() error {
	if s == nil || s.backend == nil {
		return nil
	}
	return s.backend.Close()
}

// Backend exposes the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// Prefix returns the namespace prepended to every key.
func (s *Store) Prefix() string {
	return s.prefix
}

// FullKey returns the backend key for key.
func (s *Store) FullKey(key string) string {
	return s.prefix + norm.NFC.String(key)
}

// Set JSON-encodes value under key. It reports false when the value cannot be
// encoded or the backend rejects the write.
func (s *Store) Set(key string, value any) bool {
	return s.SetAll(Pair{Key: key, Value: value})
}

// SetAll writes every pair atomically or none of them.
func (s *Store) SetAll(pairs ...Pair) bool {
	entries := make([]Entry, 0, len(pairs))
	for _, pair := range pairs {
		encoded, err := json.Marshal(pair.Value)
		if err != nil {
			logging.WarnWithContext(s.logger, "value not serializable", "storage_encode_failed",
				logging.String(logging.FieldKey, pair.Key),
				logging.Error(err),
				logging.String(logging.FieldImpact, "value was not saved"),
				logging.String(logging.FieldErrorHint, "store only JSON-encodable values"),
			)
			return false
		}
		entries = append(entries, Entry{Key: s.FullKey(pair.Key), Value: string(encoded)})
	}
	if err := s.backend.SetItems(context.Background(), entries); err != nil {
		s.warnWrite(pairs, err)
		return false
	}
	return true
}

func (s *Store) warnWrite(pairs []Pair, err error) {
	keys := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		keys = append(keys, pair.Key)
	}
	hint := "check that the data directory is writable"
	if errors.Is(err, ErrQuotaExceeded) {
		hint = "remove unused keys or raise storage.quota_bytes"
	}
	logging.WarnWithContext(s.logger, "storage write failed", "storage_write_failed",
		logging.String(logging.FieldKey, strings.Join(keys, ",")),
		logging.Error(err),
		logging.String(logging.FieldImpact, "value was not saved"),
		logging.String(logging.FieldErrorHint, hint),
	)
}

// GetRaw returns the stored JSON for key.
func (s *Store) GetRaw(key string) (json.RawMessage, bool) {
	raw, ok, err := s.backend.GetItem(context.Background(), s.FullKey(key))
	if err != nil {
		logging.WarnWithContext(s.logger, "storage read failed", "storage_read_failed",
			logging.String(logging.FieldKey, key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "default value returned"),
		)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return json.RawMessage(raw), true
}

// Decode unmarshals the value under key into dst. It reports false, leaving dst
// untouched, when the key is absent or the stored text is not valid JSON for dst.
func (s *Store) Decode(key string, dst any) bool {
	raw, ok := s.GetRaw(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logging.WarnWithContext(s.logger, "stored value unreadable", "storage_decode_failed",
			logging.String(logging.FieldKey, key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "default value returned"),
			logging.String(logging.FieldErrorHint, "overwrite or remove the key"),
		)
		return false
	}
	return true
}

// Read decodes the value under key into dst. Unlike Decode it hands backend
// and decoding failures back to the caller, so absent and unreadable can be
// told apart.
func (s *Store) Read(key string, dst any) (bool, error) {
	raw, ok, err := s.backend.GetItem(context.Background(), s.FullKey(key))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// Get returns the value stored under key decoded as T, or def when the key is
// absent, unreadable, or the backend fails.
func Get[T any](s *Store, key string, def T) T {
	var out T
	if !s.Decode(key, &out) {
		return def
	}
	return out
}

// Remove deletes key. Removing an absent key succeeds.
func (s *Store) Remove(key string) bool {
	if err := s.backend.RemoveItem(context.Background(), s.FullKey(key)); err != nil {
		logging.WarnWithContext(s.logger, "storage remove failed", "storage_remove_failed",
			logging.String(logging.FieldKey, key),
			logging.Error(err),
			logging.String(logging.FieldImpact, "key still present"),
		)
		return false
	}
	return true
}

// Clear empties storage. With the default scope this removes every key in the
// backend, including keys outside this namespace.
func (s *Store) Clear() bool {
	if s.clearScope == config.ClearScopeNamespace {
		return s.ClearNamespace()
	}
	if err := s.backend.Clear(context.Background()); err != nil {
		logging.WarnWithContext(s.logger, "storage clear failed", "storage_clear_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stored values remain"),
		)
		return false
	}
	return true
}

// ClearNamespace removes only keys carrying this store's prefix.
func (s *Store) ClearNamespace() bool {
	keys, err := s.backend.Keys(context.Background())
	if err != nil {
		logging.WarnWithContext(s.logger, "storage clear failed", "storage_clear_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stored values remain"),
		)
		return false
	}
	ok := true
	for _, full := range keys {
		if !strings.HasPrefix(full, s.prefix) {
			continue
		}
		if err := s.backend.RemoveItem(context.Background(), full); err != nil {
			logging.WarnWithContext(s.logger, "storage remove failed", "storage_remove_failed",
				logging.String(logging.FieldKey, strings.TrimPrefix(full, s.prefix)),
				logging.Error(err),
				logging.String(logging.FieldImpact, "namespace partially cleared"),
			)
			ok = false
		}
	}
	return ok
}

// Keys lists keys in this namespace, prefix stripped, in backend order.
func (s *Store) Keys() []string {
	keys, err := s.backend.Keys(context.Background())
	if err != nil {
		logging.WarnWithContext(s.logger, "storage list failed", "storage_list_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "key listing empty"),
		)
		return nil
	}
	out := make([]string, 0, len(keys))
	for _, full := range keys {
		if strings.HasPrefix(full, s.prefix) {
			out = append(out, strings.TrimPrefix(full, s.prefix))
		}
	}
	return out
}

// Usage reports backend size when the backend can measure it.
func (s *Store) Usage() (Usage, bool) {
	reporter, ok := s.backend.(UsageReporter)
	if !ok {
		return Usage{}, false
	}
	usage, err := reporter.Usage(context.Background())
	if err != nil {
		s.logger.Debug("usage unavailable", logging.Error(err))
		return Usage{}, false
	}
	return usage, true
}

// RemainingSpace writes and removes a 1 KiB probe and reports whether it fit.
// A value already stored under the probe key is put back afterwards.
func (s *Store) RemainingSpace() string {
	ctx := context.Background()
	full := s.prefix + probeKey
	previous, hadPrevious, err := s.backend.GetItem(ctx, full)
	if err != nil {
		s.logger.Debug("space probe read failed", logging.Error(err))
		return SpaceLimited
	}
	if hadPrevious {
		// Drop the existing value first so the probe measures fresh headroom.
		if err := s.backend.RemoveItem(ctx, full); err != nil {
			return SpaceLimited
		}
		defer func() {
			if err := s.backend.SetItem(ctx, full, previous); err != nil {
				logging.WarnWithContext(s.logger, "space probe restore failed", "storage_write_failed",
					logging.String(logging.FieldKey, probeKey),
					logging.Error(err),
					logging.String(logging.FieldImpact, "value under probe key lost"),
				)
			}
		}()
	}
	if err := s.backend.SetItem(ctx, full, strings.Repeat("a", probeSize)); err != nil {
		s.logger.Debug("space probe rejected", logging.Error(err))
		return SpaceLimited
	}
	if err := s.backend.RemoveItem(ctx, full); err != nil {
		s.logger.Debug("space probe cleanup failed", logging.Error(err))
		return SpaceLimited
	}
	return SpaceAvailable
}
