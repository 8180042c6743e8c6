package kvstore

import (
	"context"
	"errors"
)

var (
	// ErrQuotaExceeded is returned by a backend when a write would push the
	// stored bytes past its quota.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrStorageUnavailable is returned when the backend cannot be used at all.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Entry is a raw key/value pair as the backend stores it.
type Entry struct {
	Key   string
	Value string
}

// Backend is the persistent string surface a Store writes through.
// Keys iterate in first-insertion order; overwriting a key keeps its position.
type Backend interface {
	SetItem(ctx context.Context, key, value string) error
	// SetItems writes every entry or none of them.
	SetItems(ctx context.Context, entries []Entry) error
	GetItem(ctx context.Context, key string) (string, bool, error)
	RemoveItem(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Usage reports how many bytes a backend holds and its quota (0 = unlimited).
type Usage struct {
	UsedBytes  int64
	QuotaBytes int64
	Keys       int
}

// UsageReporter is implemented by backends that can account for their size.
type UsageReporter interface {
	Usage(ctx context.Context) (Usage, error)
}

func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}
