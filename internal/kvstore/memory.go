package kvstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryBackend keeps entries in process memory. It honours insertion order
// and an optional quota, and can be switched into a failing mode to stand in
// for disabled storage.
type MemoryBackend struct {
	mu      sync.Mutex
	values  map[string]string
	order   []string
	quota   int64
	used    int64
	failing bool
}

// NewMemoryBackend returns an empty backend. quotaBytes <= 0 means unlimited.
func NewMemoryBackend(quotaBytes int64) *MemoryBackend {
	return &MemoryBackend{values: make(map[string]string), quota: max(quotaBytes, 0)}
}

// SetFailing makes every subsequent call fail with ErrStorageUnavailable until reset.
func (m *MemoryBackend) SetFailing(failing bool) {
	m.mu.Lock()
	m.failing = failing
	m.mu.Unlock()
}

func (m *MemoryBackend) SetItem(ctx context.Context, key, value string) error {
	return m.SetItems(ctx, []Entry{{Key: key, Value: value}})
}

func (m *MemoryBackend) SetItems(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrStorageUnavailable
	}

	used := m.used
	pending := make(map[string]string, len(entries))
	for _, entry := range entries {
		if prev, ok := pending[entry.Key]; ok {
			used -= entrySize(entry.Key, prev)
		} else if prev, ok := m.values[entry.Key]; ok {
			used -= entrySize(entry.Key, prev)
		}
		pending[entry.Key] = entry.Value
		used += entrySize(entry.Key, entry.Value)
	}
	if m.quota > 0 && used > m.quota {
		return fmt.Errorf("%w: %d bytes over a %d byte quota", ErrQuotaExceeded, used, m.quota)
	}

	for _, entry := range entries {
		if _, ok := m.values[entry.Key]; !ok {
			m.order = append(m.order, entry.Key)
		}
		m.values[entry.Key] = entry.Value
	}
	m.used = used
	return nil
}

func (m *MemoryBackend) GetItem(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return "", false, ErrStorageUnavailable
	}
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *MemoryBackend) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrStorageUnavailable
	}
	value, ok := m.values[key]
	if !ok {
		return nil
	}
	delete(m.values, key)
	m.used -= entrySize(key, value)
	if idx := slices.Index(m.order, key); idx >= 0 {
		m.order = slices.Delete(m.order, idx, idx+1)
	}
	return nil
}

func (m *MemoryBackend) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrStorageUnavailable
	}
	m.values = make(map[string]string)
	m.order = nil
	m.used = 0
	return nil
}

func (m *MemoryBackend) Keys(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return nil, ErrStorageUnavailable
	}
	return slices.Clone(m.order), nil
}

func (m *MemoryBackend) Usage(context.Context) (Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return Usage{}, ErrStorageUnavailable
	}
	return Usage{UsedBytes: m.used, QuotaBytes: m.quota, Keys: len(m.values)}, nil
}

func (m *MemoryBackend) Close() error { return nil }
