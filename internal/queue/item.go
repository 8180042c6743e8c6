package queue

import (
	"encoding/json"
	"slices"
	"time"
)

// Item is one pending action.
type Item struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Attempts  int             `json:"attempts"`
	LastRetry *time.Time      `json:"lastRetry,omitempty"`
}

// Clone returns a deep copy of the item.
func (i Item) Clone() Item {
	out := i
	out.Data = slices.Clone(i.Data)
	if i.LastRetry != nil {
		ts := *i.LastRetry
		out.LastRetry = &ts
	}
	return out
}

// DecodeData unmarshals the item payload into dst.
func (i Item) DecodeData(dst any) error {
	return json.Unmarshal(i.Data, dst)
}

// Exhausted reports whether the item reached maxAttempts. Zero means unlimited.
func (i Item) Exhausted(maxAttempts int) bool {
	return maxAttempts > 0 && i.Attempts >= maxAttempts
}

// Summary aggregates queue counts.
type Summary struct {
	Total     int
	Retried   int
	Exhausted int
	Oldest    *time.Time
}

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for idx, item := range items {
		out[idx] = item.Clone()
	}
	return out
}

func timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
