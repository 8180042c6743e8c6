package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"stash/internal/config"
	"stash/internal/queue"
)

const userAgent = "stash/0.1.0"

const defaultRequestTimeout = 10 * time.Second

// ErrNotConfigured reports that no reconcile endpoint is set.
var ErrNotConfigured = errors.New("reconcile endpoint not configured")

// Applier delivers one queued item to the remote source of truth.
// A nil error means the item was accepted and may be removed.
type Applier interface {
	Apply(ctx context.Context, item queue.Item) error
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, item queue.Item) error

// Apply calls f.
func (f ApplierFunc) Apply(ctx context.Context, item queue.Item) error {
	return f(ctx, item)
}

// NewApplier builds the HTTP applier described by cfg. It returns
// ErrNotConfigured when reconciliation is disabled or has no endpoint.
func NewApplier(cfg *config.Config) (*HTTPApplier, error) {
	if cfg == nil || !cfg.Reconcile.Enabled {
		return nil, ErrNotConfigured
	}
	endpoint := strings.TrimSpace(cfg.Reconcile.Endpoint)
	if endpoint == "" {
		return nil, ErrNotConfigured
	}
	timeout := time.Duration(cfg.Reconcile.TimeoutSeconds) * time.Second
	return NewHTTPApplier(endpoint, timeout), nil
}

// HTTPApplier posts each item as JSON to a fixed endpoint.
type HTTPApplier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPApplier returns an applier posting to endpoint. Non-positive timeouts
// fall back to ten seconds.
func NewHTTPApplier(endpoint string, timeout time.Duration) *HTTPApplier {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &HTTPApplier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the target URL.
func (a *HTTPApplier) Endpoint() string {
	if a == nil {
		return ""
	}
	return a.endpoint
}

type applyRequest struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	Attempts  int             `json:"attempts"`
}

// Apply posts item and treats any 2xx response as success.
func (a *HTTPApplier) Apply(ctx context.Context, item queue.Item) error {
	if a == nil || a.client == nil {
		return ErrNotConfigured
	}
	data := item.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	body, err := json.Marshal(applyRequest{
		ID:        item.ID,
		Action:    item.Action,
		Data:      data,
		Timestamp: item.Timestamp,
		Attempts:  item.Attempts,
	})
	if err != nil {
		return fmt.Errorf("encode item %s: %w", item.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("build reconcile request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", item.ID)

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send item %s: %w", item.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// StatusError reports a non-2xx response from the endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("endpoint returned %d", e.Code)
	}
	return fmt.Sprintf("endpoint returned %d: %s", e.Code, e.Body)
}
