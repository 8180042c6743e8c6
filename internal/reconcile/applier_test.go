package reconcile_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stash/internal/queue"
	"stash/internal/reconcile"
	"stash/internal/testsupport"
)

func TestNewApplierRequiresEndpoint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := reconcile.NewApplier(cfg); !errors.Is(err, reconcile.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}

	cfg = testsupport.NewConfig(t, testsupport.WithEndpoint("https://sync.example.com/apply"))
	cfg.Reconcile.Enabled = false
	if _, err := reconcile.NewApplier(cfg); !errors.Is(err, reconcile.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured when disabled, got %v", err)
	}

	cfg.Reconcile.Enabled = true
	applier, err := reconcile.NewApplier(cfg)
	if err != nil {
		t.Fatalf("NewApplier: %v", err)
	}
	if applier.Endpoint() != "https://sync.example.com/apply" {
		t.Fatalf("unexpected endpoint %q", applier.Endpoint())
	}
}

func TestHTTPApplierPostsItem(t *testing.T) {
	type request struct {
		Method      string
		ContentType string
		Idempotency string
		Body        map[string]any
	}
	received := make(chan request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		received <- request{
			Method:      r.Method,
			ContentType: r.Header.Get("Content-Type"),
			Idempotency: r.Header.Get("Idempotency-Key"),
			Body:        body,
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	item := queue.Item{
		ID:        "1718000000000-abc123def",
		Action:    "submitForm",
		Data:      json.RawMessage(`{"name":"Alice"}`),
		Timestamp: time.Date(2024, 6, 10, 6, 13, 20, 0, time.UTC),
		Attempts:  2,
	}
	applier := reconcile.NewHTTPApplier(srv.URL, time.Second)
	if err := applier.Apply(context.Background(), item); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got := <-received
	if got.Method != http.MethodPost || got.ContentType != "application/json" {
		t.Fatalf("unexpected request %s %s", got.Method, got.ContentType)
	}
	if got.Idempotency != item.ID {
		t.Fatalf("expected idempotency key %q, got %q", item.ID, got.Idempotency)
	}
	if got.Body["id"] != item.ID || got.Body["action"] != "submitForm" {
		t.Fatalf("unexpected body %v", got.Body)
	}
	if got.Body["attempts"] != float64(2) {
		t.Fatalf("expected attempts 2, got %v", got.Body["attempts"])
	}
	if data, ok := got.Body["data"].(map[string]any); !ok || data["name"] != "Alice" {
		t.Fatalf("unexpected data %v", got.Body["data"])
	}
	if got.Body["timestamp"] != "2024-06-10T06:13:20Z" {
		t.Fatalf("unexpected timestamp %v", got.Body["timestamp"])
	}
}

func TestHTTPApplierReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "conflict on submitForm", http.StatusConflict)
	}))
	defer srv.Close()

	err := reconcile.NewHTTPApplier(srv.URL, time.Second).Apply(context.Background(), queue.Item{ID: "x", Action: "submitForm"})
	var statusErr *reconcile.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusConflict || statusErr.Body != "conflict on submitForm" {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestHTTPApplierHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := reconcile.NewHTTPApplier(srv.URL, 5*time.Second).Apply(ctx, queue.Item{ID: "x"})
	if err == nil || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}
