package main

import (
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"stash/internal/kvstore"
	"stash/internal/preflight"
	"stash/internal/queue"
	"stash/internal/testsupport"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) {
		t.Fatalf("expected green prefix, got %q", got)
	}
	if !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected reset suffix, got %q", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatalf("expected non-file writer to disable color")
	}
}

func TestCheckLines(t *testing.T) {
	lines := checkLines([]preflight.Result{
		{Name: "Data directory", Passed: true, Detail: "ok"},
		{Name: "Free space", Detail: "low"},
		{Name: "Log directory", Detail: "missing"},
	}, map[string]bool{"Free space": true}, false)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "[OK] ok") || !strings.Contains(lines[1], "[WARN] low") || !strings.Contains(lines[2], "[ERROR] missing") {
		t.Fatalf("unexpected lines %q", lines)
	}
}

func TestQueueStatusLines(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	if lines := queueStatusLines(queue.Summary{}, 0, now, false); len(lines) != 1 || !strings.Contains(lines[0], "Queue is empty") {
		t.Fatalf("unexpected empty lines %q", lines)
	}

	oldest := now.Add(-3 * time.Minute)
	lines := queueStatusLines(queue.Summary{Total: 4, Retried: 2, Exhausted: 1, Oldest: &oldest}, 5, now, false)
	joined := strings.Join(lines, "\n")
	for _, want := range []string{"4 items", "3 minutes ago", "[WARN] 2 items", "[ERROR] 1 items at 5 attempts"} {
		requireContains(t, joined, want)
	}
}

func TestUsageStatusLine(t *testing.T) {
	line := usageStatusLine(kvstore.Usage{UsedBytes: 950, QuotaBytes: 1000, Keys: 3}, false)
	requireContains(t, line, "[WARN]")
	requireContains(t, line, "95%")

	line = usageStatusLine(kvstore.Usage{UsedBytes: 2048, Keys: 1}, false)
	requireContains(t, line, "2.0 KiB in 1 keys (no quota)")
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithOffline())
	if _, _, err := runCLI(t, []string{"queue", "add", "submitForm"}, env.configPath); err != nil {
		t.Fatalf("queue add: %v", err)
	}

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{
		"== System ==",
		"Not running",
		"Offline (static)",
		"No endpoint; actions are held locally",
		"== Queue ==",
		"1 items",
		"== Storage ==",
		env.cfg.DatabasePath(),
		"== Checks ==",
		"Data directory",
	} {
		requireContains(t, out, want)
	}
}
