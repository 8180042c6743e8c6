package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogsCommandNoEntries(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"logs"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	requireContains(t, out, "No log entries available")
}

func TestLogsCommandFormatsLastLines(t *testing.T) {
	env := setupCLITestEnv(t)
	path := env.cfg.DaemonLogPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir log dir: %v", err)
	}
	content := strings.Join([]string{
		`{"ts":"2024-06-10T06:13:20Z","level":"info","msg":"first","component":"daemon"}`,
		`{"ts":"2024-06-10T06:13:21Z","level":"info","msg":"second","component":"daemon"}`,
		`{"ts":"2024-06-10T06:13:22Z","level":"warn","msg":"third","component":"reconcile","item_id":"abc"}`,
	}, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	out, _, err := runCLI(t, []string{"logs", "-n", "2"}, env.configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "first") {
		t.Fatalf("expected only last two lines, got %q", out)
	}
	requireContains(t, out, "second")
	requireContains(t, out, "WARN  [reconcile] third item_id=abc")

	raw, _, err := runCLI(t, []string{"logs", "-n", "0", "--raw"}, env.configPath)
	if err != nil {
		t.Fatalf("logs --raw: %v", err)
	}
	requireContains(t, raw, `"msg":"first"`)
}
