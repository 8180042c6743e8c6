package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"stash/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("STASH_RECONCILE_ENDPOINT", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "stash")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Storage.Prefix != "app_" {
		t.Fatalf("unexpected prefix: %q", cfg.Storage.Prefix)
	}
	if cfg.Queue.Key != "sync_queue" {
		t.Fatalf("unexpected queue key: %q", cfg.Queue.Key)
	}
	if cfg.Storage.ClearScope != config.ClearScopeAll {
		t.Fatalf("expected clear scope %q, got %q", config.ClearScopeAll, cfg.Storage.ClearScope)
	}
	if cfg.Connectivity.Source != config.SourceNetlink {
		t.Fatalf("unexpected connectivity source: %q", cfg.Connectivity.Source)
	}
	if cfg.Reconcile.Endpoint != "" {
		t.Fatalf("expected empty endpoint, got %q", cfg.Reconcile.Endpoint)
	}
	if got := cfg.DatabasePath(); got != filepath.Join(wantData, "stash.db") {
		t.Fatalf("unexpected database path: %q", got)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "stash.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Storage struct {
			Prefix     string `toml:"prefix"`
			ClearScope string `toml:"clear_scope"`
			QuotaBytes int64  `toml:"quota_bytes"`
		} `toml:"storage"`
		Queue struct {
			Key  string `toml:"key"`
			Lock bool   `toml:"lock"`
		} `toml:"queue"`
		Reconcile struct {
			Endpoint    string `toml:"endpoint"`
			MaxAttempts int    `toml:"max_attempts"`
		} `toml:"reconcile"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Storage.Prefix = "notes_"
	custom.Storage.ClearScope = "Namespace"
	custom.Storage.QuotaBytes = 4096
	custom.Queue.Key = "outbox"
	custom.Queue.Lock = false
	custom.Reconcile.Endpoint = "https://example.com/sync"
	custom.Reconcile.MaxAttempts = 7
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Storage.Prefix != "notes_" {
		t.Fatalf("expected prefix from file, got %q", cfg.Storage.Prefix)
	}
	if cfg.Storage.ClearScope != config.ClearScopeNamespace {
		t.Fatalf("expected clear scope to be lowercased, got %q", cfg.Storage.ClearScope)
	}
	if cfg.Storage.QuotaBytes != 4096 {
		t.Fatalf("expected quota 4096, got %d", cfg.Storage.QuotaBytes)
	}
	if cfg.Queue.Key != "outbox" || cfg.Queue.Lock {
		t.Fatalf("unexpected queue settings: %+v", cfg.Queue)
	}
	if !cfg.Queue.Watch {
		t.Fatal("expected queue.watch default to survive partial file")
	}
	if cfg.Reconcile.MaxAttempts != 7 {
		t.Fatalf("expected max attempts 7, got %d", cfg.Reconcile.MaxAttempts)
	}
	if cfg.QueueLockPath() != filepath.Join(tempDir, "data", "queue.lock") {
		t.Fatalf("unexpected queue lock path: %q", cfg.QueueLockPath())
	}
}

func TestEndpointFallsBackToEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STASH_RECONCILE_ENDPOINT", "  http://127.0.0.1:8080/sync ")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Reconcile.Endpoint != "http://127.0.0.1:8080/sync" {
		t.Fatalf("expected endpoint from env, got %q", cfg.Reconcile.Endpoint)
	}
}

func TestFileEndpointWinsOverEnv(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("HOME", tempDir)
	t.Setenv("STASH_RECONCILE_ENDPOINT", "http://env.example/sync")
	configPath := filepath.Join(tempDir, "stash.toml")
	if err := os.WriteFile(configPath, []byte("[reconcile]\nendpoint = \"http://file.example/sync\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Reconcile.Endpoint != "http://file.example/sync" {
		t.Fatalf("expected file endpoint, got %q", cfg.Reconcile.Endpoint)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "clear scope",
			mutate: func(c *config.Config) { c.Storage.ClearScope = "everything" },
			want:   "storage.clear_scope",
		},
		{
			name:   "connectivity source",
			mutate: func(c *config.Config) { c.Connectivity.Source = "polling" },
			want:   "connectivity.source",
		},
		{
			name:   "endpoint scheme",
			mutate: func(c *config.Config) { c.Reconcile.Endpoint = "ftp://example.com/sync" },
			want:   "reconcile.endpoint",
		},
		{
			name:   "endpoint host",
			mutate: func(c *config.Config) { c.Reconcile.Endpoint = "http:///sync" },
			want:   "reconcile.endpoint",
		},
		{
			name:   "empty queue key",
			mutate: func(c *config.Config) { c.Queue.Key = "" },
			want:   "queue.key",
		},
		{
			name:   "log level",
			mutate: func(c *config.Config) { c.Logging.Level = "chatty" },
			want:   "logging.level",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.DataDir = t.TempDir()
			cfg.Paths.LogDir = t.TempDir()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error to mention %q, got %v", tt.want, err)
			}
		})
	}
}

func TestParseErrorIsReported(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "stash.toml")
	if err := os.WriteFile(configPath, []byte("[storage\nprefix = "), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STASH_RECONCILE_ENDPOINT", "")
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample file to exist")
	}
	def := config.Default()
	if cfg.Storage.Prefix != def.Storage.Prefix || cfg.Queue.Key != def.Queue.Key {
		t.Fatalf("sample diverges from defaults: %+v %+v", cfg.Storage, cfg.Queue)
	}
	if cfg.Storage.QuotaBytes != def.Storage.QuotaBytes {
		t.Fatalf("sample quota %d differs from default %d", cfg.Storage.QuotaBytes, def.Storage.QuotaBytes)
	}
}

func TestInterfacesAreDeduplicated(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "stash.toml")
	body := "[connectivity]\ninterfaces = [\" eth0\", \"wlan0\", \"eth0\", \"\"]\n"
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	got := strings.Join(cfg.Connectivity.Interfaces, ",")
	if got != "eth0,wlan0" {
		t.Fatalf("unexpected interfaces: %q", got)
	}
}
