package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Clear scopes accepted by storage.clear_scope.
const (
	ClearScopeAll       = "all"
	ClearScopeNamespace = "namespace"
)

// Connectivity sources accepted by connectivity.source.
const (
	SourceNetlink = "netlink"
	SourceStatic  = "static"
)

const (
	queueLockFile  = "queue.lock"
	daemonLockFile = "stashd.lock"
	daemonPIDFile  = "stashd.pid"
	logFile        = "stashd.log"
)

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Storage contains configuration for the durable key-value store.
type Storage struct {
	Database   string `toml:"database"`
	Prefix     string `toml:"prefix"`
	QuotaBytes int64  `toml:"quota_bytes"`
	ClearScope string `toml:"clear_scope"`
}

// Queue contains configuration for the sync queue.
type Queue struct {
	Key             string `toml:"key"`
	Lock            bool   `toml:"lock"`
	Watch           bool   `toml:"watch"`
	WatchDebounceMs int    `toml:"watch_debounce_ms"`
}

// Connectivity contains configuration for the connectivity source.
type Connectivity struct {
	Source       string   `toml:"source"`
	Interfaces   []string `toml:"interfaces"`
	AssumeOnline bool     `toml:"assume_online"`
}

// Reconcile contains configuration for draining the queue against a remote endpoint.
type Reconcile struct {
	Enabled           bool   `toml:"enabled"`
	Endpoint          string `toml:"endpoint"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	MaxAttempts       int    `toml:"max_attempts"`
	BackoffInitialMs  int    `toml:"backoff_initial_ms"`
	BackoffMaxSeconds int    `toml:"backoff_max_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	Compress   bool   `toml:"compress"`
}

// Config encapsulates all configuration values for stash.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Storage: database file, key namespace, quota, clear behaviour
//   - Queue: persisted key, cross-process lock, change watcher
//   - Connectivity: online/offline event source
//   - Reconcile: remote endpoint and retry pacing
//   - Logging: log format, level, and rotation
type Config struct {
	Paths        Paths        `toml:"paths"`
	Storage      Storage      `toml:"storage"`
	Queue        Queue        `toml:"queue"`
	Connectivity Connectivity `toml:"connectivity"`
	Reconcile    Reconcile    `toml:"reconcile"`
	Logging      Logging      `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/stash/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("stash.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the absolute path of the key-value database file.
func (c *Config) DatabasePath() string {
	if filepath.IsAbs(c.Storage.Database) {
		return c.Storage.Database
	}
	return filepath.Join(c.Paths.DataDir, c.Storage.Database)
}

// QueueLockPath returns the lock file guarding cross-process queue mutations.
func (c *Config) QueueLockPath() string {
	return filepath.Join(c.Paths.DataDir, queueLockFile)
}

// DaemonLockPath returns the single-instance lock file for stashd.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.DataDir, daemonLockFile)
}

// DaemonPIDPath returns the pid file written while stashd runs.
func (c *Config) DaemonPIDPath() string {
	return filepath.Join(c.Paths.DataDir, daemonPIDFile)
}

// DaemonLogPath returns the rotating log file written by stashd.
func (c *Config) DaemonLogPath() string {
	return filepath.Join(c.Paths.LogDir, logFile)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
