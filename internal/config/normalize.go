package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStorage()
	c.normalizeQueue()
	c.normalizeConnectivity()
	c.normalizeReconcile()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.HasPrefix(c.Storage.Database, "~") {
		if c.Storage.Database, err = expandPath(c.Storage.Database); err != nil {
			return fmt.Errorf("storage.database: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeStorage() {
	c.Storage.Database = strings.TrimSpace(c.Storage.Database)
	if c.Storage.Database == "" {
		c.Storage.Database = defaultDatabaseFile
	}
	// An empty prefix is legal; only surrounding whitespace is dropped.
	c.Storage.Prefix = strings.TrimSpace(c.Storage.Prefix)
	if c.Storage.QuotaBytes < 0 {
		c.Storage.QuotaBytes = 0
	}
	c.Storage.ClearScope = strings.ToLower(strings.TrimSpace(c.Storage.ClearScope))
	if c.Storage.ClearScope == "" {
		c.Storage.ClearScope = defaultClearScope
	}
}

func (c *Config) normalizeQueue() {
	c.Queue.Key = strings.TrimSpace(c.Queue.Key)
	if c.Queue.Key == "" {
		c.Queue.Key = defaultQueueKey
	}
	if c.Queue.WatchDebounceMs <= 0 {
		c.Queue.WatchDebounceMs = defaultQueueWatchDebounceMs
	}
}

func (c *Config) normalizeConnectivity() {
	c.Connectivity.Source = strings.ToLower(strings.TrimSpace(c.Connectivity.Source))
	if c.Connectivity.Source == "" {
		c.Connectivity.Source = defaultConnectivitySource
	}
	if len(c.Connectivity.Interfaces) == 0 {
		return
	}
	names := make([]string, 0, len(c.Connectivity.Interfaces))
	seen := make(map[string]struct{}, len(c.Connectivity.Interfaces))
	for _, name := range c.Connectivity.Interfaces {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, exists := seen[trimmed]; exists {
			continue
		}
		seen[trimmed] = struct{}{}
		names = append(names, trimmed)
	}
	c.Connectivity.Interfaces = names
}

func (c *Config) normalizeReconcile() {
	c.Reconcile.Endpoint = strings.TrimSpace(c.Reconcile.Endpoint)
	if c.Reconcile.Endpoint == "" {
		if value, ok := os.LookupEnv("STASH_RECONCILE_ENDPOINT"); ok {
			c.Reconcile.Endpoint = strings.TrimSpace(value)
		}
	}
	if c.Reconcile.TimeoutSeconds <= 0 {
		c.Reconcile.TimeoutSeconds = defaultReconcileTimeoutSeconds
	}
	if c.Reconcile.MaxAttempts < 0 {
		c.Reconcile.MaxAttempts = 0
	}
	if c.Reconcile.BackoffInitialMs <= 0 {
		c.Reconcile.BackoffInitialMs = defaultReconcileBackoffInitMs
	}
	if c.Reconcile.BackoffMaxSeconds <= 0 {
		c.Reconcile.BackoffMaxSeconds = defaultReconcileBackoffMaxSecs
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
}
