package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateConnectivity(); err != nil {
		return err
	}
	if err := c.validateReconcile(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.ClearScope {
	case ClearScopeAll, ClearScopeNamespace:
	default:
		return fmt.Errorf("storage.clear_scope must be %q or %q, got %q", ClearScopeAll, ClearScopeNamespace, c.Storage.ClearScope)
	}
	if strings.ContainsAny(c.Storage.Database, "\x00") {
		return errors.New("storage.database contains an invalid character")
	}
	return nil
}

func (c *Config) validateQueue() error {
	if c.Queue.Key == "" {
		return errors.New("queue.key must be set")
	}
	return nil
}

func (c *Config) validateConnectivity() error {
	switch c.Connectivity.Source {
	case SourceNetlink, SourceStatic:
		return nil
	default:
		return fmt.Errorf("connectivity.source must be %q or %q, got %q", SourceNetlink, SourceStatic, c.Connectivity.Source)
	}
}

func (c *Config) validateReconcile() error {
	if !c.Reconcile.Enabled || c.Reconcile.Endpoint == "" {
		return nil
	}
	parsed, err := url.Parse(c.Reconcile.Endpoint)
	if err != nil {
		return fmt.Errorf("reconcile.endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("reconcile.endpoint must use http or https, got %q", c.Reconcile.Endpoint)
	}
	if parsed.Host == "" {
		return fmt.Errorf("reconcile.endpoint must include a host, got %q", c.Reconcile.Endpoint)
	}
	return ensurePositiveMap(map[string]int{
		"reconcile.timeout_seconds":     c.Reconcile.TimeoutSeconds,
		"reconcile.backoff_initial_ms":  c.Reconcile.BackoffInitialMs,
		"reconcile.backoff_max_seconds": c.Reconcile.BackoffMaxSeconds,
	})
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
