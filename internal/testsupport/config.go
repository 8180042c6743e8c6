package testsupport

import (
	"path/filepath"
	"testing"

	"stash/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Connectivity defaults to a static online source so tests never touch netlink.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Connectivity.Source = config.SourceStatic
	cfgVal.Connectivity.AssumeOnline = true
	cfgVal.Reconcile.Endpoint = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithPrefix overrides the storage namespace.
func WithPrefix(prefix string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.Prefix = prefix
	}
}

// WithQuota caps the database size in bytes.
func WithQuota(bytes int64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Storage.QuotaBytes = bytes
	}
}

// WithEndpoint points reconciliation at url.
func WithEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Reconcile.Endpoint = url
	}
}

// WithOffline starts the static connectivity source offline.
func WithOffline() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Connectivity.AssumeOnline = false
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
