package preflight

import (
	"context"
	"strings"

	"stash/internal/config"
)

// MinFreeBytes is the free-space floor below which the data directory check fails.
const MinFreeBytes = 16 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Data directory (always checked)
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckFreeSpace("Free space", cfg.Paths.DataDir, minFree(cfg)))

	// Log directory (only when it lives elsewhere)
	if cfg.Paths.LogDir != "" && cfg.Paths.LogDir != cfg.Paths.DataDir {
		results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	}

	// Reconcile endpoint
	if cfg.Reconcile.Enabled && strings.TrimSpace(cfg.Reconcile.Endpoint) != "" {
		results = append(results, CheckEndpoint(ctx, cfg.Reconcile.Endpoint))
	}

	return results
}

// Failed filters results down to failing checks.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

// minFree never asks for less room than the configured quota could occupy.
func minFree(cfg *config.Config) uint64 {
	floor := uint64(MinFreeBytes)
	if cfg.Storage.QuotaBytes > 0 && uint64(cfg.Storage.QuotaBytes) > floor {
		return uint64(cfg.Storage.QuotaBytes)
	}
	return floor
}
