package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"stash/internal/config"
	"stash/internal/daemonrun"
	"stash/internal/kvstore"
	"stash/internal/preflight"
	"stash/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, connectivity, queue, and storage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var lines []string
			lines = append(lines, renderSectionHeader("System", colorize)...)
			lines = append(lines, daemonStatusLine(preflight.ProbeDaemon(cfg), colorize))
			lines = append(lines, connectivityStatusLine(cfg, colorize))
			lines = append(lines, reconcileStatusLine(cfg, colorize))

			err = ctx.withQueue(func(store *kvstore.Store, q *queue.Queue) error {
				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Queue", colorize)...)
				lines = append(lines, queueStatusLines(q.Summary(cfg.Reconcile.MaxAttempts), cfg.Reconcile.MaxAttempts, time.Now(), colorize)...)

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Storage", colorize)...)
				lines = append(lines, renderStatusLine("Database", statusInfo, cfg.DatabasePath(), colorize))
				lines = append(lines, renderStatusLine("Prefix", statusInfo, fmt.Sprintf("%q", store.Prefix()), colorize))
				if usage, ok := store.Usage(); ok {
					lines = append(lines, usageStatusLine(usage, colorize))
				}
				return nil
			})
			if err != nil {
				return err
			}

			lines = append(lines, "")
			lines = append(lines, renderSectionHeader("Checks", colorize)...)
			lines = append(lines, checkLines(preflight.RunAll(cmd.Context(), cfg), map[string]bool{
				"Free space":         true,
				"Reconcile endpoint": true,
			}, colorize)...)

			fmt.Fprintln(out, strings.Join(lines, "\n"))
			return nil
		},
	}
}

func daemonStatusLine(probe preflight.DaemonProbe, colorize bool) string {
	switch {
	case probe.Err != nil:
		return renderStatusLine("Daemon", statusWarn, probe.Detail(), colorize)
	case probe.Running:
		return renderStatusLine("Daemon", statusOK, probe.Detail(), colorize)
	default:
		return renderStatusLine("Daemon", statusInfo, "Not running (start with `stash daemon` or stashd)", colorize)
	}
}

func connectivityStatusLine(cfg *config.Config, colorize bool) string {
	source := daemonrun.SourceFromConfig(cfg, nil)
	label := fmt.Sprintf("Online (%s)", cfg.Connectivity.Source)
	if !source.Online() {
		return renderStatusLine("Connectivity", statusWarn, fmt.Sprintf("Offline (%s)", cfg.Connectivity.Source), colorize)
	}
	return renderStatusLine("Connectivity", statusOK, label, colorize)
}

func reconcileStatusLine(cfg *config.Config, colorize bool) string {
	if !cfg.Reconcile.Enabled {
		return renderStatusLine("Reconcile", statusInfo, "Disabled", colorize)
	}
	endpoint := strings.TrimSpace(cfg.Reconcile.Endpoint)
	if endpoint == "" {
		return renderStatusLine("Reconcile", statusWarn, "No endpoint; actions are held locally", colorize)
	}
	return renderStatusLine("Reconcile", statusOK, endpoint, colorize)
}

func queueStatusLines(summary queue.Summary, maxAttempts int, now time.Time, colorize bool) []string {
	if summary.Total == 0 {
		return []string{renderStatusLine("Pending", statusOK, "Queue is empty", colorize)}
	}
	lines := []string{
		renderStatusLine("Pending", statusInfo, fmt.Sprintf("%d items", summary.Total), colorize),
	}
	if summary.Oldest != nil {
		lines = append(lines, renderStatusLine("Oldest", statusInfo, humanize.RelTime(*summary.Oldest, now, "ago", "from now"), colorize))
	}
	if summary.Retried > 0 {
		lines = append(lines, renderStatusLine("Retried", statusWarn, fmt.Sprintf("%d items", summary.Retried), colorize))
	}
	if maxAttempts > 0 && summary.Exhausted > 0 {
		lines = append(lines, renderStatusLine("Exhausted", statusError,
			fmt.Sprintf("%d items at %d attempts (inspect with `stash queue list`)", summary.Exhausted, maxAttempts), colorize))
	}
	return lines
}

func usageStatusLine(usage kvstore.Usage, colorize bool) string {
	used := humanize.IBytes(uint64(usage.UsedBytes))
	if usage.QuotaBytes <= 0 {
		return renderStatusLine("Usage", statusInfo, fmt.Sprintf("%s in %d keys (no quota)", used, usage.Keys), colorize)
	}
	ratio := float64(usage.UsedBytes) / float64(usage.QuotaBytes)
	kind := statusOK
	if ratio >= 0.9 {
		kind = statusWarn
	}
	return renderStatusLine("Usage", kind, fmt.Sprintf("%s of %s (%.0f%%) in %d keys",
		used, humanize.IBytes(uint64(usage.QuotaBytes)), ratio*100, usage.Keys), colorize)
}
