package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"

	"stash/internal/config"
	"stash/internal/connectivity"
	"stash/internal/daemon"
	"stash/internal/kvstore"
	"stash/internal/logging"
	"stash/internal/preflight"
	"stash/internal/queue"
	"stash/internal/reconcile"
)

// Options configures daemon process runtime behavior.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel string
}

// Run starts the stash daemon runtime loop and blocks until SIGINT, SIGTERM,
// or cmdCtx cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if opts.LogLevel != "" {
		copyCfg := *cfg
		copyCfg.Logging.Level = opts.LogLevel
		cfg = &copyCfg
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	runID := uuid.NewString()
	logger = logger.With(logging.String(logging.FieldRunID, runID))
	signalCtx = logging.WithRunID(signalCtx, runID)

	logPreflight(signalCtx, logger, cfg)

	store, err := kvstore.Open(cfg, logger)
	if err != nil {
		logger.Error("open key-value store", logging.Error(err))
		return err
	}

	q := queue.Open(store, queue.OptionsFromConfig(cfg, logger))

	source := SourceFromConfig(cfg, logger)
	tracker := connectivity.NewTracker(source.Online(), logger)

	var applier reconcile.Applier
	if httpApplier, err := reconcile.NewApplier(cfg); err == nil {
		applier = httpApplier
		logger.Info("reconciliation enabled",
			logging.String(logging.FieldEventType, "reconcile_enabled"),
			logging.String("endpoint", httpApplier.Endpoint()),
		)
	} else if errors.Is(err, reconcile.ErrNotConfigured) {
		logger.Info("reconciliation disabled; queued actions are held locally",
			logging.String(logging.FieldEventType, "reconcile_disabled"),
		)
	}

	d, err := daemon.New(cfg, daemon.Deps{
		Store:   store,
		Queue:   q,
		Tracker: tracker,
		Source:  source,
		Applier: applier,
	}, logger)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	// The pid file belongs to whichever process holds the daemon lock.
	pidPath := cfg.DaemonPIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	<-signalCtx.Done()
	logger.Info("stash daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// SourceFromConfig selects the connectivity source named by connectivity.source.
func SourceFromConfig(cfg *config.Config, logger *slog.Logger) connectivity.Source {
	if cfg.Connectivity.Source == config.SourceStatic {
		return connectivity.StaticSource{State: cfg.Connectivity.AssumeOnline}
	}
	return connectivity.NewNetlinkSource(cfg.Connectivity.Interfaces, logger)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	for _, result := range preflight.RunAll(ctx, cfg) {
		if result.Passed {
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.String(logging.FieldErrorHint, "run `stash status` for the full report"),
			logging.String(logging.FieldImpact, "the daemon continues but may be unable to persist or reconcile"),
		)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}
