package config

const (
	defaultDataDir                 = "~/.local/share/stash"
	defaultLogDir                  = "~/.local/share/stash/logs"
	defaultDatabaseFile            = "stash.db"
	defaultStoragePrefix           = "app_"
	defaultStorageQuotaBytes       = 5 << 20
	defaultClearScope              = ClearScopeAll
	defaultQueueKey                = "sync_queue"
	defaultQueueLock               = true
	defaultQueueWatch              = true
	defaultQueueWatchDebounceMs    = 100
	defaultConnectivitySource      = SourceNetlink
	defaultReconcileTimeoutSeconds = 10
	defaultReconcileMaxAttempts    = 0
	defaultReconcileBackoffInitMs  = 500
	defaultReconcileBackoffMaxSecs = 300
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultLogMaxSizeMB            = 20
	defaultLogMaxBackups           = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Storage: Storage{
			Database:   defaultDatabaseFile,
			Prefix:     defaultStoragePrefix,
			QuotaBytes: defaultStorageQuotaBytes,
			ClearScope: defaultClearScope,
		},
		Queue: Queue{
			Key:             defaultQueueKey,
			Lock:            defaultQueueLock,
			Watch:           defaultQueueWatch,
			WatchDebounceMs: defaultQueueWatchDebounceMs,
		},
		Connectivity: Connectivity{
			Source:       defaultConnectivitySource,
			AssumeOnline: true,
		},
		Reconcile: Reconcile{
			Enabled:           true,
			TimeoutSeconds:    defaultReconcileTimeoutSeconds,
			MaxAttempts:       defaultReconcileMaxAttempts,
			BackoffInitialMs:  defaultReconcileBackoffInitMs,
			BackoffMaxSeconds: defaultReconcileBackoffMaxSecs,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
		},
	}
}
