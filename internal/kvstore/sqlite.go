package kvstore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteBackend stores entries in a single SQLite table.
type SQLiteBackend struct {
	db    *sql.DB
	path  string
	quota int64
}

// SQLiteOptions tunes an SQLiteBackend.
type SQLiteOptions struct {
	// QuotaBytes caps the summed key and value bytes. Zero disables the cap.
	QuotaBytes int64
}

// OpenSQLite initializes or connects to the database at path.
func OpenSQLite(path string, opts SQLiteOptions) (*SQLiteBackend, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	backend := &SQLiteBackend{db: db, path: path, quota: max(opts.QuotaBytes, 0)}
	if err := backend.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return backend, nil
}

// Path returns the database file location.
func (b *SQLiteBackend) Path() string {
	return b.path
}

// Close closes the underlying database connection.
func (b *SQLiteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLiteBackend) initSchema(ctx context.Context) error {
	var tableExists int
	err := b.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return b.createSchema(ctx)
	}

	var version int
	if err := b.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to start over)",
			ErrSchemaMismatch, version, schemaVersion, b.path)
	}
	return nil
}

func (b *SQLiteBackend) createSchema(ctx context.Context) error {
	return retryOnBusy(ctx, func() error {
		tx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin schema tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		// A concurrent opener may have won the race.
		var rows int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(1) FROM schema_version").Scan(&rows); err != nil {
			return fmt.Errorf("count schema version: %w", err)
		}
		if rows == 0 {
			if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
				return fmt.Errorf("record schema version: %w", err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit schema: %w", err)
		}
		return nil
	})
}

// SetItem inserts or overwrites key, keeping its original position.
func (b *SQLiteBackend) SetItem(ctx context.Context, key, value string) error {
	return b.SetItems(ctx, []Entry{{Key: key, Value: value}})
}

// SetItems writes all entries in one transaction.
func (b *SQLiteBackend) SetItems(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		tx, err := b.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin write tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if b.quota > 0 {
			if err := b.checkQuota(ctx, tx, entries); err != nil {
				return err
			}
		}
		for _, entry := range entries {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO kv (key, value, seq)
VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM kv))
ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
				entry.Key, entry.Value,
			); err != nil {
				return fmt.Errorf("write %q: %w", entry.Key, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit write: %w", err)
		}
		return nil
	})
}

func (b *SQLiteBackend) checkQuota(ctx context.Context, tx *sql.Tx, entries []Entry) error {
	var used int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB))), 0) FROM kv",
	).Scan(&used); err != nil {
		return fmt.Errorf("measure usage: %w", err)
	}
	seen := make(map[string]int64, len(entries))
	for _, entry := range entries {
		if prev, ok := seen[entry.Key]; ok {
			used -= prev
		} else {
			var existing sql.NullInt64
			err := tx.QueryRowContext(ctx,
				"SELECT LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB)) FROM kv WHERE key = ?", entry.Key,
			).Scan(&existing)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("measure %q: %w", entry.Key, err)
			}
			used -= existing.Int64
		}
		size := entrySize(entry.Key, entry.Value)
		seen[entry.Key] = size
		used += size
	}
	if used > b.quota {
		return fmt.Errorf("%w: %d bytes over a %d byte quota", ErrQuotaExceeded, used, b.quota)
	}
	return nil
}

// GetItem returns the value stored under key.
func (b *SQLiteBackend) GetItem(ctx context.Context, key string) (string, bool, error) {
	ctx = ensureContext(ctx)
	var value string
	err := retryOnBusy(ctx, func() error {
		return b.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %q: %w", key, err)
	}
	return value, true, nil
}

// RemoveItem deletes key. Missing keys are not an error.
func (b *SQLiteBackend) RemoveItem(ctx context.Context, key string) error {
	return b.execWithRetry(ctx, "DELETE FROM kv WHERE key = ?", key)
}

// Clear deletes every entry in the database.
func (b *SQLiteBackend) Clear(ctx context.Context) error {
	return b.execWithRetry(ctx, "DELETE FROM kv")
}

// Keys returns every key in first-insertion order.
func (b *SQLiteBackend) Keys(ctx context.Context) ([]string, error) {
	ctx = ensureContext(ctx)
	var keys []string
	err := retryOnBusy(ctx, func() error {
		keys = keys[:0]
		rows, err := b.db.QueryContext(ctx, "SELECT key FROM kv ORDER BY seq")
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			if err := rows.Scan(&key); err != nil {
				return err
			}
			keys = append(keys, key)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// Usage reports stored bytes against the configured quota.
func (b *SQLiteBackend) Usage(ctx context.Context) (Usage, error) {
	ctx = ensureContext(ctx)
	usage := Usage{QuotaBytes: b.quota}
	err := retryOnBusy(ctx, func() error {
		return b.db.QueryRowContext(ctx,
			"SELECT COUNT(1), COALESCE(SUM(LENGTH(CAST(key AS BLOB)) + LENGTH(CAST(value AS BLOB))), 0) FROM kv",
		).Scan(&usage.Keys, &usage.UsedBytes)
	})
	if err != nil {
		return Usage{}, fmt.Errorf("measure usage: %w", err)
	}
	return usage, nil
}

func (b *SQLiteBackend) execWithRetry(ctx context.Context, query string, args ...any) error {
	ctx = ensureContext(ctx)
	return retryOnBusy(ctx, func() error {
		_, err := b.db.ExecContext(ctx, query, args...)
		return err
	})
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
