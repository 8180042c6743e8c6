// Package kvstore provides the durable, namespaced key-value store that the
// rest of stash persists through.
//
// A Backend is the raw string surface (SQLite on disk, or memory for tests and
// ephemeral callers). Store layers a key prefix and JSON encoding on top and
// absorbs every backend failure: writes report false, reads fall back to the
// caller's default, and the cause is logged with event_type and error_hint
// fields. Callers never see a storage error or a panic from Store.
package kvstore
