// Package daemon coordinates the long-running stashd process.
//
// It wires the key-value store, the sync queue, the connectivity tracker and
// its event source, the queue change watcher, and the reconciliation driver
// into a single lifecycle with flock-based locking to prevent multiple
// instances.
//
// Keep orchestration logic here: storage, queue and reconciliation semantics
// live in their respective packages while the daemon focuses on startup,
// shutdown, and status reporting.
package daemon
