// Package queue records pending actions that still need to reach the remote
// source of truth.
//
// The Queue keeps an ordered slice of Items and writes the whole slice through
// the key-value store on every mutation, so a restart reloads exactly the last
// persisted sequence. It never decides whether an action succeeded: callers
// report outcomes with Remove (applied) or Retry (attempt failed).
//
// Several processes may share one database. Mutations take an optional file
// lock and bump a persisted version; a queue that sees a newer version reloads
// before it writes. The Watcher reloads idle queues when another process
// commits.
package queue
