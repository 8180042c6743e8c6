// Package logs reads the daemon's rotating JSON log for `stash logs`.
//
// Tail returns the last N lines or everything past a byte offset, and in
// follow mode blocks until new lines land (woken by fsnotify, with a slow
// poll as backstop). A file that shrank underneath the reader was rotated,
// so reading restarts from the top of the fresh file. FormatLine renders a
// JSON record as a compact console line.
package logs
