// Package main hosts the stash CLI entrypoint and command graph.
//
// The Cobra-based command tree opens the same SQLite database the daemon
// uses, so inspection and maintenance work whether or not stashd is running.
// Queue mutations go through the queue's file lock and version counter, which
// keeps CLI edits and daemon drains from overwriting each other. A background
// daemon is managed through its lock and pid files (`stash daemon start`,
// `stop`, `restart`), and `stash logs` reads its log file directly.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
