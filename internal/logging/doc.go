// Package logging assembles structured slog loggers and formatting helpers used
// across stash binaries.
//
// It owns the console/JSON handlers, level parsing, rotating file outputs, and
// context-aware helpers that tag log lines with queue item IDs and run IDs.
// A no-op logger is provided for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits the same field names (component, event_type, error_hint, impact).
package logging
