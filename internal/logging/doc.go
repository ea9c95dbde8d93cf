// Package logging assembles structured slog loggers and formatting helpers used
// across ferry.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so stage code can tag log lines with the
// catalog item, pipeline stage, transport strategy, and run correlation ID.
// A no-op logger is provided for tests and wiring code that cannot fail.
package logging
