// Package logging assembles structured slog loggers and formatting helpers used
// by the mqfile server and client.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so transfer code can tag log
// lines with transfer IDs and peer addresses. The package also provides a
// no-op logger for tests and wiring code that cannot fail.
//
// Client processes log to stderr only; stdout is reserved for file content.
package logging
