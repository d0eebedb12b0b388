// Package logging assembles structured slog loggers and formatting helpers used
// across releasekit.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so job code can tag log lines
// with run IDs, job names, and trackers. The package also provides a no-op
// logger for tests and wiring code that cannot fail.
//
// Console output is written to stderr so that job output printed on stdout can
// be piped into other tools.
package logging
