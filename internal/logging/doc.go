// Package logging assembles structured slog loggers and formatting helpers used
// across corpora components.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code automatically
// tags log lines with subset names, document identifiers, stage keys, and run
// identifiers. The package also provides a no-op logger for tests and wiring
// code that cannot fail.
package logging
