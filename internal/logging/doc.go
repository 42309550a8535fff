// Package logging builds the slog loggers used across cardpress and defines
// the shared structured field vocabulary. Two output formats are supported:
// a compact console format for interactive use and JSON for log files and
// collectors.
package logging
