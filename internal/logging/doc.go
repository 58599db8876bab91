// Package logging wires log/slog for the daemon and CLI.
//
// It provides typed attribute constructors, shared field-name constants, a
// console handler that renders compact single-line records, a JSON handler
// for machine consumption, and a no-op logger for tests.
package logging
