// Package logging constructs the application slog loggers: a compact
// console handler for interactive use and a JSON handler for machine
// consumption, plus attribute helpers and standardized field keys.
package logging
