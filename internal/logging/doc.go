// Package logging builds the application's slog loggers and provides attr
// helpers plus context-carried identifiers for job and document correlation.
package logging
