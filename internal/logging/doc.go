// Package logging configures slog output for the daemon and CLI with
// console and JSON formats, and provides attr helpers plus context-derived
// fields (task, stage, pipeline, correlation id) used across the engine.
package logging
