// Package services defines the shared error taxonomy and context keys used
// across the engine. Errors are tagged with sentinel markers so callers can
// classify failures (retryable vs fatal) without inspecting message text.
package services
