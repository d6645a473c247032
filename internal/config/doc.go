// Package config loads, normalizes, and validates Conveyor's TOML
// configuration. Defaults are defined in defaults.go; Load applies the
// file on top of Default and then normalizes paths and bounds.
package config
