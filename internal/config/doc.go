// Package config loads, normalizes, and validates the TOML configuration
// shared by the curator daemon and CLI.
package config
