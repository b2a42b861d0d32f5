// Package config loads, validates, and provides defaults for the
// scrobbled TOML configuration file.
package config
