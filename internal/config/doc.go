// Package config loads the feedwatch configuration from a TOML file,
// environment overrides, and built-in defaults.
package config
