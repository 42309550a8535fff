// Package config loads, normalizes, and validates the cardpress TOML
// configuration. Loading never creates files; EnsureDirectories materializes
// the directory layout when the daemon starts.
package config
