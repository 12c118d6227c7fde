// Package config loads the sessionlock configuration.
//
// The configuration is a TOML file, by default $XDG_CONFIG_HOME/sessionlock/config.toml.
// Missing files and missing keys fall back to [Default]. Environment variables override the file:
//   - SESSIONLOCK_CONFIG: path of the configuration file
//   - SESSIONLOCK_SEED_TEXT: seed_text
//   - SESSIONLOCK_SCALE: scale
//   - SESSIONLOCK_IDLE_TIMEOUT: daemon.idle_timeout, e.g. "10m"
package config
