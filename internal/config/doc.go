// Package config loads, normalizes, and validates ferry's TOML configuration.
//
// A Config is constructed once at process start and handed to every component
// constructor. Load resolves the file location (explicit path, then
// ~/.config/ferry/config.toml, then ./ferry.toml), applies defaults for
// anything the file omits, fills secrets from FERRY_* environment variables,
// and rejects unusable settings with errors marked services.ErrConfiguration.
package config
