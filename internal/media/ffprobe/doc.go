// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe and returns a Result; helper methods expose stream
// counts (including caption tracks), display dimensions with rotation
// applied, duration and container names.
package ffprobe
