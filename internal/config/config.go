package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths holds filesystem locations.
type Paths struct {
	StateDir          string `toml:"state_dir"`
	StagingDir        string `toml:"staging_dir"`
	LogDir            string `toml:"log_dir"`
	LedgerPath        string `toml:"ledger_path"`
	CookiesPath       string `toml:"cookies_path"`
	CookiesBase64Path string `toml:"cookies_base64_path"`
}

// Source describes the remote catalog being mirrored.
type Source struct {
	URL      string   `toml:"url"`
	Listings []string `toml:"listings"`
	Order    string   `toml:"order"`
	Browser  string   `toml:"browser"`
	// YtDLPBinary is the yt-dlp executable used for listing and download.
	YtDLPBinary string `toml:"ytdlp_binary"`
}

// Batch bounds each run.
type Batch struct {
	Size                  int  `toml:"size"`
	DelayMinSeconds       int  `toml:"delay_min_seconds"`
	DelayMaxSeconds       int  `toml:"delay_max_seconds"`
	StaleSweepMinutes     int  `toml:"stale_sweep_minutes"`
	AbortOnPartialListing bool `toml:"abort_on_partial_listing"`
}

// Acquisition tunes the strategy engine.
type Acquisition struct {
	Strategies             []string `toml:"strategies"`
	SameStrategyRetries    int      `toml:"same_strategy_retries"`
	BlockedRetries         int      `toml:"blocked_retries"`
	BackoffInitialSeconds  int      `toml:"backoff_initial_seconds"`
	BackoffMaxSeconds      int      `toml:"backoff_max_seconds"`
	MinArtifactBytes       int64    `toml:"min_artifact_bytes"`
	AttemptTimeoutSeconds  int      `toml:"attempt_timeout_seconds"`
	RequestIntervalSeconds float64  `toml:"request_interval_seconds"`
	CanonicalContainer     string   `toml:"canonical_container"`
	RotateOnBlocked        bool     `toml:"rotate_on_blocked"`
}

// Identity selects the egress identity provider.
type Identity struct {
	Provider             string   `toml:"provider"`
	TorControlAddr       string   `toml:"tor_control_addr"`
	TorControlPassword   string   `toml:"tor_control_password"`
	SocksProxy           string   `toml:"socks_proxy"`
	Proxies              []string `toml:"proxies"`
	RestartCommand       string   `toml:"restart_command"`
	CheckURL             string   `toml:"check_url"`
	RotateTimeoutSeconds int      `toml:"rotate_timeout_seconds"`
}

// Relay configures the third-party relay strategy.
type Relay struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
}

// Transform configures the ffmpeg collaborator.
type Transform struct {
	Speed         float64 `toml:"speed"`
	FFmpegBinary  string  `toml:"ffmpeg_binary"`
	FFprobeBinary string  `toml:"ffprobe_binary"`
}

// Publish configures the destination service.
type Publish struct {
	Provider     string `toml:"provider"`
	Visibility   string `toml:"visibility"`
	CategoryID   string `toml:"category_id"`
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	TokenPath    string `toml:"token_path"`
	ChunkSizeMB  int    `toml:"chunk_size_mb"`
	MaxRetries   int    `toml:"max_retries"`
}

// Progress selects the completion store backend.
type Progress struct {
	Backend    string `toml:"backend"`
	SQLitePath string `toml:"sqlite_path"`
}

// Notify configures end-of-run notifications.
type Notify struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	OnlyOnProblems        bool   `toml:"only_on_problems"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for ferry.
//
// Configuration sections by subsystem:
//   - Paths: state, staging, logs, ledger and cookie files
//   - Source: catalog URL, sub-listings and processing order
//   - Batch: per-run bounds, pacing and stale sweep
//   - Acquisition: strategy order, retries, backoff and validation
//   - Identity: tor / proxy pool egress rotation
//   - Relay: third-party relay API
//   - Transform: ffmpeg binaries and speed factor
//   - Publish: destination service credentials and upload tuning
//   - Progress: ledger or sqlite completion store
//   - Notify: ntfy run summaries
//   - Logging: log format, level, and retention
type Config struct {
	Paths       Paths       `toml:"paths"`
	Source      Source      `toml:"source"`
	Batch       Batch       `toml:"batch"`
	Acquisition Acquisition `toml:"acquisition"`
	Identity    Identity    `toml:"identity"`
	Relay       Relay       `toml:"relay"`
	Transform   Transform   `toml:"transform"`
	Publish     Publish     `toml:"publish"`
	Progress    Progress    `toml:"progress"`
	Notify      Notify      `toml:"notify"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/ferry/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and defaults applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, configError("parse config", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("ferry.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the state, staging and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.StagingDir, c.Paths.LogDir, filepath.Dir(c.Paths.LedgerPath)} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RawDir is where strategies write downloaded payloads.
func (c *Config) RawDir() string { return filepath.Join(c.Paths.StagingDir, "raw") }

// OutDir is where the transform collaborator writes its output.
func (c *Config) OutDir() string { return filepath.Join(c.Paths.StagingDir, "out") }

// LockPath is the run lock file guarding against concurrent runs.
func (c *Config) LockPath() string { return filepath.Join(c.Paths.StateDir, "ferry.lock") }

// ReportPath is where the last run report is written.
func (c *Config) ReportPath() string { return filepath.Join(c.Paths.StateDir, "last_run.yaml") }

// PublishEnabled reports whether a real destination service is configured.
func (c *Config) PublishEnabled() bool { return c.Publish.Provider != PublishNone }

func (a Acquisition) BackoffInitial() time.Duration {
	return time.Duration(a.BackoffInitialSeconds) * time.Second
}

func (a Acquisition) BackoffMax() time.Duration {
	return time.Duration(a.BackoffMaxSeconds) * time.Second
}

func (a Acquisition) AttemptTimeout() time.Duration {
	return time.Duration(a.AttemptTimeoutSeconds) * time.Second
}

func (a Acquisition) RequestInterval() time.Duration {
	return time.Duration(a.RequestIntervalSeconds * float64(time.Second))
}

func (b Batch) DelayMin() time.Duration { return time.Duration(b.DelayMinSeconds) * time.Second }

func (b Batch) DelayMax() time.Duration { return time.Duration(b.DelayMaxSeconds) * time.Second }

func (b Batch) StaleSweepAge() time.Duration {
	return time.Duration(b.StaleSweepMinutes) * time.Minute
}

// RequestTimeout bounds a single notification request.
func (n Notify) RequestTimeout() time.Duration {
	return time.Duration(n.RequestTimeoutSeconds) * time.Second
}

// NotifyEnabled reports whether run summaries are pushed anywhere.
func (c *Config) NotifyEnabled() bool { return c.Notify.NtfyTopic != "" }

func (i Identity) RotateTimeout() time.Duration {
	return time.Duration(i.RotateTimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the effective configuration as TOML with secrets redacted.
func (c *Config) Encode() ([]byte, error) {
	clone := *c
	clone.Publish.ClientSecret = redact(clone.Publish.ClientSecret)
	clone.Identity.TorControlPassword = redact(clone.Identity.TorControlPassword)
	clone.Relay.APIKey = redact(clone.Relay.APIKey)
	return toml.Marshal(clone)
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	return "********"
}
