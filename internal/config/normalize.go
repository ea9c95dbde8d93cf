package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizeAcquisition()
	c.normalizeIdentity()
	c.normalizeRelay()
	c.normalizeTransform()
	if err := c.normalizePublish(); err != nil {
		return err
	}
	if err := c.normalizeProgress(); err != nil {
		return err
	}
	c.normalizeNotify()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	fields := []struct {
		name  string
		value *string
		def   string
	}{
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.staging_dir", &c.Paths.StagingDir, defaultStagingDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
		{"paths.ledger_path", &c.Paths.LedgerPath, defaultLedgerPath},
		{"paths.cookies_path", &c.Paths.CookiesPath, defaultCookiesPath},
		{"paths.cookies_base64_path", &c.Paths.CookiesBase64Path, defaultCookiesBase64},
	}
	for _, f := range fields {
		if strings.TrimSpace(*f.value) == "" {
			*f.value = f.def
		}
		expanded, err := expandPath(strings.TrimSpace(*f.value))
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.value = expanded
	}
	return nil
}

func (c *Config) normalizeSource() {
	c.Source.URL = strings.TrimSpace(c.Source.URL)
	if value, ok := os.LookupEnv("FERRY_SOURCE_URL"); ok && c.Source.URL == "" {
		c.Source.URL = strings.TrimSpace(value)
	}
	c.Source.Order = strings.ToLower(strings.TrimSpace(c.Source.Order))
	if c.Source.Order == "" {
		c.Source.Order = OrderOldest
	}
	c.Source.Browser = strings.ToLower(strings.TrimSpace(c.Source.Browser))
	if c.Source.Browser == "" {
		c.Source.Browser = defaultBrowser
	}
	c.Source.YtDLPBinary = strings.TrimSpace(c.Source.YtDLPBinary)
	if c.Source.YtDLPBinary == "" {
		c.Source.YtDLPBinary = defaultYtDLPBinary
	}
	c.Source.Listings = normalizeList(c.Source.Listings, true)
	if len(c.Source.Listings) == 0 {
		c.Source.Listings = []string{ListingVideos, ListingShorts}
	}
}

func (c *Config) normalizeAcquisition() {
	c.Acquisition.Strategies = normalizeList(c.Acquisition.Strategies, true)
	c.Acquisition.CanonicalContainer = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(c.Acquisition.CanonicalContainer)), ".")
	if c.Acquisition.CanonicalContainer == "" {
		c.Acquisition.CanonicalContainer = defaultCanonicalContainer
	}
	if c.Acquisition.BackoffInitialSeconds <= 0 {
		c.Acquisition.BackoffInitialSeconds = defaultBackoffInitial
	}
	if c.Acquisition.BackoffMaxSeconds <= 0 {
		c.Acquisition.BackoffMaxSeconds = defaultBackoffMax
	}
	if c.Acquisition.AttemptTimeoutSeconds <= 0 {
		c.Acquisition.AttemptTimeoutSeconds = defaultAttemptTimeout
	}
	if c.Acquisition.MinArtifactBytes <= 0 {
		c.Acquisition.MinArtifactBytes = defaultMinArtifactBytes
	}
}

func (c *Config) normalizeIdentity() {
	c.Identity.Provider = strings.ToLower(strings.TrimSpace(c.Identity.Provider))
	if c.Identity.Provider == "" {
		c.Identity.Provider = IdentityNone
	}
	if c.Identity.TorControlPassword == "" {
		if value, ok := os.LookupEnv("FERRY_TOR_PASSWORD"); ok {
			c.Identity.TorControlPassword = value
		}
	}
	c.Identity.TorControlAddr = strings.TrimSpace(c.Identity.TorControlAddr)
	if c.Identity.TorControlAddr == "" {
		c.Identity.TorControlAddr = defaultTorControlAddr
	}
	c.Identity.SocksProxy = strings.TrimSpace(c.Identity.SocksProxy)
	if c.Identity.SocksProxy == "" {
		c.Identity.SocksProxy = defaultSocksProxy
	}
	c.Identity.CheckURL = strings.TrimSpace(c.Identity.CheckURL)
	if c.Identity.CheckURL == "" {
		c.Identity.CheckURL = defaultCheckURL
	}
	c.Identity.RestartCommand = strings.TrimSpace(c.Identity.RestartCommand)
	c.Identity.Proxies = normalizeList(c.Identity.Proxies, false)
	if c.Identity.RotateTimeoutSeconds <= 0 {
		c.Identity.RotateTimeoutSeconds = defaultRotateTimeout
	}
}

func (c *Config) normalizeRelay() {
	c.Relay.BaseURL = strings.TrimRight(strings.TrimSpace(c.Relay.BaseURL), "/")
	if c.Relay.APIKey == "" {
		if value, ok := os.LookupEnv("FERRY_RELAY_API_KEY"); ok {
			c.Relay.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeTransform() {
	if c.Transform.Speed <= 0 {
		c.Transform.Speed = defaultSpeed
	}
	c.Transform.FFmpegBinary = strings.TrimSpace(c.Transform.FFmpegBinary)
	if c.Transform.FFmpegBinary == "" {
		c.Transform.FFmpegBinary = defaultFFmpegBinary
	}
	c.Transform.FFprobeBinary = strings.TrimSpace(c.Transform.FFprobeBinary)
	if c.Transform.FFprobeBinary == "" {
		c.Transform.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizePublish() error {
	c.Publish.Provider = strings.ToLower(strings.TrimSpace(c.Publish.Provider))
	if c.Publish.Provider == "" {
		c.Publish.Provider = PublishYouTube
	}
	c.Publish.Visibility = strings.ToLower(strings.TrimSpace(c.Publish.Visibility))
	if c.Publish.Visibility == "" {
		c.Publish.Visibility = defaultVisibility
	}
	c.Publish.CategoryID = strings.TrimSpace(c.Publish.CategoryID)
	if c.Publish.CategoryID == "" {
		c.Publish.CategoryID = defaultCategoryID
	}
	if c.Publish.ClientID == "" {
		if value, ok := os.LookupEnv("FERRY_CLIENT_ID"); ok {
			c.Publish.ClientID = strings.TrimSpace(value)
		}
	}
	if c.Publish.ClientSecret == "" {
		if value, ok := os.LookupEnv("FERRY_CLIENT_SECRET"); ok {
			c.Publish.ClientSecret = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Publish.TokenPath) == "" {
		c.Publish.TokenPath = defaultTokenPath
	}
	var err error
	if c.Publish.TokenPath, err = expandPath(c.Publish.TokenPath); err != nil {
		return fmt.Errorf("publish.token_path: %w", err)
	}
	if c.Publish.ChunkSizeMB <= 0 {
		c.Publish.ChunkSizeMB = defaultChunkSizeMB
	}
	if c.Publish.MaxRetries < 0 {
		c.Publish.MaxRetries = 0
	}
	return nil
}

func (c *Config) normalizeProgress() error {
	c.Progress.Backend = strings.ToLower(strings.TrimSpace(c.Progress.Backend))
	if c.Progress.Backend == "" {
		c.Progress.Backend = ProgressLedger
	}
	if strings.TrimSpace(c.Progress.SQLitePath) == "" {
		c.Progress.SQLitePath = defaultSQLitePath
	}
	var err error
	if c.Progress.SQLitePath, err = expandPath(c.Progress.SQLitePath); err != nil {
		return fmt.Errorf("progress.sqlite_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeNotify() {
	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)
	if value, ok := os.LookupEnv("FERRY_NTFY_TOPIC"); ok && c.Notify.NtfyTopic == "" {
		c.Notify.NtfyTopic = strings.TrimSpace(value)
	}
	if c.Notify.RequestTimeoutSeconds <= 0 {
		c.Notify.RequestTimeoutSeconds = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func normalizeList(values []string, lower bool) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
