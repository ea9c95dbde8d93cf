package config

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"ferry/internal/services"
)

func configError(msg string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", services.ErrConfiguration, msg)
	}
	return fmt.Errorf("%w: %s: %w", services.ErrConfiguration, msg, err)
}

// Validate ensures the configuration is usable. Every returned error matches
// services.ErrConfiguration.
func (c *Config) Validate() error {
	checks := []func() error{
		c.validateSource,
		c.validateBatch,
		c.validateAcquisition,
		c.validateIdentity,
		c.validateTransform,
		c.validatePublish,
		c.validateProgress,
		c.validateNotify,
		c.validateLogging,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateSource() error {
	if c.Source.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/ferry/config.toml"
		}
		return configError(fmt.Sprintf("source.url is required. Set FERRY_SOURCE_URL or edit %s (create with 'ferry config init')", defaultPath), nil)
	}
	parsed, err := url.Parse(c.Source.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return configError(fmt.Sprintf("source.url %q is not an absolute URL", c.Source.URL), err)
	}
	if c.Source.Order != OrderOldest && c.Source.Order != OrderNewest {
		return configError(fmt.Sprintf("source.order must be %q or %q, got %q", OrderOldest, OrderNewest, c.Source.Order), nil)
	}
	for _, listing := range c.Source.Listings {
		if listing != ListingVideos && listing != ListingShorts {
			return configError(fmt.Sprintf("source.listings: unsupported listing %q", listing), nil)
		}
	}
	if _, ok := validBrowsers[c.Source.Browser]; !ok {
		return configError(fmt.Sprintf("source.browser: unsupported browser %q", c.Source.Browser), nil)
	}
	return nil
}

func (c *Config) validateBatch() error {
	if c.Batch.Size <= 0 {
		return configError("batch.size must be positive", nil)
	}
	if c.Batch.DelayMinSeconds < 0 || c.Batch.DelayMaxSeconds < 0 {
		return configError("batch delays must not be negative", nil)
	}
	if c.Batch.DelayMinSeconds > c.Batch.DelayMaxSeconds {
		return configError(fmt.Sprintf("batch.delay_min_seconds (%d) exceeds batch.delay_max_seconds (%d)", c.Batch.DelayMinSeconds, c.Batch.DelayMaxSeconds), nil)
	}
	if c.Batch.StaleSweepMinutes < 0 {
		return configError("batch.stale_sweep_minutes must not be negative", nil)
	}
	return nil
}

func (c *Config) validateAcquisition() error {
	if len(c.Acquisition.Strategies) == 0 {
		return configError("acquisition.strategies must list at least one strategy", nil)
	}
	for _, id := range c.Acquisition.Strategies {
		if !slices.Contains(KnownStrategies, id) {
			return configError(fmt.Sprintf("acquisition.strategies: unknown strategy %q", id), nil)
		}
	}
	if slices.Contains(c.Acquisition.Strategies, StrategyRelay) && c.Relay.BaseURL == "" {
		return configError("relay.base_url is required when the relay strategy is enabled", nil)
	}
	if c.Acquisition.SameStrategyRetries < 0 || c.Acquisition.BlockedRetries < 0 {
		return configError("acquisition retry counts must not be negative", nil)
	}
	if c.Acquisition.BackoffInitialSeconds > c.Acquisition.BackoffMaxSeconds {
		return configError("acquisition.backoff_initial_seconds exceeds backoff_max_seconds", nil)
	}
	if c.Acquisition.RequestIntervalSeconds < 0 {
		return configError("acquisition.request_interval_seconds must not be negative", nil)
	}
	return nil
}

func (c *Config) validateIdentity() error {
	switch c.Identity.Provider {
	case IdentityNone:
	case IdentityTor:
		if _, err := url.Parse(c.Identity.SocksProxy); err != nil {
			return configError("identity.socks_proxy is not a valid URL", err)
		}
	case IdentityProxyPool:
		if len(c.Identity.Proxies) == 0 {
			return configError("identity.proxies must not be empty for the proxy_pool provider", nil)
		}
		for _, p := range c.Identity.Proxies {
			if u, err := url.Parse(p); err != nil || u.Scheme == "" || u.Host == "" {
				return configError(fmt.Sprintf("identity.proxies: invalid proxy %q", p), err)
			}
		}
	default:
		return configError(fmt.Sprintf("identity.provider: unsupported provider %q", c.Identity.Provider), nil)
	}
	if slices.Contains(c.Acquisition.Strategies, StrategyAnonymized) && c.Identity.Provider == IdentityNone {
		return configError("the anonymized strategy requires identity.provider tor or proxy_pool", nil)
	}
	return nil
}

func (c *Config) validateNotify() error {
	if c.Notify.NtfyTopic == "" {
		return nil
	}
	if u, err := url.Parse(c.Notify.NtfyTopic); err != nil || u.Scheme == "" || u.Host == "" {
		return configError(fmt.Sprintf("notify.ntfy_topic must be a full topic URL, got %q", c.Notify.NtfyTopic), err)
	}
	return nil
}

func (c *Config) validateTransform() error {
	if c.Transform.Speed < 0.5 || c.Transform.Speed > 2.0 {
		return configError(fmt.Sprintf("transform.speed must be between 0.5 and 2.0, got %g", c.Transform.Speed), nil)
	}
	return nil
}

func (c *Config) validatePublish() error {
	switch c.Publish.Provider {
	case PublishNone:
		return nil
	case PublishYouTube:
	default:
		return configError(fmt.Sprintf("publish.provider: unsupported provider %q", c.Publish.Provider), nil)
	}
	if _, ok := validVisibilities[c.Publish.Visibility]; !ok {
		return configError(fmt.Sprintf("publish.visibility: unsupported value %q", c.Publish.Visibility), nil)
	}
	if c.Publish.ClientID == "" || c.Publish.ClientSecret == "" {
		return configError("publish.client_id and publish.client_secret are required (or FERRY_CLIENT_ID / FERRY_CLIENT_SECRET)", nil)
	}
	return nil
}

func (c *Config) validateProgress() error {
	switch c.Progress.Backend {
	case ProgressLedger, ProgressSQLite:
		return nil
	default:
		return configError(fmt.Sprintf("progress.backend: unsupported backend %q", c.Progress.Backend), nil)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return configError(fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format), nil)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return configError(fmt.Sprintf("logging.level: unsupported value %q", c.Logging.Level), errors.New("use debug, info, warn or error"))
	}
	return nil
}

// ValidVisibility reports whether v is an accepted publish visibility.
func ValidVisibility(v string) bool {
	_, ok := validVisibilities[v]
	return ok
}
