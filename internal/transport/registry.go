package transport

import (
	"ferry/internal/config"
)

// NewDefaultRegistry registers every strategy id ferry knows, wired from cfg.
func NewDefaultRegistry(cfg *config.Config, client Downloader) *Registry {
	cookies := func(id string, mode CookieMode, persona Persona, routed bool) *YtDLP {
		return &YtDLP{
			ID:                id,
			Client:            client,
			Persona:           persona,
			Cookies:           mode,
			Browser:           cfg.Source.Browser,
			CookiesPath:       cfg.Paths.CookiesPath,
			CookiesBase64Path: cfg.Paths.CookiesBase64Path,
			Routed:            routed,
		}
	}
	return NewRegistry(
		cookies(config.StrategyBrowserCookies, CookiesBrowser, Persona{}, false),
		cookies(config.StrategyCookieFile, CookiesFileRequired, Persona{}, false),
		cookies(config.StrategyIOSClient, CookiesFileOptional, PersonaIOS, false),
		cookies(config.StrategyAndroidClient, CookiesFileOptional, PersonaAndroid, false),
		cookies(config.StrategyTVClient, CookiesFileOptional, PersonaTV, false),
		cookies(config.StrategyAnonymized, CookiesNone, PersonaAndroid, true),
		NewRelay(cfg.Relay.BaseURL, cfg.Relay.APIKey),
	)
}
