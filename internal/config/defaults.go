package config

const (
	OrderOldest = "oldest"
	OrderNewest = "newest"

	IdentityNone      = "none"
	IdentityTor       = "tor"
	IdentityProxyPool = "proxy_pool"

	PublishYouTube = "youtube"
	PublishNone    = "none"

	ProgressLedger = "ledger"
	ProgressSQLite = "sqlite"

	ListingVideos = "videos"
	ListingShorts = "shorts"
)

// Transport strategy identifiers accepted in acquisition.strategies.
const (
	StrategyBrowserCookies = "browser_cookies"
	StrategyCookieFile     = "cookie_file"
	StrategyIOSClient      = "ios_client"
	StrategyAndroidClient  = "android_client"
	StrategyTVClient       = "tv_client"
	StrategyAnonymized     = "anonymized"
	StrategyRelay          = "relay"
)

// KnownStrategies lists every strategy id the transport registry can build.
var KnownStrategies = []string{
	StrategyBrowserCookies,
	StrategyCookieFile,
	StrategyIOSClient,
	StrategyAndroidClient,
	StrategyTVClient,
	StrategyAnonymized,
	StrategyRelay,
}

var validVisibilities = map[string]struct{}{
	"public":   {},
	"unlisted": {},
	"private":  {},
}

var validBrowsers = map[string]struct{}{
	"chrome":   {},
	"chromium": {},
	"firefox":  {},
	"edge":     {},
	"brave":    {},
	"opera":    {},
	"safari":   {},
	"vivaldi":  {},
}

const (
	defaultStateDir      = "~/.local/share/ferry"
	defaultStagingDir    = "~/.local/share/ferry/staging"
	defaultLogDir        = "~/.local/share/ferry/logs"
	defaultLedgerPath    = "~/.local/share/ferry/history.txt"
	defaultCookiesPath   = "~/.config/ferry/cookies.txt"
	defaultCookiesBase64 = "~/.config/ferry/cookies_base64.txt"
	defaultTokenPath     = "~/.config/ferry/token.json"
	defaultSQLitePath    = "~/.local/share/ferry/progress.db"

	defaultBrowser     = "chrome"
	defaultYtDLPBinary = "yt-dlp"

	defaultBatchSize         = 3
	defaultDelaySeconds      = 30
	defaultStaleSweepMinutes = 60

	defaultSameStrategyRetries = 2
	defaultBlockedRetries      = 1
	defaultBackoffInitial      = 5
	defaultBackoffMax          = 60
	defaultMinArtifactBytes    = 10000
	defaultAttemptTimeout      = 900
	defaultRequestInterval     = 2.0
	defaultCanonicalContainer  = "mp4"

	defaultTorControlAddr = "127.0.0.1:9051"
	defaultSocksProxy     = "socks5://127.0.0.1:9050"
	defaultCheckURL       = "https://www.youtube.com/generate_204"
	defaultRotateTimeout  = 30

	defaultSpeed         = 1.05
	defaultFFmpegBinary  = "ffmpeg"
	defaultFFprobeBinary = "ffprobe"

	defaultVisibility  = "public"
	defaultCategoryID  = "22"
	defaultChunkSizeMB = 10
	defaultMaxRetries  = 10

	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultRetentionDays = 30
	defaultNotifyTimeout = 10
)

// Default returns a Config populated with ferry's defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:          defaultStateDir,
			StagingDir:        defaultStagingDir,
			LogDir:            defaultLogDir,
			LedgerPath:        defaultLedgerPath,
			CookiesPath:       defaultCookiesPath,
			CookiesBase64Path: defaultCookiesBase64,
		},
		Source: Source{
			Listings:    []string{ListingVideos, ListingShorts},
			Order:       OrderOldest,
			Browser:     defaultBrowser,
			YtDLPBinary: defaultYtDLPBinary,
		},
		Batch: Batch{
			Size:              defaultBatchSize,
			DelayMinSeconds:   defaultDelaySeconds,
			DelayMaxSeconds:   defaultDelaySeconds,
			StaleSweepMinutes: defaultStaleSweepMinutes,
		},
		Acquisition: Acquisition{
			Strategies: []string{
				StrategyBrowserCookies,
				StrategyCookieFile,
				StrategyIOSClient,
				StrategyAndroidClient,
				StrategyTVClient,
			},
			SameStrategyRetries:    defaultSameStrategyRetries,
			BlockedRetries:         defaultBlockedRetries,
			BackoffInitialSeconds:  defaultBackoffInitial,
			BackoffMaxSeconds:      defaultBackoffMax,
			MinArtifactBytes:       defaultMinArtifactBytes,
			AttemptTimeoutSeconds:  defaultAttemptTimeout,
			RequestIntervalSeconds: defaultRequestInterval,
			CanonicalContainer:     defaultCanonicalContainer,
			RotateOnBlocked:        true,
		},
		Identity: Identity{
			Provider:             IdentityNone,
			TorControlAddr:       defaultTorControlAddr,
			SocksProxy:           defaultSocksProxy,
			CheckURL:             defaultCheckURL,
			RotateTimeoutSeconds: defaultRotateTimeout,
		},
		Transform: Transform{
			Speed:         defaultSpeed,
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Publish: Publish{
			Provider:    PublishYouTube,
			Visibility:  defaultVisibility,
			CategoryID:  defaultCategoryID,
			TokenPath:   defaultTokenPath,
			ChunkSizeMB: defaultChunkSizeMB,
			MaxRetries:  defaultMaxRetries,
		},
		Progress: Progress{
			Backend:    ProgressLedger,
			SQLitePath: defaultSQLitePath,
		},
		Notify: Notify{
			RequestTimeoutSeconds: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultRetentionDays,
		},
	}
}
