package transport

import (
	"context"
	"errors"
	"os/exec"

	"ferry/internal/ytdlp"
)

// Downloader is the part of ytdlp.Client the strategies use.
type Downloader interface {
	Download(ctx context.Context, opts ytdlp.DownloadOptions) (ytdlp.Info, error)
}

// Persona is a yt-dlp player client with its matching user agent.
type Persona struct {
	PlayerClient string
	UserAgent    string
}

var (
	PersonaIOS = Persona{
		PlayerClient: "ios",
		UserAgent:    "com.google.ios.youtube/19.29.1 (iPhone16,2; U; CPU iOS 17_5_1 like Mac OS X;)",
	}
	PersonaAndroid = Persona{
		PlayerClient: "android",
		UserAgent:    "com.google.android.youtube/19.29.37 (Linux; U; Android 14; en_US) gzip",
	}
	PersonaTV = Persona{
		PlayerClient: "tv",
		UserAgent:    "Mozilla/5.0 (ChromiumStylePlatform) Cobalt/25.lts.30.1034943-gold (unlike Gecko), Unknown_TV_Unknown_0/Unknown (Unknown, Unknown)",
	}
)

// CookieMode selects how a yt-dlp strategy authenticates.
type CookieMode int

const (
	// CookiesNone sends no cookies.
	CookiesNone CookieMode = iota
	// CookiesBrowser reads cookies from the configured browser profile.
	CookiesBrowser
	// CookiesFileRequired needs the cookie file; without it the strategy is unavailable.
	CookiesFileRequired
	// CookiesFileOptional sends the cookie file when present.
	CookiesFileOptional
)

// YtDLP is a strategy backed by one yt-dlp invocation.
type YtDLP struct {
	ID          string
	Client      Downloader
	Persona     Persona
	Cookies     CookieMode
	Browser     string
	CookiesPath string
	// CookiesBase64Path is decoded into CookiesPath when the file is missing.
	CookiesBase64Path string
	// Routed sends the request through the rotator's current proxy.
	Routed bool
}

func (s *YtDLP) Name() string { return s.ID }

func (s *YtDLP) UsesIdentity() bool { return s.Routed }

func (s *YtDLP) Attempt(ctx context.Context, req Request) (Payload, error) {
	auth, err := s.auth()
	if err != nil {
		return Payload{}, err
	}
	if s.Routed {
		auth.ProxyURL = req.Identity.ProxyURL
	}
	retries := 5
	if s.Persona.PlayerClient != "" {
		retries = 3
	}
	info, err := s.Client.Download(ctx, ytdlp.DownloadOptions{
		URL:          req.URL,
		OutputDir:    req.OutputDir,
		Stem:         req.ItemID,
		Auth:         auth,
		PlayerClient: s.Persona.PlayerClient,
		UserAgent:    s.Persona.UserAgent,
		Retries:      retries,
	})
	if err != nil {
		return Payload{}, Fail(kindFromYtDLP(ctx, err), s.ID, err)
	}
	return Payload{Path: info.Path, Title: info.Title, Description: info.Description, Tags: info.Tags}, nil
}

func (s *YtDLP) auth() (ytdlp.Auth, error) {
	switch s.Cookies {
	case CookiesBrowser:
		return ytdlp.Auth{CookiesFromBrowser: s.Browser}, nil
	case CookiesFileRequired, CookiesFileOptional:
		ok, err := EnsureCookieFile(s.CookiesPath, s.CookiesBase64Path)
		if err != nil && s.Cookies == CookiesFileRequired {
			return ytdlp.Auth{}, Fail(KindUnavailable, s.ID, err)
		}
		if !ok {
			if s.Cookies == CookiesFileRequired {
				return ytdlp.Auth{}, Failf(KindUnavailable, s.ID, "no cookie file at %s", s.CookiesPath)
			}
			return ytdlp.Auth{}, nil
		}
		return ytdlp.Auth{CookiesPath: s.CookiesPath}, nil
	default:
		return ytdlp.Auth{}, nil
	}
}

func kindFromYtDLP(ctx context.Context, err error) Kind {
	if ctx.Err() != nil {
		return KindTimeout
	}
	if errors.Is(err, exec.ErrNotFound) {
		return KindUnavailable
	}
	var ytErr *ytdlp.Error
	if !errors.As(err, &ytErr) {
		return KindCorrupt
	}
	switch ytErr.Reason {
	case ytdlp.ReasonBlocked:
		return KindBlocked
	case ytdlp.ReasonNotFound:
		return KindNotFound
	case ytdlp.ReasonTimeout:
		return KindTimeout
	default:
		return KindCorrupt
	}
}
