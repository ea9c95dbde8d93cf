package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"ferry/internal/config"
	"ferry/internal/services"
)

var googleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

// OAuthConfig returns the OAuth client for the configured credentials.
func OAuthConfig(cfg config.Publish) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     googleEndpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeReadonlyScope},
	}
}

// LoadToken reads a stored token.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, fmt.Errorf("token %s holds no credentials", path)
	}
	return &tok, nil
}

// SaveToken writes tok with owner-only permissions, replacing any previous token atomically.
func SaveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace token: %w", err)
	}
	return nil
}

// savingSource persists refreshed tokens so the next run starts warm.
type savingSource struct {
	mu   sync.Mutex
	src  oauth2.TokenSource
	path string
	last string
}

func (s *savingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		_ = SaveToken(s.path, tok)
	}
	return tok, nil
}

// NewService builds an authenticated YouTube client from the stored token.
// A missing token is a configuration error.
func NewService(ctx context.Context, cfg config.Publish) (*youtube.Service, error) {
	tok, err := LoadToken(cfg.TokenPath)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "load token", "run 'ferry auth'", err)
	}
	oauthCfg := OAuthConfig(cfg)
	src := &savingSource{src: oauthCfg.TokenSource(ctx, tok), path: cfg.TokenPath, last: tok.AccessToken}
	svc, err := youtube.NewService(ctx, option.WithTokenSource(oauth2.ReuseTokenSource(tok, src)))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "publish", "create client", "", err)
	}
	return svc, nil
}

// Authorize runs the installed-app flow: it prints a consent URL, waits
// for the browser redirect on a loopback listener and stores the token.
func Authorize(ctx context.Context, cfg config.Publish, out io.Writer) error {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return services.Wrap(services.ErrConfiguration, "publish", "authorize", "publish.client_id and publish.client_secret are required", nil)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("listen for oauth redirect: %w", err)
	}
	defer listener.Close()

	oauthCfg := OAuthConfig(cfg)
	oauthCfg.RedirectURL = "http://" + listener.Addr().String() + "/"
	state := fmt.Sprintf("ferry-%d", os.Getpid())

	codes := make(chan string, 1)
	errs := make(chan error, 1)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if e := q.Get("error"); e != "" {
			http.Error(w, "authorization failed: "+e, http.StatusBadRequest)
			select {
			case errs <- errors.New(e):
			default:
			}
			return
		}
		_, _ = io.WriteString(w, "ferry is authorized. You can close this tab.\n")
		select {
		case codes <- q.Get("code"):
		default:
		}
	})}
	go func() { _ = srv.Serve(listener) }()
	defer srv.Close()

	url := oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(out, "Open this URL in a browser signed in to the destination channel:\n\n%s\n\n", url)

	var code string
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errs:
		return fmt.Errorf("authorize: %w", err)
	case code = <-codes:
	}
	tok, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	if err := SaveToken(cfg.TokenPath, tok); err != nil {
		return err
	}
	fmt.Fprintf(out, "Token saved to %s\n", cfg.TokenPath)
	return nil
}
