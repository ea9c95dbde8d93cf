package identity

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"ferry/internal/config"
	"ferry/internal/logging"
)

// Handle identifies one rotation generation.
type Handle struct {
	Epoch     int
	ProxyURL  string
	Confirmed bool
}

// Rotator manages egress identity.
type Rotator interface {
	Current() Handle
	Rotate(ctx context.Context) Handle
}

// New builds the rotator selected by cfg.Identity.Provider.
func New(cfg config.Identity, logger *slog.Logger) Rotator {
	logger = logging.NewComponentLogger(logger, "identity")
	switch cfg.Provider {
	case config.IdentityTor:
		return NewTor(TorOptions{
			ControlAddr:     cfg.TorControlAddr,
			ControlPassword: cfg.TorControlPassword,
			SocksProxy:      cfg.SocksProxy,
			RestartCommand:  cfg.RestartCommand,
			CheckURL:        cfg.CheckURL,
			Timeout:         cfg.RotateTimeout(),
		}, logger)
	case config.IdentityProxyPool:
		return NewProxyPool(cfg.Proxies, cfg.CheckURL, cfg.RotateTimeout(), logger)
	default:
		return None{}
	}
}

// None never changes identity and routes nothing through a proxy.
type None struct{}

func (None) Current() Handle { return Handle{Confirmed: true} }

func (None) Rotate(context.Context) Handle { return Handle{Confirmed: true} }

const defaultPollInterval = time.Second

// confirmer polls a check URL through a proxy until it answers.
type confirmer struct {
	checkURL     string
	timeout      time.Duration
	pollInterval time.Duration
}

func (c confirmer) confirm(ctx context.Context, proxyURL string) bool {
	if c.checkURL == "" {
		return false
	}
	transport := &http.Transport{}
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return false
		}
		transport.Proxy = http.ProxyURL(parsed)
	}
	defer transport.CloseIdleConnections()

	timeout := c.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	interval := c.pollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	client := &http.Client{Transport: transport, Timeout: min(timeout, 10*time.Second)}

	deadline, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		if reachable(deadline, client, c.checkURL) {
			return true
		}
		select {
		case <-deadline.Done():
			return false
		case <-time.After(interval):
		}
	}
}

func reachable(ctx context.Context, client *http.Client, target string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode < 500
}
