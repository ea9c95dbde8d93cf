package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ferry/internal/logging"
)

// ProxyPool rotates round-robin through a fixed list of proxies.
type ProxyPool struct {
	proxies []string
	check   confirmer
	logger  *slog.Logger
	mu      sync.Mutex
	index   int
	current Handle
}

// NewProxyPool builds a pool over proxies, dropping duplicates and blanks.
func NewProxyPool(proxies []string, checkURL string, timeout time.Duration, logger *slog.Logger) *ProxyPool {
	if logger == nil {
		logger = logging.NewNop()
	}
	seen := make(map[string]struct{}, len(proxies))
	unique := make([]string, 0, len(proxies))
	for _, p := range proxies {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}
	pool := &ProxyPool{
		proxies: unique,
		check:   confirmer{checkURL: checkURL, timeout: timeout},
		logger:  logger,
	}
	if len(unique) > 0 {
		pool.current = Handle{ProxyURL: unique[0]}
	}
	return pool
}

func (p *ProxyPool) Current() Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Rotate advances to the next proxy. With a single proxy the same route is
// returned under a new epoch.
func (p *ProxyPool) Rotate(ctx context.Context) Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := Handle{Epoch: p.current.Epoch + 1}
	if len(p.proxies) > 0 {
		p.index = (p.index + 1) % len(p.proxies)
		next.ProxyURL = p.proxies[p.index]
	}
	next.Confirmed = p.check.confirm(ctx, next.ProxyURL)
	if !next.Confirmed {
		logging.WarnWithContext(p.logger, "rotated proxy not confirmed reachable", "identity_unconfirmed",
			logging.Int("epoch", next.Epoch),
			logging.String("proxy", redactProxy(next.ProxyURL)),
			logging.String(logging.FieldErrorHint, "check proxy credentials and availability"),
			logging.String(logging.FieldImpact, "identity treated as attempted only"),
		)
	} else {
		p.logger.Info("proxy rotated",
			logging.Int("epoch", next.Epoch),
			logging.String("proxy", redactProxy(next.ProxyURL)),
			logging.String(logging.FieldEventType, "identity_rotated"),
		)
	}
	p.current = next
	return next
}
