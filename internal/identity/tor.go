package identity

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/textproto"
	"os/exec"
	"strings"
	"sync"
	"time"

	"ferry/internal/logging"
)

// TorOptions configures the Tor rotator.
type TorOptions struct {
	ControlAddr     string
	ControlPassword string
	SocksProxy      string
	RestartCommand  string
	CheckURL        string
	Timeout         time.Duration
	// PollInterval overrides the health-check polling cadence.
	PollInterval time.Duration
}

// Tor rotates identity by requesting a new circuit over the control port.
type Tor struct {
	opts    TorOptions
	check   confirmer
	logger  *slog.Logger
	mu      sync.Mutex
	current Handle
}

func NewTor(opts TorOptions, logger *slog.Logger) *Tor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Tor{
		opts:    opts,
		check:   confirmer{checkURL: opts.CheckURL, timeout: opts.Timeout, pollInterval: opts.PollInterval},
		logger:  logger,
		current: Handle{ProxyURL: opts.SocksProxy},
	}
}

func (t *Tor) Current() Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Rotate requests a new circuit and waits for the SOCKS route to answer.
// The epoch always advances, even when the control port refused the signal.
func (t *Tor) Rotate(ctx context.Context) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := Handle{Epoch: t.current.Epoch + 1, ProxyURL: t.opts.SocksProxy}
	if err := t.newCircuit(ctx); err != nil {
		logging.WarnWithContext(t.logger, "tor circuit rotation failed; reusing previous circuit", "identity_rotate_failed",
			logging.Error(err),
			logging.String("control_addr", t.opts.ControlAddr),
			logging.String(logging.FieldErrorHint, "check that tor is running with ControlPort enabled and the password is correct"),
			logging.String(logging.FieldImpact, "next attempts may hit the same block"),
		)
	}
	next.Confirmed = t.check.confirm(ctx, next.ProxyURL)
	if !next.Confirmed {
		logging.WarnWithContext(t.logger, "new tor circuit not confirmed reachable before timeout", "identity_unconfirmed",
			logging.Int("epoch", next.Epoch),
			logging.String("check_url", t.opts.CheckURL),
			logging.String(logging.FieldImpact, "identity treated as attempted only"),
		)
	} else {
		t.logger.Info("tor circuit rotated",
			logging.Int("epoch", next.Epoch),
			logging.String(logging.FieldEventType, "identity_rotated"),
		)
	}
	t.current = next
	return next
}

func (t *Tor) newCircuit(ctx context.Context) error {
	conn, err := t.dial(ctx)
	if err != nil && t.opts.RestartCommand != "" {
		t.logger.Info("tor control port unreachable; running restart command",
			logging.String("command", t.opts.RestartCommand),
			logging.Error(err),
		)
		if restartErr := t.restart(ctx); restartErr != nil {
			return fmt.Errorf("restart tor: %w", restartErr)
		}
		conn, err = t.dial(ctx)
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	tc := textproto.NewConn(conn)
	if err := command(tc, "AUTHENTICATE %s", quoteControl(t.opts.ControlPassword)); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if err := command(tc, "SIGNAL NEWNYM"); err != nil {
		return fmt.Errorf("signal newnym: %w", err)
	}
	_ = tc.PrintfLine("QUIT")
	return nil
}

func (t *Tor) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", t.opts.ControlAddr)
	if err != nil {
		return nil, err
	}
	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	return conn, nil
}

func (t *Tor) restart(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	output, err := exec.CommandContext(runCtx, "sh", "-c", t.opts.RestartCommand).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	// Tor needs a moment to open its control port after a restart.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(3 * time.Second):
	}
	return nil
}

func command(tc *textproto.Conn, format string, args ...any) error {
	id, err := tc.Cmd(format, args...)
	if err != nil {
		return err
	}
	tc.StartResponse(id)
	defer tc.EndResponse(id)
	_, _, err = tc.ReadResponse(250)
	return err
}

func quoteControl(password string) string {
	escaped := strings.ReplaceAll(password, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}
