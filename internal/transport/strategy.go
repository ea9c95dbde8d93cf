package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ferry/internal/identity"
	"ferry/internal/services"
)

// Request is one attempt's input.
type Request struct {
	ItemID    string
	URL       string
	OutputDir string
	// Identity is only populated for strategies that report UsesIdentity.
	Identity identity.Handle
}

// Payload is the raw result of a successful attempt.
type Payload struct {
	Path        string
	Title       string
	Description string
	Tags        []string
}

// Strategy is one self-contained acquisition method.
type Strategy interface {
	Name() string
	// UsesIdentity reports whether the strategy routes through the rotator's proxy.
	UsesIdentity() bool
	Attempt(ctx context.Context, req Request) (Payload, error)
}

// Attempt records one try of one strategy.
type Attempt struct {
	Strategy      string
	IdentityEpoch int
	Outcome       Outcome
	Kind          Kind
	ArtifactPath  string
	Error         string
	Duration      time.Duration
}

// Registry resolves strategy ids to implementations.
type Registry struct {
	strategies map[string]Strategy
	order      []string
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[string]Strategy, len(strategies))}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a strategy under its Name.
func (r *Registry) Register(s Strategy) {
	if _, exists := r.strategies[s.Name()]; !exists {
		r.order = append(r.order, s.Name())
	}
	r.strategies[s.Name()] = s
}

// Names lists registered ids in registration order.
func (r *Registry) Names() []string { return append([]string(nil), r.order...) }

// Resolve returns the strategies for ids in the given order. Unknown ids are
// configuration errors.
func (r *Registry) Resolve(ids []string) ([]Strategy, error) {
	if len(ids) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "transport", "resolve strategies", "no strategies configured", nil)
	}
	out := make([]Strategy, 0, len(ids))
	for _, id := range ids {
		s, ok := r.strategies[id]
		if !ok {
			msg := fmt.Sprintf("unknown strategy %q (known: %s)", id, strings.Join(r.Names(), ", "))
			return nil, services.Wrap(services.ErrConfiguration, "transport", "resolve strategies", msg, nil)
		}
		out = append(out, s)
	}
	return out, nil
}
