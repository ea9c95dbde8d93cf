package progress

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"ferry/internal/config"
	"ferry/internal/services"
)

// Source says where a completion record came from.
type Source string

const (
	SourceLocalLedger      Source = "local"
	SourceRemoteReconciled Source = "remote"
)

// Record is one completed item.
type Record struct {
	ItemID      string
	Source      Source
	CommittedAt time.Time
}

// Set is a set of completed item ids.
type Set map[string]struct{}

// NewSet returns a Set holding ids.
func NewSet(ids ...string) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s Set) Add(id string) {
	if id != "" {
		s[id] = struct{}{}
	}
}

func (s Set) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Union returns a new Set with the members of s and other.
func (s Set) Union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Minus returns the members of s missing from other, sorted.
func (s Set) Minus(other Set) []string {
	var out []string
	for id := range s {
		if !other.Has(id) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Sorted returns the members in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Store persists completed ids. Commit must be durable when it returns.
type Store interface {
	Load(ctx context.Context) (Set, error)
	Commit(ctx context.Context, id string) error
	CommitMany(ctx context.Context, ids []string, source Source) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Open returns the store selected by cfg.Progress.Backend. The sqlite
// backend imports any existing ledger file on open.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Progress.Backend {
	case config.ProgressSQLite:
		store, err := OpenSQLite(ctx, cfg.Progress.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := store.ImportLedger(ctx, cfg.Paths.LedgerPath, logger); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	case config.ProgressLedger, "":
		return NewLedgerStore(cfg.Paths.LedgerPath).WithLogger(logger), nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "progress", "open", fmt.Sprintf("unknown backend %q", cfg.Progress.Backend), nil)
	}
}
