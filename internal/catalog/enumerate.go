package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"ferry/internal/logging"
	"ferry/internal/services"
	"ferry/internal/ytdlp"
)

// Lister returns the flat entries of one sub-listing.
type Lister interface {
	FlatPlaylist(ctx context.Context, url string, auth ytdlp.Auth) ([]ytdlp.Entry, error)
}

// Fallback is one way of authenticating a listing request.
type Fallback struct {
	Name string
	Auth ytdlp.Auth
}

// Listing is the materialized enumeration result.
type Listing struct {
	Items []Item
	// Partial is set when at least one sub-listing failed.
	Partial bool
	Failed  []string
}

// Enumerator walks every configured sub-listing of a source.
type Enumerator struct {
	Lister    Lister
	Listings  []string
	Fallbacks []Fallback
	Logger    *slog.Logger
}

// NewEnumerator builds an Enumerator. Fallbacks are tried in order for each
// sub-listing; an empty result moves on to the next one.
func NewEnumerator(lister Lister, listings []string, fallbacks []Fallback, logger *slog.Logger) *Enumerator {
	if len(fallbacks) == 0 {
		fallbacks = []Fallback{{Name: "no cookies"}}
	}
	return &Enumerator{
		Lister:    lister,
		Listings:  append([]string(nil), listings...),
		Fallbacks: fallbacks,
		Logger:    logging.NewComponentLogger(logger, "catalog"),
	}
}

// DefaultFallbacks returns browser cookies, then the cookie file when it
// exists, then an anonymous request.
func DefaultFallbacks(browser, cookiesPath string) []Fallback {
	var out []Fallback
	if b := strings.TrimSpace(browser); b != "" {
		out = append(out, Fallback{Name: "browser cookies", Auth: ytdlp.Auth{CookiesFromBrowser: b}})
	}
	if p := strings.TrimSpace(cookiesPath); p != "" {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			out = append(out, Fallback{Name: "cookie file", Auth: ytdlp.Auth{CookiesPath: p}})
		}
	}
	return append(out, Fallback{Name: "no cookies"})
}

var tabSuffix = regexp.MustCompile(`/(videos|shorts|streams|playlists|community|about|featured)/?$`)

// ChannelBase strips a trailing tab path from a channel URL.
func ChannelBase(url string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(url), "/")
	return strings.TrimRight(tabSuffix.ReplaceAllString(trimmed, ""), "/")
}

// Enumerate visits every sub-listing of sourceRoot, flattens and dedupes the
// entries by id (first occurrence wins) and assigns discovery order. One
// failing sub-listing marks the result Partial; all failing is an error.
func (e *Enumerator) Enumerate(ctx context.Context, sourceRoot string) (Listing, error) {
	base := ChannelBase(sourceRoot)
	if base == "" {
		return Listing{}, services.Wrap(services.ErrConfiguration, "catalog", "enumerate", "source URL is empty", nil)
	}

	var listing Listing
	seen := make(map[string]struct{})
	var lastErr error
	for _, name := range e.Listings {
		if err := ctx.Err(); err != nil {
			return Listing{}, err
		}
		url := base + "/" + name
		entries, err := e.list(ctx, url)
		if err != nil {
			lastErr = err
			listing.Partial = true
			listing.Failed = append(listing.Failed, name)
			logging.WarnWithContext(e.Logger, "sub-listing failed", "listing_failed",
				logging.String("listing", name),
				logging.String("url", url),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check cookies or network access to the source"),
				logging.String(logging.FieldImpact, "items from this listing are not considered this run"),
			)
			continue
		}
		kind := KindForListing(name)
		added := 0
		for _, entry := range entries {
			if _, dup := seen[entry.ID]; dup {
				continue
			}
			seen[entry.ID] = struct{}{}
			title := strings.TrimSpace(entry.Title)
			if title == "" {
				title = "Untitled"
			}
			listing.Items = append(listing.Items, Item{
				ID:             entry.ID,
				SourceURL:      WatchURL(entry.ID),
				Title:          title,
				Kind:           kind,
				DiscoveryOrder: len(listing.Items),
				Listing:        name,
			})
			added++
		}
		e.Logger.Info("listing scanned",
			logging.String("listing", name),
			logging.Int("entries", len(entries)),
			logging.Int("added", added),
			logging.String(logging.FieldEventType, "listing_scanned"),
		)
	}

	if len(e.Listings) > 0 && len(listing.Failed) == len(e.Listings) {
		return Listing{}, services.Wrap(services.ErrTransient, "catalog", "enumerate", "every sub-listing failed", lastErr)
	}
	return listing, nil
}

// list tries each fallback in turn. A fallback that errors or returns no
// entries hands over to the next; the sub-listing fails only if every
// fallback errored.
func (e *Enumerator) list(ctx context.Context, url string) ([]ytdlp.Entry, error) {
	var errs []error
	answered := false
	for _, fb := range e.Fallbacks {
		entries, err := e.Lister.FlatPlaylist(ctx, url, fb.Auth)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.Logger.Debug("listing fallback failed",
				logging.String("fallback", fb.Name),
				logging.String("url", url),
				logging.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", fb.Name, err))
			continue
		}
		if len(entries) > 0 {
			return entries, nil
		}
		answered = true
	}
	if !answered {
		return nil, errors.Join(errs...)
	}
	return nil, nil
}
