// Package catalog models the remote source's items and enumerates them
// from the source's sub-listings.
package catalog

import (
	"strings"

	"ferry/internal/config"
)

// Kind distinguishes primary items from short-form items.
type Kind int

const (
	KindPrimary Kind = iota
	KindShort
)

func (k Kind) String() string {
	if k == KindShort {
		return "short"
	}
	return "primary"
}

// Upgrade returns the kind after measured evidence is applied. A short
// stays short; a primary item becomes short only when measured says so.
func (k Kind) Upgrade(measuredShort bool) Kind {
	if k == KindShort || measuredShort {
		return KindShort
	}
	return KindPrimary
}

// KindForListing maps a sub-listing name to the kind its items carry.
func KindForListing(listing string) Kind {
	if strings.EqualFold(strings.TrimSpace(listing), config.ListingShorts) {
		return KindShort
	}
	return KindPrimary
}

// Item is one discoverable remote resource. Items are rebuilt every run.
type Item struct {
	ID             string
	SourceURL      string
	Title          string
	Kind           Kind
	DiscoveryOrder int
	Listing        string
}

// WatchURL returns the canonical item URL for id.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// Order arranges items for processing. Listings arrive newest first, so
// "newest" keeps listing order and "oldest" reverses it. The input is not
// modified.
func Order(items []Item, order string) []Item {
	out := append([]Item(nil), items...)
	if strings.EqualFold(order, config.OrderOldest) {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}
