// Package transport defines the acquisition strategy contract and the
// concrete strategies ferry can try for one catalog item.
//
// A Strategy makes exactly one attempt and reports failure as a *Failure
// whose Kind it decides from the structured result it observed (yt-dlp
// classification, HTTP status). Callers branch on Kind only; they never
// inspect error text. Strategies are looked up by id through a Registry so
// the attempt order is configuration.
package transport
