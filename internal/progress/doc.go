// Package progress records which catalog items are done.
//
// The local store (a newline-delimited ledger file or a sqlite table) is
// append-only and read as a set, so committing an id twice is harmless.
// Published descriptions carry a marker with the source id; the Reconciler
// unions the ids found there with the local set and writes remote-only ids
// back, which recovers from a crash between publish and commit.
package progress
