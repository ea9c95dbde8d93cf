// Package batch drives one batch of pending catalog items through
// acquisition, transform, rewrite, publish and commit, strictly one item at
// a time.
//
// Per-item failures are contained: they are counted, the item's staging
// files are removed and the next item starts. A publish quota error ends the
// batch early without counting as a failure.
package batch
