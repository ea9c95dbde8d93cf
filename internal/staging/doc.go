// Package staging owns the per-item scratch area: raw downloads and
// transformed outputs, both namespaced by item id.
//
// Only one item is in flight at a time, so an item owns every file whose
// name starts with its id. RemoveItem clears them after each item and Sweep
// removes leftovers from a crashed run at start-up.
package staging
