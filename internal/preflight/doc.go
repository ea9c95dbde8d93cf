// Package preflight provides readiness checks for the filesystem paths,
// binaries and network endpoints a ferry run depends on.
//
// The pipeline calls RunAll before taking the run lock so that a doomed run
// stops before any catalog or transport work. The CLI "ferry deps" command
// renders the same results as a table.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
