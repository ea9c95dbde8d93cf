// Package pipeline is the run entry point. It holds the run lock, sweeps
// stale staging files, reconciles progress, enumerates the catalog, runs
// one batch, writes the run report and sends the run notification.
//
// Build assembles the production collaborators from configuration; tests
// hand Run their own Deps.
package pipeline
