// Package notifications pushes end-of-run summaries to ntfy.
//
// NewService returns a no-op when no topic is configured, so the pipeline
// always has a Service to call. A run that needs attention (failures, a
// quota stop, a partial or failed listing) is sent with high priority; clean
// runs can be suppressed with notify.only_on_problems.
package notifications
