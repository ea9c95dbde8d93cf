// Package acquisition drives the ordered transport strategies for one item
// until one yields a validated local artifact.
//
// Per strategy, Timeout and Corrupt outcomes are retried with exponential
// backoff, Blocked outcomes rotate identity before the retry, and NotFound
// or Unavailable move straight on. Partial files are cleared between
// strategies. A payload is only accepted once it exceeds the size floor,
// probes with a video stream, sits in the canonical container and carries
// no caption tracks.
package acquisition
