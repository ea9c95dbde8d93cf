// Package transform wraps ffmpeg and ffprobe for the media steps around
// acquisition and publish: probing, container normalization, caption
// stripping and the final geometry/speed pass.
//
// Output never carries caption streams or source metadata. The final pass
// only canonicalizes frame geometry, container and playback speed.
package transform
