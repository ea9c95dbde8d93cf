package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"ferry/internal/logging"
	"ferry/internal/media/ffprobe"
	"ferry/internal/services"
)

// Orientation selects the canonical output frame.
type Orientation int

const (
	Landscape Orientation = iota
	Portrait
)

func (o Orientation) String() string {
	if o == Portrait {
		return "portrait"
	}
	return "landscape"
}

// Frame returns the canonical width and height for o.
func (o Orientation) Frame() (int, int) {
	if o == Portrait {
		return 1080, 1920
	}
	return 1920, 1080
}

// ShortMaxSeconds caps portrait output length.
const ShortMaxSeconds = 59

// Probe is the subset of ffprobe output the pipeline consumes.
type Probe struct {
	Width           int
	Height          int
	DurationSeconds float64
	VideoStreams    int
	AudioStreams    int
	CaptionTracks   int
	FormatName      string
}

// HasFormat reports whether the demuxer list in FormatName includes name.
func (p Probe) HasFormat(name string) bool {
	return ffprobe.Result{Format: ffprobe.Format{FormatName: p.FormatName}}.HasFormat(name)
}

// FFmpeg runs the ffmpeg/ffprobe binaries.
type FFmpeg struct {
	FFmpegBinary  string
	FFprobeBinary string
	Logger        *slog.Logger
}

// New returns an FFmpeg using the given binaries ("ffmpeg"/"ffprobe" when empty).
func New(ffmpegBinary, ffprobeBinary string, logger *slog.Logger) *FFmpeg {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeBinary) == "" {
		ffprobeBinary = "ffprobe"
	}
	return &FFmpeg{
		FFmpegBinary:  ffmpegBinary,
		FFprobeBinary: ffprobeBinary,
		Logger:        logging.NewComponentLogger(logger, "transform"),
	}
}

// Probe inspects path. A file without a video stream is reported as a
// validation error.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Probe, error) {
	result, err := ffprobe.Inspect(ctx, f.FFprobeBinary, path)
	if err != nil {
		return Probe{}, services.Wrap(services.ErrExternalTool, "transform", "probe", filepath.Base(path), err)
	}
	width, height := result.Dimensions()
	probe := Probe{
		Width:           width,
		Height:          height,
		DurationSeconds: result.DurationSeconds(),
		VideoStreams:    result.VideoStreamCount(),
		AudioStreams:    result.AudioStreamCount(),
		CaptionTracks:   result.CaptionStreamCount(),
		FormatName:      result.Format.FormatName,
	}
	if probe.VideoStreams == 0 {
		return probe, services.Wrap(services.ErrValidation, "transform", "probe", "no video stream in "+filepath.Base(path), nil)
	}
	return probe, nil
}

// Remux converts in to an mp4 at out. Streams are copied when the source
// codecs fit mp4 and re-encoded to H.264/AAC otherwise. Captions are dropped.
func (f *FFmpeg) Remux(ctx context.Context, in, out string) error {
	copyArgs := []string{"-y", "-i", in, "-map", "0:v:0", "-map", "0:a:0?", "-sn", "-c", "copy", "-movflags", "+faststart", out}
	if err := f.run(ctx, "remux", copyArgs); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return err
	}
	f.Logger.Info("stream copy failed, re-encoding",
		logging.String("input", filepath.Base(in)),
		logging.String(logging.FieldEventType, "remux_reencode"),
	)
	encodeArgs := []string{
		"-y", "-i", in,
		"-map", "0:v:0", "-map", "0:a:0?", "-sn",
		"-c:v", "libx264", "-preset", "fast", "-crf", "20",
		"-c:a", "aac", "-b:a", "192k",
		"-movflags", "+faststart",
		out,
	}
	return f.run(ctx, "convert", encodeArgs)
}

// StripCaptions rewrites path in place without subtitle streams.
func (f *FFmpeg) StripCaptions(ctx context.Context, path string) error {
	tmp := strings.TrimSuffix(path, filepath.Ext(path)) + ".nosub" + filepath.Ext(path)
	args := []string{"-y", "-i", path, "-map", "0:v", "-map", "0:a?", "-sn", "-c", "copy", tmp}
	if err := f.run(ctx, "strip captions", args); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrExternalTool, "transform", "strip captions", "replace original", err)
	}
	return nil
}

// Transform writes the canonical rendition of in to out: scaled and padded
// to the orientation's frame, retimed by speed, with captions and metadata
// removed. Portrait output is capped at ShortMaxSeconds.
func (f *FFmpeg) Transform(ctx context.Context, in, out string, orientation Orientation, speed float64) (string, error) {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "transform", "prepare output", out, err)
	}
	args := BuildArgs(in, out, orientation, speed)
	if err := f.run(ctx, "transform", args); err != nil {
		_ = os.Remove(out)
		return "", err
	}
	if err := f.ensureCaptionFree(ctx, out); err != nil {
		_ = os.Remove(out)
		return "", err
	}
	f.Logger.Info("transform complete",
		logging.String("output", filepath.Base(out)),
		logging.String("orientation", orientation.String()),
		logging.Float64("speed", speed),
		logging.String(logging.FieldEventType, "transform_complete"),
	)
	return out, nil
}

// stripPasses bounds how many times Transform retries caption removal.
const stripPasses = 2

func (f *FFmpeg) ensureCaptionFree(ctx context.Context, path string) error {
	for pass := 0; ; pass++ {
		probe, err := f.Probe(ctx, path)
		if err != nil {
			return err
		}
		if probe.CaptionTracks == 0 {
			return nil
		}
		if pass == stripPasses {
			return services.Wrap(services.ErrValidation, "transform", "strip captions",
				fmt.Sprintf("%d caption tracks remain after %d passes", probe.CaptionTracks, stripPasses), nil)
		}
		if err := f.StripCaptions(ctx, path); err != nil {
			return err
		}
	}
}

// BuildArgs returns the ffmpeg arguments for a Transform call.
func BuildArgs(in, out string, orientation Orientation, speed float64) []string {
	if speed <= 0 {
		speed = 1
	}
	w, h := orientation.Frame()
	factor := strconv.FormatFloat(speed, 'f', -1, 64)
	vf := strings.Join([]string{
		"setpts=PTS/" + factor,
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", w, h),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", w, h),
		"setsar=1",
	}, ",")
	args := []string{
		"-y", "-i", in,
		"-map", "0:v:0", "-map", "0:a:0?",
		"-sn", "-map_metadata", "-1", "-map_chapters", "-1",
		"-filter:v", vf,
		"-filter:a", "atempo=" + factor,
		"-c:v", "libx264", "-preset", "fast", "-crf", "21",
		"-c:a", "aac", "-b:a", "192k",
		"-movflags", "+faststart",
	}
	if orientation == Portrait {
		args = append(args, "-t", strconv.Itoa(ShortMaxSeconds))
	}
	return append(args, out)
}

func (f *FFmpeg) run(ctx context.Context, op string, args []string) error {
	full := append([]string{"-hide_banner", "-loglevel", "error", "-nostdin"}, args...)
	cmd := exec.CommandContext(ctx, f.FFmpegBinary, full...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return services.Wrap(services.ErrTimeout, "transform", op, "ffmpeg interrupted", ctxErr)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return services.Wrap(services.ErrConfiguration, "transform", op, "ffmpeg not found", err)
		}
		return services.Wrap(services.ErrExternalTool, "transform", op, tail(stderr.String(), 300), err)
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
