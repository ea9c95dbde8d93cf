package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index     int               `json:"index"`
	CodecName string            `json:"codec_name"`
	CodecType string            `json:"codec_type"`
	Duration  string            `json:"duration"`
	Width     int               `json:"width"`
	Height    int               `json:"height"`
	Tags      map[string]string `json:"tags"`
	SideData  []SideData        `json:"side_data_list"`
}

// SideData carries per-stream side data; only display-matrix rotation is read.
type SideData struct {
	Type     string  `json:"side_data_type"`
	Rotation float64 `json:"rotation"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return Parse(output)
}

// Parse decodes ffprobe JSON output.
func Parse(data []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

func (r Result) countType(codecType string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, codecType) {
			count++
		}
	}
	return count
}

func (r Result) VideoStreamCount() int { return r.countType("video") }

func (r Result) AudioStreamCount() int { return r.countType("audio") }

// CaptionStreamCount returns the number of subtitle/caption streams.
func (r Result) CaptionStreamCount() int { return r.countType("subtitle") }

// Dimensions returns the display width and height of the first video stream.
// A ±90° rotation swaps the coded dimensions.
func (r Result) Dimensions() (int, int) {
	for _, stream := range r.Streams {
		if !strings.EqualFold(stream.CodecType, "video") {
			continue
		}
		w, h := stream.Width, stream.Height
		if rotated(stream) {
			w, h = h, w
		}
		return w, h
	}
	return 0, 0
}

func rotated(stream Stream) bool {
	rotation := 0.0
	if v, ok := stream.Tags["rotate"]; ok {
		rotation, _ = strconv.ParseFloat(strings.TrimSpace(v), 64)
	}
	for _, sd := range stream.SideData {
		if sd.Rotation != 0 {
			rotation = sd.Rotation
		}
	}
	deg := int(math.Abs(math.Round(rotation))) % 180
	return deg == 90
}

// DurationSeconds returns the container duration in seconds, falling back to
// the first video stream's duration. It returns 0 when neither is known.
func (r Result) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 {
		return d
	}
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			if d := parseFloat(stream.Duration); d > 0 {
				return d
			}
		}
	}
	return 0
}

// HasFormat reports whether ffprobe listed name among the demuxer names
// (format_name is a comma-separated list such as "mov,mp4,m4a,3gp,3g2,mj2").
func (r Result) HasFormat(name string) bool {
	for _, part := range strings.Split(r.Format.FormatName, ",") {
		if strings.EqualFold(strings.TrimSpace(part), name) {
			return true
		}
	}
	return false
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0
	}
	return parsed
}
