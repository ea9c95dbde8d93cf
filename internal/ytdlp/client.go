// Package ytdlp runs yt-dlp for flat catalog listings and single-item
// downloads, and classifies its failures into a closed set of reasons.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"ferry/internal/logging"
)

// DefaultFormat prefers separate mp4/m4a streams and falls back to any single file.
const DefaultFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best"

// Client invokes a yt-dlp binary.
type Client struct {
	Binary string
	Logger *slog.Logger
}

// NewClient returns a client for binary ("yt-dlp" when empty).
func NewClient(binary string, logger *slog.Logger) *Client {
	if strings.TrimSpace(binary) == "" {
		binary = "yt-dlp"
	}
	return &Client{Binary: binary, Logger: logging.NewComponentLogger(logger, "ytdlp")}
}

// Auth carries the cookie and proxy settings shared by listing and download.
type Auth struct {
	CookiesPath        string
	CookiesFromBrowser string
	ProxyURL           string
}

func (a Auth) args() []string {
	var args []string
	if p := strings.TrimSpace(a.CookiesPath); p != "" {
		args = append(args, "--cookies", p)
	}
	if b := strings.TrimSpace(a.CookiesFromBrowser); b != "" {
		args = append(args, "--cookies-from-browser", b)
	}
	if p := strings.TrimSpace(a.ProxyURL); p != "" {
		args = append(args, "--proxy", p)
	}
	return args
}

// Entry is one flat-playlist entry.
type Entry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
}

type flatPlaylist struct {
	Entries []*Entry `json:"entries"`
}

// FlatPlaylist lists the entries of a tab or playlist without resolving
// each item. Entries without an id are dropped.
func (c *Client) FlatPlaylist(ctx context.Context, sourceURL string, auth Auth) ([]Entry, error) {
	if strings.TrimSpace(sourceURL) == "" {
		return nil, errors.New("source URL is required")
	}
	args := []string{"--flat-playlist", "-J", "--ignore-errors", "--no-warnings"}
	args = append(args, auth.args()...)
	args = append(args, sourceURL)

	stdout, err := c.run(ctx, args, true)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(stdout)) == 0 {
		return nil, &Error{Reason: ReasonUnknown, Detail: "yt-dlp returned empty output"}
	}
	var payload flatPlaylist
	if err := json.Unmarshal(stdout, &payload); err != nil {
		return nil, fmt.Errorf("decode flat playlist: %w", err)
	}
	entries := make([]Entry, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		if e == nil || strings.TrimSpace(e.ID) == "" {
			continue
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

// DownloadOptions describes one download attempt.
type DownloadOptions struct {
	URL       string
	OutputDir string
	// Stem names output files; every file the attempt writes starts with it.
	Stem         string
	Auth         Auth
	PlayerClient string
	UserAgent    string
	Format       string
	Retries      int
}

// Info is the metadata yt-dlp reports for a downloaded item.
type Info struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Ext         string   `json:"ext"`
	// Path is the downloaded media file.
	Path string `json:"-"`
}

// Download fetches a single item into OutputDir with captions disabled.
func (c *Client) Download(ctx context.Context, opts DownloadOptions) (Info, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return Info{}, errors.New("video URL is required")
	}
	if strings.TrimSpace(opts.OutputDir) == "" || strings.TrimSpace(opts.Stem) == "" {
		return Info{}, errors.New("output directory and stem are required")
	}
	format := opts.Format
	if format == "" {
		format = DefaultFormat
	}
	retries := opts.Retries
	if retries <= 0 {
		retries = 5
	}

	args := []string{
		"--no-playlist",
		"--newline",
		"--no-write-subs",
		"--no-write-auto-subs",
		"--no-embed-subs",
		"--write-info-json",
		"--no-write-comments",
		"-f", format,
		"--merge-output-format", "mp4",
		"--retries", strconv.Itoa(retries),
		"--socket-timeout", "30",
		"-o", filepath.Join(opts.OutputDir, opts.Stem+".%(ext)s"),
	}
	if opts.PlayerClient != "" {
		args = append(args, "--extractor-args", "youtube:player_client="+opts.PlayerClient+";player_skip=webpage,configs")
	}
	if opts.UserAgent != "" {
		args = append(args, "--user-agent", opts.UserAgent)
	}
	args = append(args, opts.Auth.args()...)
	args = append(args, opts.URL)

	if _, err := c.run(ctx, args, false); err != nil {
		return Info{}, err
	}

	infoPath := filepath.Join(opts.OutputDir, opts.Stem+".info.json")
	var info Info
	if data, err := os.ReadFile(infoPath); err == nil {
		if err := json.Unmarshal(data, &info); err != nil {
			c.Logger.Debug("info json unreadable", logging.String("path", infoPath), logging.Error(err))
		}
		_ = os.Remove(infoPath)
	}
	media, err := findMedia(opts.OutputDir, opts.Stem)
	if err != nil {
		return Info{}, &Error{Reason: ReasonUnknown, Detail: err.Error()}
	}
	info.Path = media
	return info, nil
}

var mediaExtensions = map[string]int{".mp4": 0, ".mkv": 1, ".webm": 2, ".mov": 3, ".flv": 4, ".avi": 5}

// findMedia returns the media file written for stem, preferring mp4.
func findMedia(dir, stem string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, stem+".*"))
	if err != nil {
		return "", err
	}
	var candidates []string
	for _, m := range matches {
		if _, ok := mediaExtensions[strings.ToLower(filepath.Ext(m))]; ok {
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("no media file written for %s", stem)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return mediaExtensions[strings.ToLower(filepath.Ext(candidates[i]))] < mediaExtensions[strings.ToLower(filepath.Ext(candidates[j]))]
	})
	return candidates[0], nil
}

// run executes yt-dlp, collecting stderr lines for classification. When
// captureStdout is false stdout lines are logged at debug level instead.
func (c *Client) run(ctx context.Context, args []string, captureStdout bool) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("setup stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start yt-dlp: %w", err)
	}

	var stdout bytes.Buffer
	tail := newLineTail(40)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if captureStdout {
			_, _ = io.Copy(&stdout, stdoutPipe)
			return
		}
		scan(stdoutPipe, func(line string) {
			c.Logger.Debug("yt-dlp", logging.String("line", line))
		})
	}()
	go func() {
		defer wg.Done()
		scan(stderrPipe, tail.add)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &Error{Reason: ReasonTimeout, Detail: ctxErr.Error(), Lines: tail.lines(), err: ctxErr}
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		lines := tail.lines()
		return nil, &Error{Reason: Classify(lines), ExitCode: exitCode, Detail: lastError(lines), Lines: lines, err: err}
	}
	return stdout.Bytes(), nil
}

func scan(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(splitByNewlineOrCR)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			fn(line)
		}
	}
	if scanner.Err() != nil {
		// keep the child from blocking on a full pipe
		_, _ = io.Copy(io.Discard, r)
	}
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// lineTail keeps the last n lines written to it.
type lineTail struct {
	mu  sync.Mutex
	n   int
	buf []string
}

func newLineTail(n int) *lineTail { return &lineTail{n: n} }

func (t *lineTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line)
	if len(t.buf) > t.n {
		t.buf = t.buf[len(t.buf)-t.n:]
	}
}

func (t *lineTail) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.buf...)
}
