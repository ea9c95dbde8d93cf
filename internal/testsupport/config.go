package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"ferry/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Publishing is disabled and delays are zero so batches run instantly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Source.URL = "https://www.youtube.com/@example"
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.LedgerPath = filepath.Join(base, "state", "history.txt")
	cfgVal.Paths.CookiesPath = filepath.Join(base, "cookies.txt")
	cfgVal.Paths.CookiesBase64Path = filepath.Join(base, "cookies_base64.txt")
	cfgVal.Progress.SQLitePath = filepath.Join(base, "state", "progress.db")
	cfgVal.Publish.Provider = config.PublishNone
	cfgVal.Publish.TokenPath = filepath.Join(base, "token.json")
	cfgVal.Batch.DelayMinSeconds = 0
	cfgVal.Batch.DelayMaxSeconds = 0
	cfgVal.Acquisition.BackoffInitialSeconds = 0
	cfgVal.Acquisition.BackoffMaxSeconds = 0
	cfgVal.Acquisition.RequestIntervalSeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSourceURL sets the catalog URL on the test config.
func WithSourceURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Source.URL = url
	}
}

// WithStrategies overrides the acquisition strategy order.
func WithStrategies(ids ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Acquisition.Strategies = append([]string(nil), ids...)
	}
}

// WithSQLiteProgress switches the completion store to sqlite.
func WithSQLiteProgress() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Progress.Backend = config.ProgressSQLite
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default ferry external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"yt-dlp", "ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		for _, name := range names {
			StubBinary(b.t, binDir, name, "exit 0\n")
		}
		PrependPath(b.t, binDir)
	}
}

// StubBinary writes an executable shell script named name into dir and
// returns its path. body is appended after the shebang line.
func StubBinary(t testing.TB, dir, name, body string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// PrependPath puts dir at the front of PATH for the duration of the test.
func PrependPath(t testing.TB, dir string) {
	t.Helper()

	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
