package preflight

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"ferry/internal/config"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	result := CheckDirectoryAccess("test", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed || result.Detail == "" {
		t.Fatalf("expected failure with detail for missing dir, got %#v", result)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if CheckDirectoryAccess("test", f).Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRelay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if r := CheckRelay(context.Background(), srv.URL, "good"); !r.Passed {
		t.Fatalf("expected pass, got %s", r.Detail)
	}
	if r := CheckRelay(context.Background(), srv.URL, "bad"); r.Passed {
		t.Fatal("expected auth failure")
	}
	if r := CheckRelay(context.Background(), "", "good"); r.Passed {
		t.Fatal("expected failure for missing url")
	}
}

func TestCheckTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	if r := CheckTCP(context.Background(), "tor", addr); !r.Passed {
		t.Fatalf("expected reachable, got %s", r.Detail)
	}
	ln.Close()
	if r := CheckTCP(context.Background(), "tor", addr); r.Passed {
		t.Fatal("expected closed listener to fail")
	}
}

func TestCheckOAuthToken(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "token.json")
	if err := os.WriteFile(good, []byte(`{"access_token":"a","refresh_token":"r"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte(`{"access_token":"a"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if !CheckOAuthToken(good).Passed {
		t.Fatal("expected token with refresh token to pass")
	}
	if CheckOAuthToken(empty).Passed {
		t.Fatal("expected token without refresh token to fail")
	}
	if CheckOAuthToken(filepath.Join(dir, "missing.json")).Passed {
		t.Fatal("expected missing token to fail")
	}
}

func TestRunAll(t *testing.T) {
	if RunAll(context.Background(), nil) != nil {
		t.Fatal("expected nil results for nil config")
	}

	binDir := t.TempDir()
	for _, name := range []string{"yt-dlp", "ffmpeg", "ffprobe"} {
		if err := os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	t.Setenv("PATH", binDir)

	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Paths.StagingDir = t.TempDir()
	cfg.Publish.Provider = config.PublishNone

	results := RunAll(context.Background(), &cfg)
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d: %#v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %#v", failed)
	}

	cfg.Publish.Provider = config.PublishYouTube
	cfg.Publish.TokenPath = filepath.Join(t.TempDir(), "token.json")
	results = RunAll(context.Background(), &cfg)
	if failed := Failed(results); len(failed) != 1 || failed[0].Name != "Publish token" {
		t.Fatalf("expected only the token check to fail, got %#v", failed)
	}
}

func TestRunAllWarnsOnMissingOptionalTool(t *testing.T) {
	cfg := config.Default()
	base := t.TempDir()
	cfg.Paths.StateDir = base
	cfg.Paths.StagingDir = base
	cfg.Publish.Provider = config.PublishNone
	cfg.Identity.Provider = config.IdentityTor
	cfg.Identity.TorControlAddr = "127.0.0.1:1"
	cfg.Identity.RestartCommand = "ferry-test-no-such-restart --now"

	var restart *Result
	results := RunAll(context.Background(), &cfg)
	for i := range results {
		if results[i].Name == "Tor restart" {
			restart = &results[i]
		}
	}
	if restart == nil {
		t.Fatalf("no Tor restart result in %+v", results)
	}
	if !restart.Passed || !restart.Warning {
		t.Fatalf("restart = %+v, want passing warning", *restart)
	}
}
