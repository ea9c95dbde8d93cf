package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"ferry/internal/config"
	"ferry/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the executables required by the configured
// strategies and transform collaborator.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "yt-dlp",
			Command:     cfg.Source.YtDLPBinary,
			Description: "Required for catalog listing and downloads",
			VersionArgs: []string{"--version"},
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Transform.FFmpegBinary,
			Description: "Required for remux, caption stripping and transform",
			VersionArgs: []string{"-version"},
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Transform.FFprobeBinary,
			Description: "Required for artifact validation",
			VersionArgs: []string{"-version"},
		},
	}
	if cfg.Identity.Provider == config.IdentityTor && cfg.Identity.RestartCommand != "" {
		fields := strings.Fields(cfg.Identity.RestartCommand)
		requirements = append(requirements, deps.Requirement{
			Name:        "Tor restart",
			Command:     fields[0],
			Description: "Used when the Tor control port is unreachable",
			Optional:    true,
		})
	}
	return deps.CheckBinaries(ctx, requirements)
}

// CheckTCP verifies that addr accepts connections.
func CheckTCP(ctx context.Context, name, addr string) Result {
	dialer := net.Dialer{Timeout: 3 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s unreachable (%v)", addr, err)}
	}
	_ = conn.Close()
	return Result{Name: name, Passed: true, Detail: addr + " reachable"}
}

// CheckRelay verifies relay connectivity and authentication.
func CheckRelay(ctx context.Context, baseURL, apiKey string) Result {
	const name = "Relay"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base_url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/health", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	case resp.StatusCode >= 500:
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode)}
	default:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	}
}

// CheckOAuthToken verifies that a cached OAuth token exists and parses.
func CheckOAuthToken(path string) Result {
	const name = "Publish token"
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s missing (run 'ferry auth')", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s unreadable (%v)", path, err)}
	}
	var token struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(data, &token); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s is not a token file (%v)", path, err)}
	}
	if token.RefreshToken == "" {
		return Result{Name: name, Detail: path + " has no refresh token"}
	}
	return Result{Name: name, Passed: true, Detail: path}
}
