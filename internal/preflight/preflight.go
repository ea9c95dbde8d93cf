package preflight

import (
	"context"
	"fmt"
	"slices"

	"ferry/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	// Warning marks a passing check whose optional tool is missing.
	Warning bool
	Detail  string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
	}

	for _, status := range CheckSystemDeps(ctx, cfg) {
		r := Result{Name: status.Name, Passed: status.Available || status.Optional, Detail: status.Path}
		if status.Version != "" {
			r.Detail = fmt.Sprintf("%s (%s)", status.Path, status.Version)
		}
		if !status.Available {
			r.Detail = status.Detail
			r.Warning = status.Optional
		}
		results = append(results, r)
	}

	if cfg.Identity.Provider == config.IdentityTor {
		results = append(results, CheckTCP(ctx, "Tor control port", cfg.Identity.TorControlAddr))
	}
	if slices.Contains(cfg.Acquisition.Strategies, config.StrategyRelay) {
		results = append(results, CheckRelay(ctx, cfg.Relay.BaseURL, cfg.Relay.APIKey))
	}
	if cfg.PublishEnabled() {
		results = append(results, CheckOAuthToken(cfg.Publish.TokenPath))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
