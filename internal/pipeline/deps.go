package pipeline

import (
	"context"
	"log/slog"

	"ferry/internal/acquisition"
	"ferry/internal/batch"
	"ferry/internal/catalog"
	"ferry/internal/config"
	"ferry/internal/identity"
	"ferry/internal/notifications"
	"ferry/internal/progress"
	"ferry/internal/publish"
	"ferry/internal/transform"
	"ferry/internal/transport"
	"ferry/internal/ytdlp"
)

// Media is the transform collaborator: probing and remuxing for acquisition
// and the final render for the batch.
type Media interface {
	acquisition.Media
	batch.Transformer
}

// Deps are the collaborators a run needs.
type Deps struct {
	Lister     catalog.Lister
	Downloader transport.Downloader
	// Strategies overrides registry resolution of cfg.Acquisition.Strategies.
	Strategies []transport.Strategy
	Rotator    identity.Rotator
	Media      Media
	Publisher  publish.Publisher
	// Scanner is nil when remote reconciliation is unavailable.
	Scanner progress.Scanner
	Store   progress.Store
	// Notifier receives the end-of-run summary; nil disables it.
	Notifier notifications.Service
	Logger   *slog.Logger
}

// Close releases the progress store.
func (d Deps) Close() error {
	if d.Store == nil {
		return nil
	}
	return d.Store.Close()
}

// Build assembles the production collaborators.
func Build(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) (Deps, error) {
	client := ytdlp.NewClient(cfg.Source.YtDLPBinary, logger)
	store, err := progress.Open(ctx, cfg, logger)
	if err != nil {
		return Deps{}, err
	}
	dest, err := publish.Open(ctx, cfg, dryRun, logger)
	if err != nil {
		_ = store.Close()
		return Deps{}, err
	}
	deps := Deps{
		Lister:     client,
		Downloader: client,
		Rotator:    identity.New(cfg.Identity, logger),
		Media:      transform.New(cfg.Transform.FFmpegBinary, cfg.Transform.FFprobeBinary, logger),
		Publisher:  dest.Publisher,
		Store:      store,
		Notifier:   notifications.NewService(cfg),
		Logger:     logger,
	}
	if dest.Scanner != nil {
		deps.Scanner = dest.Scanner
	}
	return deps, nil
}

func (d Deps) strategies(cfg *config.Config) ([]transport.Strategy, error) {
	if d.Strategies != nil {
		return d.Strategies, nil
	}
	return transport.NewDefaultRegistry(cfg, d.Downloader).Resolve(cfg.Acquisition.Strategies)
}
