package publish

import (
	"context"
	"log/slog"

	"ferry/internal/config"
)

// Destination bundles the uploader with the optional scanner used for
// progress reconciliation. Scanner is nil when nothing can be scanned.
type Destination struct {
	Publisher Publisher
	Scanner   *Scanner
}

// Open builds the destination selected by cfg. Dry runs and the "none"
// provider never touch the network.
func Open(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) (Destination, error) {
	if dryRun || !cfg.PublishEnabled() {
		return Destination{Publisher: NewNoop(logger)}, nil
	}
	svc, err := NewService(ctx, cfg.Publish)
	if err != nil {
		return Destination{}, err
	}
	pub := NewYouTube(svc, YouTubeOptions{
		CategoryID:  cfg.Publish.CategoryID,
		ChunkSizeMB: cfg.Publish.ChunkSizeMB,
		MaxRetries:  cfg.Publish.MaxRetries,
	}, logger)
	return Destination{Publisher: pub, Scanner: NewScanner(svc)}, nil
}
