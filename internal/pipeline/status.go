package pipeline

import (
	"context"

	"ferry/internal/batch"
	"ferry/internal/catalog"
	"ferry/internal/config"
	"ferry/internal/progress"
)

// Status is a read-only view of the catalog against completed progress.
type Status struct {
	Candidates     int
	Completed      int
	Pending        int
	PartialListing bool
	FailedListings []string
	RemoteScan     string
	// Next lists the items the next run would process.
	Next []catalog.Item
}

// Inspect enumerates the catalog and reconciles progress without taking
// the run lock or writing anything except healed ledger entries.
func Inspect(ctx context.Context, cfg *config.Config, deps Deps, opts Options) (Status, error) {
	opts = withDefaults(cfg, opts)
	completed, report, err := progress.NewReconciler(deps.Store, deps.Scanner, deps.Logger).ReconcileCompleted(ctx)
	if err != nil {
		return Status{}, err
	}
	enumerator := catalog.NewEnumerator(deps.Lister, cfg.Source.Listings, catalog.DefaultFallbacks(cfg.Source.Browser, cfg.Paths.CookiesPath), deps.Logger)
	listing, err := enumerator.Enumerate(ctx, cfg.Source.URL)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Candidates:     len(listing.Items),
		Completed:      len(completed),
		Pending:        len(batch.Pending(listing.Items, completed)),
		PartialListing: listing.Partial,
		FailedListings: listing.Failed,
		RemoteScan:     remoteScanState(deps.Scanner, report),
		Next:           batch.Plan(listing.Items, completed, opts.BatchSize, opts.Order),
	}, nil
}
