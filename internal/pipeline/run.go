package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"ferry/internal/acquisition"
	"ferry/internal/batch"
	"ferry/internal/catalog"
	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/notifications"
	"ferry/internal/progress"
	"ferry/internal/services"
	"ferry/internal/staging"
)

// ErrRunInProgress is returned when another run holds the lock.
var ErrRunInProgress = errors.New("another ferry run is in progress")

// Options override configuration for a single run. Zero values fall back to
// the configuration.
type Options struct {
	RunID      string
	BatchSize  int
	Order      string
	Visibility string
	DryRun     bool
}

// Summary is the end-of-run report.
type Summary struct {
	RunID           string             `yaml:"run_id"`
	StartedAt       time.Time          `yaml:"started_at"`
	FinishedAt      time.Time          `yaml:"finished_at"`
	Source          string             `yaml:"source"`
	Order           string             `yaml:"order"`
	BatchSize       int                `yaml:"batch_size"`
	DryRun          bool               `yaml:"dry_run"`
	Candidates      int                `yaml:"candidates"`
	Completed       int                `yaml:"completed"`
	Healed          int                `yaml:"healed"`
	RemoteScan      string             `yaml:"remote_scan"`
	Succeeded       int                `yaml:"succeeded"`
	Failed          int                `yaml:"failed"`
	Skipped         int                `yaml:"skipped"`
	Pending         int                `yaml:"pending"`
	AbortedForQuota bool               `yaml:"aborted_for_quota"`
	PartialListing  bool               `yaml:"partial_listing"`
	FailedListings  []string           `yaml:"failed_listings,omitempty"`
	ListingFailed   bool               `yaml:"listing_failed"`
	Canceled        bool               `yaml:"canceled"`
	Swept           int                `yaml:"swept"`
	Items           []batch.ItemResult `yaml:"items,omitempty"`
}

// HasFailures reports whether the run should exit unsuccessfully.
func (s Summary) HasFailures() bool {
	return s.Failed > 0 || s.ListingFailed
}

// FailureLines describes each failed item as "id [stage/class]: error".
func (s Summary) FailureLines() []string {
	var lines []string
	for _, item := range s.Items {
		if item.Status != batch.StatusFailed {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s [%s/%s]: %s", item.ItemID, item.Stage, item.FailureClass, item.Error))
	}
	return lines
}

// Run performs one complete pass. Only configuration problems, lock
// contention and local progress read failures are returned as errors;
// per-item failures, listing failures and quota exhaustion are reported in
// the Summary.
func Run(ctx context.Context, cfg *config.Config, deps Deps, opts Options) (Summary, error) {
	opts = withDefaults(cfg, opts)
	ctx = services.WithRequestID(ctx, opts.RunID)
	logger := logging.NewComponentLogger(deps.Logger, "pipeline").With(logging.String(logging.FieldCorrelationID, opts.RunID))

	summary := Summary{
		RunID:     opts.RunID,
		StartedAt: time.Now().UTC(),
		Source:    cfg.Source.URL,
		Order:     opts.Order,
		BatchSize: opts.BatchSize,
		DryRun:    opts.DryRun,
	}

	strategies, err := deps.strategies(cfg)
	if err != nil {
		return summary, err
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "pipeline", "prepare directories", "", err)
	}
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return summary, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return summary, fmt.Errorf("%w (lock %s)", ErrRunInProgress, cfg.LockPath())
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("release run lock failed", logging.Error(err))
		}
	}()

	logger.Info("run starting",
		logging.String("source", cfg.Source.URL),
		logging.Int("batch_size", opts.BatchSize),
		logging.String("order", opts.Order),
		logging.Bool("dry_run", opts.DryRun),
		logging.Strings("strategies", cfg.Acquisition.Strategies),
		logging.String(logging.FieldEventType, "run_start"),
	)

	area := staging.New(cfg.RawDir(), cfg.OutDir())
	if err := area.Ensure(); err != nil {
		return summary, services.Wrap(services.ErrConfiguration, "pipeline", "prepare staging", "", err)
	}
	swept := area.Sweep(ctx, cfg.Batch.StaleSweepAge(), logger)
	summary.Swept = len(swept.Removed)

	completed, report, err := progress.NewReconciler(deps.Store, deps.Scanner, deps.Logger).ReconcileCompleted(ctx)
	if err != nil {
		return summary, err
	}
	summary.Completed = report.Union
	summary.Healed = len(report.Healed)
	summary.RemoteScan = remoteScanState(deps.Scanner, report)

	enumerator := catalog.NewEnumerator(deps.Lister, cfg.Source.Listings, catalog.DefaultFallbacks(cfg.Source.Browser, cfg.Paths.CookiesPath), deps.Logger)
	listing, err := enumerator.Enumerate(ctx, cfg.Source.URL)
	if err != nil {
		if ctx.Err() != nil {
			summary.Canceled = true
			return finish(ctx, cfg, deps, summary, logger), nil
		}
		summary.ListingFailed = true
		logger.Error("catalog enumeration failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "enumerate_failed"),
			logging.String(logging.FieldErrorHint, "check the source URL, cookies and yt-dlp version"),
		)
		return finish(ctx, cfg, deps, summary, logger), nil
	}
	summary.Candidates = len(listing.Items)
	summary.PartialListing = listing.Partial
	summary.FailedListings = listing.Failed
	summary.Pending = len(batch.Pending(listing.Items, completed))

	if listing.Partial && cfg.Batch.AbortOnPartialListing {
		logging.WarnWithContext(logger, "partial listing; skipping batch", "batch_skipped_partial",
			logging.Strings("failed_listings", listing.Failed),
			logging.String(logging.FieldErrorHint, "set batch.abort_on_partial_listing = false to process what was listed"),
			logging.String(logging.FieldImpact, "no items processed this run"),
		)
		return finish(ctx, cfg, deps, summary, logger), nil
	}

	engine := acquisition.NewEngine(strategies, deps.Rotator, deps.Media, area, acquisition.OptionsFromConfig(cfg.Acquisition), deps.Logger)
	batchOpts := batch.OptionsFromConfig(cfg)
	batchOpts.Visibility = opts.Visibility
	batchOpts.DryRun = opts.DryRun
	coordinator := batch.New(engine, deps.Media, deps.Publisher, deps.Store, area, batchOpts, deps.Logger)

	result := coordinator.RunBatch(ctx, listing.Items, completed, opts.BatchSize, opts.Order)
	summary.Succeeded = result.Succeeded
	summary.Failed = result.Failed
	summary.Skipped = result.Skipped
	summary.Pending = result.Pending
	summary.AbortedForQuota = result.AbortedForQuota
	summary.Canceled = result.Canceled
	summary.Items = result.Items
	if !opts.DryRun {
		summary.Completed = len(completed)
	}
	return finish(ctx, cfg, deps, summary, logger), nil
}

func withDefaults(cfg *config.Config, opts Options) Options {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = cfg.Batch.Size
	}
	if opts.Order == "" {
		opts.Order = cfg.Source.Order
	}
	if opts.Visibility == "" {
		opts.Visibility = cfg.Publish.Visibility
	}
	return opts
}

func remoteScanState(scanner progress.Scanner, report progress.Report) string {
	switch {
	case scanner == nil:
		return "disabled"
	case report.ScanFailed:
		return "failed"
	default:
		return "ok"
	}
}

func finish(ctx context.Context, cfg *config.Config, deps Deps, summary Summary, logger *slog.Logger) Summary {
	summary.FinishedAt = time.Now().UTC()
	if err := WriteReport(cfg.ReportPath(), summary); err != nil {
		logger.Warn("write run report failed", logging.Error(err), logging.String(logging.FieldEventType, "report_write_failed"))
	}
	logger.Info("run complete",
		logging.Int("succeeded", summary.Succeeded),
		logging.Int("failed", summary.Failed),
		logging.Int("pending", summary.Pending),
		logging.Bool("aborted_for_quota", summary.AbortedForQuota),
		logging.Bool("partial_listing", summary.PartialListing),
		logging.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)),
		logging.String(logging.FieldEventType, "run_complete"),
	)
	if deps.Notifier != nil {
		if err := deps.Notifier.NotifyRunCompleted(context.WithoutCancel(ctx), notificationFor(summary)); err != nil {
			logging.WarnWithContext(logger, "run notification failed", "notify_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notify.ntfy_topic and network access"),
				logging.String(logging.FieldImpact, "the run result is only in the log and report"),
			)
		}
	}
	return summary
}

func notificationFor(s Summary) notifications.Run {
	return notifications.Run{
		RunID:           s.RunID,
		Source:          s.Source,
		Succeeded:       s.Succeeded,
		Failed:          s.Failed,
		Pending:         s.Pending,
		AbortedForQuota: s.AbortedForQuota,
		PartialListing:  s.PartialListing,
		ListingFailed:   s.ListingFailed,
		Canceled:        s.Canceled,
		DryRun:          s.DryRun,
		Elapsed:         s.FinishedAt.Sub(s.StartedAt),
		Failures:        s.FailureLines(),
	}
}
