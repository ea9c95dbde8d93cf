package batch

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"ferry/internal/acquisition"
	"ferry/internal/catalog"
	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/progress"
	"ferry/internal/publish"
	"ferry/internal/rewrite"
	"ferry/internal/services"
	"ferry/internal/staging"
	"ferry/internal/transform"
)

// Acquirer produces a validated artifact for an item.
type Acquirer interface {
	Acquire(ctx context.Context, item catalog.Item) (acquisition.Artifact, error)
}

// Transformer renders the canonical output file.
type Transformer interface {
	Transform(ctx context.Context, in, out string, orientation transform.Orientation, speed float64) (string, error)
}

// Committer durably records a completed id.
type Committer interface {
	Commit(ctx context.Context, id string) error
}

// Options tunes a Coordinator.
type Options struct {
	Speed      float64
	Visibility string
	DelayMin   time.Duration
	DelayMax   time.Duration
	// DryRun skips the commit so a rehearsal never marks items done.
	DryRun bool
}

// OptionsFromConfig builds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Speed:      cfg.Transform.Speed,
		Visibility: cfg.Publish.Visibility,
		DelayMin:   cfg.Batch.DelayMin(),
		DelayMax:   cfg.Batch.DelayMax(),
	}
}

// Coordinator runs batches sequentially.
type Coordinator struct {
	acquirer    Acquirer
	transformer Transformer
	publisher   publish.Publisher
	store       Committer
	area        staging.Area
	opts        Options
	logger      *slog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(n int64) int64
}

// New returns a Coordinator.
func New(acquirer Acquirer, transformer Transformer, publisher publish.Publisher, store Committer, area staging.Area, opts Options, logger *slog.Logger) *Coordinator {
	if opts.DelayMax < opts.DelayMin {
		opts.DelayMax = opts.DelayMin
	}
	return &Coordinator{
		acquirer:    acquirer,
		transformer: transformer,
		publisher:   publisher,
		store:       store,
		area:        area,
		opts:        opts,
		logger:      logging.NewComponentLogger(logger, "batch"),
		sleep:       sleepContext,
		jitter:      rand.Int64N,
	}
}

// Pending returns the catalog items not in completed, in catalog order.
func Pending(items []catalog.Item, completed progress.Set) []catalog.Item {
	out := make([]catalog.Item, 0, len(items))
	for _, item := range items {
		if !completed.Has(item.ID) {
			out = append(out, item)
		}
	}
	return out
}

// Plan returns the items a batch of size would process.
func Plan(items []catalog.Item, completed progress.Set, size int, order string) []catalog.Item {
	pending := catalog.Order(Pending(items, completed), order)
	if size >= 0 && size < len(pending) {
		pending = pending[:size]
	}
	return pending
}

// RunBatch processes up to size pending items. completed gains every id
// committed during the batch. Per-item errors never escape; the context
// error is reflected in Result.Canceled.
func (c *Coordinator) RunBatch(ctx context.Context, items []catalog.Item, completed progress.Set, size int, order string) Result {
	if completed == nil {
		completed = progress.NewSet()
	}
	pendingBefore := len(Pending(items, completed))
	selected := Plan(items, completed, size, order)

	c.logger.Info("batch starting",
		logging.Int("catalog", len(items)),
		logging.Int("pending", pendingBefore),
		logging.Int("selected", len(selected)),
		logging.String("order", order),
		logging.String(logging.FieldEventType, "batch_start"),
	)

	var result Result
	for i, item := range selected {
		if ctx.Err() != nil {
			result.Canceled = true
			break
		}
		if completed.Has(item.ID) {
			result.Skipped++
			result.Items = append(result.Items, ItemResult{ItemID: item.ID, Kind: item.Kind.String(), Status: StatusSkipped})
			continue
		}

		res := c.processItem(ctx, item)
		result.Items = append(result.Items, res)

		switch res.Status {
		case StatusSucceeded:
			result.Succeeded++
			if !c.opts.DryRun {
				completed.Add(item.ID)
			}
		case StatusFailed:
			result.Failed++
		case StatusQuota:
			result.AbortedForQuota = true
		case StatusCanceled:
			result.Canceled = true
		}
		if result.AbortedForQuota || result.Canceled {
			break
		}

		if res.Status == StatusSucceeded && i < len(selected)-1 {
			if err := c.pause(ctx); err != nil {
				result.Canceled = true
				break
			}
		}
	}

	result.Pending = pendingBefore - result.Succeeded
	if c.opts.DryRun {
		result.Pending = pendingBefore
	}
	if result.Pending < 0 {
		result.Pending = 0
	}

	attrs := []logging.Attr{
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed),
		logging.Int("skipped", result.Skipped),
		logging.Int("pending", result.Pending),
		logging.Bool("aborted_for_quota", result.AbortedForQuota),
		logging.Bool("canceled", result.Canceled),
		logging.String(logging.FieldEventType, "batch_complete"),
	}
	c.logger.Info("batch complete", logging.Args(attrs...)...)
	return result
}

// processItem runs every stage for one item. Staging files for the item are
// removed on every path out.
func (c *Coordinator) processItem(ctx context.Context, item catalog.Item) (res ItemResult) {
	start := time.Now()
	ctx = services.WithItemID(ctx, item.ID)
	logger := logging.WithContext(ctx, c.logger)
	res = ItemResult{ItemID: item.ID, Kind: item.Kind.String()}

	defer func() {
		res.Duration = time.Since(start)
		if removed, err := c.area.RemoveItem(item.ID); err != nil {
			logging.WarnWithContext(logger, "item cleanup incomplete", "item_cleanup_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "remove the files by hand or run 'ferry sweep'"),
				logging.String(logging.FieldImpact, "staging files remain until the next sweep"),
			)
		} else if len(removed) > 0 {
			logger.Debug("item files removed", logging.Int("count", len(removed)))
		}
	}()

	fail := func(stage Stage, err error) ItemResult {
		res.Stage = stage
		res.Error = err.Error()
		res.FailureClass = services.FailureClass(err)
		switch {
		case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
			res.Status = StatusCanceled
			logger.Info("item interrupted", logging.String(logging.FieldStage, string(stage)))
		case stage == StagePublish && publish.IsQuota(err):
			res.Status = StatusQuota
			logging.WarnWithContext(logger, "publish quota exhausted; stopping batch", "batch_quota_exhausted",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "the destination accepts uploads again after its daily reset"),
				logging.String(logging.FieldImpact, "remaining items wait for the next run"),
			)
		default:
			res.Status = StatusFailed
			logger.Error("item failed",
				logging.String(logging.FieldStage, string(stage)),
				logging.String("failure_class", res.FailureClass),
				logging.Error(err),
				logging.String(logging.FieldEventType, "item_failed"),
				logging.String(logging.FieldErrorHint, hintFor(stage)),
			)
		}
		return res
	}

	artifact, err := c.acquirer.Acquire(services.WithStage(ctx, string(StageAcquire)), item)
	if err != nil {
		return fail(StageAcquire, err)
	}
	res.Strategy = artifact.Strategy
	res.Kind = artifact.Kind.String()
	if err := ctx.Err(); err != nil {
		return fail(StageTransform, err)
	}

	orientation := transform.Landscape
	if artifact.Kind == catalog.KindShort {
		orientation = transform.Portrait
	}
	output, err := c.transformer.Transform(services.WithStage(ctx, string(StageTransform)), artifact.Path, c.area.OutPath(item.ID), orientation, c.opts.Speed)
	if err != nil {
		return fail(StageTransform, err)
	}
	if err := ctx.Err(); err != nil {
		return fail(StageRewrite, err)
	}

	text := rewrite.Rewrite(rewrite.Input{
		Title:       acquisition.ChooseTitle(artifact.Title, item.Title),
		Description: artifact.Description,
		Tags:        artifact.Tags,
		Short:       artifact.Kind == catalog.KindShort,
		SourceURL:   item.SourceURL,
	})
	description := progress.AppendMarker(text.Description, item.ID, rewrite.MaxDescriptionRunes)

	published, err := c.publisher.Publish(services.WithStage(ctx, string(StagePublish)), publish.Request{
		ItemID:      item.ID,
		Path:        output,
		Title:       text.Title,
		Description: description,
		Tags:        text.Tags,
		Visibility:  c.opts.Visibility,
	})
	if err != nil {
		return fail(StagePublish, err)
	}
	res.PublishedID = published.ID

	if !c.opts.DryRun {
		// The remote marker is already live; a lost commit heals on the next reconcile.
		if err := c.store.Commit(context.WithoutCancel(ctx), item.ID); err != nil {
			return fail(StageCommit, err)
		}
	}

	res.Status = StatusSucceeded
	logger.Info("item published",
		logging.String("published_id", published.ID),
		logging.String("title", text.Title),
		logging.String("kind", artifact.Kind.String()),
		logging.Duration("elapsed", time.Since(start)),
		logging.String(logging.FieldEventType, "item_complete"),
	)
	return res
}

// pause waits a uniformly chosen delay in [DelayMin, DelayMax].
func (c *Coordinator) pause(ctx context.Context) error {
	delay := c.opts.DelayMin
	if spread := c.opts.DelayMax - c.opts.DelayMin; spread > 0 {
		delay += time.Duration(c.jitter(int64(spread) + 1))
	}
	if delay <= 0 {
		return ctx.Err()
	}
	c.logger.Info("waiting before next item",
		logging.Duration("delay", delay),
		logging.String(logging.FieldEventType, "batch_delay"),
	)
	return c.sleep(ctx, delay)
}

func hintFor(stage Stage) string {
	switch stage {
	case StageAcquire:
		return "check cookies, identity rotation and strategy order"
	case StageTransform:
		return "check ffmpeg output in the run log"
	case StagePublish:
		return "check destination credentials and the upload error"
	case StageCommit:
		return "check progress store permissions; the next reconcile restores the id"
	default:
		return "check logs for details"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
