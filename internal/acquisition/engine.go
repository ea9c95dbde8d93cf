package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ferry/internal/catalog"
	"ferry/internal/config"
	"ferry/internal/identity"
	"ferry/internal/logging"
	"ferry/internal/services"
	"ferry/internal/staging"
	"ferry/internal/transform"
	"ferry/internal/transport"
)

// Media is the probing and normalization surface the engine needs.
type Media interface {
	Probe(ctx context.Context, path string) (transform.Probe, error)
	Remux(ctx context.Context, in, out string) error
	StripCaptions(ctx context.Context, path string) error
}

// Options tunes retries, pacing and validation.
type Options struct {
	SameStrategyRetries int
	BlockedRetries      int
	BackoffInitial      time.Duration
	BackoffMax          time.Duration
	MinArtifactBytes    int64
	AttemptTimeout      time.Duration
	RequestInterval     time.Duration
	CanonicalContainer  string
	RotateOnBlocked     bool
}

// OptionsFromConfig maps the acquisition config section to Options.
func OptionsFromConfig(cfg config.Acquisition) Options {
	return Options{
		SameStrategyRetries: cfg.SameStrategyRetries,
		BlockedRetries:      cfg.BlockedRetries,
		BackoffInitial:      cfg.BackoffInitial(),
		BackoffMax:          cfg.BackoffMax(),
		MinArtifactBytes:    cfg.MinArtifactBytes,
		AttemptTimeout:      cfg.AttemptTimeout(),
		RequestInterval:     cfg.RequestInterval(),
		CanonicalContainer:  cfg.CanonicalContainer,
		RotateOnBlocked:     cfg.RotateOnBlocked,
	}
}

// Engine acquires items through an ordered strategy list.
type Engine struct {
	strategies []transport.Strategy
	rotator    identity.Rotator
	media      Media
	area       staging.Area
	opts       Options
	limiter    *rate.Limiter
	logger     *slog.Logger

	// sleep waits between same-strategy retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine builds an Engine. A nil rotator means identity never changes.
func NewEngine(strategies []transport.Strategy, rotator identity.Rotator, media Media, area staging.Area, opts Options, logger *slog.Logger) *Engine {
	if rotator == nil {
		rotator = identity.None{}
	}
	if opts.CanonicalContainer == "" {
		opts.CanonicalContainer = "mp4"
	}
	limit := rate.Inf
	if opts.RequestInterval > 0 {
		limit = rate.Every(opts.RequestInterval)
	}
	return &Engine{
		strategies: append([]transport.Strategy(nil), strategies...),
		rotator:    rotator,
		media:      media,
		area:       area,
		opts:       opts,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logging.NewComponentLogger(logger, "acquisition"),
		sleep:      sleepContext,
	}
}

// Acquire runs the strategies for item until one yields a validated
// artifact. On failure it returns *ExhaustedError (or the context error
// when canceled) and leaves no staged files for the item behind.
func (e *Engine) Acquire(ctx context.Context, item catalog.Item) (Artifact, error) {
	ctx = services.WithItemID(ctx, item.ID)
	ctx = services.WithStage(ctx, "acquire")
	logger := logging.WithContext(ctx, e.logger)

	if err := e.area.Ensure(); err != nil {
		return Artifact{}, services.Wrap(services.ErrConfiguration, "acquire", "prepare staging", "", err)
	}

	var attempts []transport.Attempt
	var lastErr error
	notFound := 0
	ran := 0
	for _, strategy := range e.strategies {
		e.cleanPartials(logger, item.ID)
		artifact, kind, err := e.runStrategy(ctx, strategy, item, &attempts)
		if err == nil {
			artifact.Attempts = attempts
			logger.Info("acquired",
				logging.String(logging.FieldStrategy, strategy.Name()),
				logging.Int64("bytes", artifact.ByteSize),
				logging.String("resolution", fmt.Sprintf("%dx%d", artifact.Width, artifact.Height)),
				logging.Float64("duration_seconds", artifact.DurationSeconds),
				logging.String("kind", artifact.Kind.String()),
				logging.Int("attempts", len(attempts)),
				logging.String(logging.FieldEventType, "acquire_complete"),
			)
			return artifact, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			e.cleanPartials(logger, item.ID)
			return Artifact{}, ctxErr
		}
		lastErr = err
		if kind == transport.KindUnavailable {
			continue
		}
		ran++
		if kind == transport.KindNotFound {
			notFound++
		}
	}

	e.cleanPartials(logger, item.ID)
	exhausted := &ExhaustedError{
		ItemID:    item.ID,
		Permanent: ran > 0 && notFound == ran,
		Attempts:  attempts,
		Last:      lastErr,
	}
	logging.WarnWithContext(logger, "all strategies exhausted", "acquire_exhausted",
		logging.Int("attempts", len(attempts)),
		logging.Bool("permanent", exhausted.Permanent),
		logging.Error(lastErr),
		logging.String(logging.FieldErrorHint, "refresh cookies or enable identity rotation and the relay strategy"),
		logging.String(logging.FieldImpact, "item is retried on the next run"),
	)
	return Artifact{}, exhausted
}

// runStrategy retries one strategy per the retry policy and returns the
// artifact or the final failure kind.
func (e *Engine) runStrategy(ctx context.Context, strategy transport.Strategy, item catalog.Item, attempts *[]transport.Attempt) (Artifact, transport.Kind, error) {
	ctx = services.WithStrategy(ctx, strategy.Name())
	logger := logging.WithContext(ctx, e.logger)

	transientLeft := e.opts.SameStrategyRetries
	blockedLeft := e.opts.BlockedRetries
	backoff := e.opts.BackoffInitial

	for {
		if err := e.limiter.Wait(ctx); err != nil {
			return Artifact{}, transport.KindTimeout, err
		}
		handle := e.rotator.Current()
		started := time.Now()
		artifact, err := e.attemptOnce(ctx, strategy, item, handle)
		*attempts = append(*attempts, record(strategy.Name(), handle.Epoch, artifact.Path, err, time.Since(started)))
		if err == nil {
			artifact.Strategy = strategy.Name()
			return artifact, transport.KindNone, nil
		}
		kind := transport.KindOf(err)
		if ctx.Err() != nil {
			return Artifact{}, kind, ctx.Err()
		}

		logger.Info("attempt failed",
			logging.String("kind", kind.String()),
			logging.Int("identity_epoch", handle.Epoch),
			logging.Error(err),
			logging.String(logging.FieldEventType, "acquire_attempt_failed"),
		)

		switch {
		case kind == transport.KindBlocked:
			if e.opts.RotateOnBlocked {
				next := e.rotator.Rotate(ctx)
				logger.Info("identity rotated",
					logging.Int("identity_epoch", next.Epoch),
					logging.Bool("confirmed", next.Confirmed),
					logging.String(logging.FieldEventType, "identity_rotated"),
				)
			}
			if blockedLeft <= 0 {
				return Artifact{}, kind, err
			}
			blockedLeft--
		case kind.Transient():
			if transientLeft <= 0 {
				return Artifact{}, kind, err
			}
			transientLeft--
			if err := e.sleep(ctx, backoff); err != nil {
				return Artifact{}, kind, err
			}
			backoff = nextBackoff(backoff, e.opts.BackoffMax)
		default:
			return Artifact{}, kind, err
		}
		e.cleanPartials(logger, item.ID)
	}
}

func record(strategy string, epoch int, path string, err error, elapsed time.Duration) transport.Attempt {
	a := transport.Attempt{
		Strategy:      strategy,
		IdentityEpoch: epoch,
		Outcome:       transport.OutcomeSuccess,
		Kind:          transport.KindNone,
		Duration:      elapsed,
	}
	if err != nil {
		a.Kind = transport.KindOf(err)
		a.Outcome = transport.OutcomeFor(a.Kind)
		a.Error = err.Error()
		return a
	}
	a.ArtifactPath = path
	return a
}

// attemptOnce runs one strategy call under the per-attempt timeout and
// validates whatever it produced.
func (e *Engine) attemptOnce(ctx context.Context, strategy transport.Strategy, item catalog.Item, handle identity.Handle) (Artifact, error) {
	attemptCtx := ctx
	if e.opts.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, e.opts.AttemptTimeout)
		defer cancel()
	}
	req := transport.Request{
		ItemID:    item.ID,
		URL:       item.SourceURL,
		OutputDir: e.area.RawDir,
	}
	if strategy.UsesIdentity() {
		req.Identity = handle
	}
	payload, err := strategy.Attempt(attemptCtx, req)
	if err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return Artifact{}, transport.Fail(transport.KindTimeout, strategy.Name(), err)
		}
		var failure *transport.Failure
		if !errors.As(err, &failure) {
			err = transport.Fail(transport.KindCorrupt, strategy.Name(), err)
		}
		return Artifact{}, err
	}
	artifact, err := e.finalize(attemptCtx, item, payload)
	if err != nil {
		kind := transport.KindCorrupt
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			kind = transport.KindTimeout
		}
		return Artifact{}, transport.Fail(kind, strategy.Name(), err)
	}
	return artifact, nil
}

// finalize validates the payload, normalizes its container, strips
// captions and derives title and kind.
func (e *Engine) finalize(ctx context.Context, item catalog.Item, payload transport.Payload) (Artifact, error) {
	path := payload.Path
	size, err := fileSize(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("payload missing: %w", err)
	}
	if size <= e.opts.MinArtifactBytes {
		return Artifact{}, fmt.Errorf("payload too small: %d bytes (minimum %d)", size, e.opts.MinArtifactBytes)
	}
	first, err := e.media.Probe(ctx, path)
	if err != nil {
		return Artifact{}, fmt.Errorf("payload unreadable: %w", err)
	}

	container := strings.TrimPrefix(e.opts.CanonicalContainer, ".")
	rightExt := strings.EqualFold(filepath.Ext(path), "."+container)
	// An empty format name means the prober could not tell; trust the extension.
	mislabelled := rightExt && first.FormatName != "" && !first.HasFormat(container)
	if !rightExt || mislabelled {
		target := e.area.RawPath(item.ID, container)
		if mislabelled {
			target = e.area.RawPath(item.ID+"_remux", container)
		}
		if err := e.media.Remux(ctx, path, target); err != nil {
			return Artifact{}, fmt.Errorf("normalize container: %w", err)
		}
		_ = os.Remove(path)
		path = target
	}

	probe, err := e.stripCaptions(ctx, path)
	if err != nil {
		return Artifact{}, err
	}
	if size, err = fileSize(path); err != nil {
		return Artifact{}, fmt.Errorf("normalized payload missing: %w", err)
	}

	return Artifact{
		Path:            path,
		ByteSize:        size,
		Width:           probe.Width,
		Height:          probe.Height,
		DurationSeconds: probe.DurationSeconds,
		Kind:            DeriveKind(item.Kind, probe.Width, probe.Height, probe.DurationSeconds),
		Title:           ChooseTitle(payload.Title, item.Title),
		Description:     payload.Description,
		Tags:            append([]string(nil), payload.Tags...),
	}, nil
}

// stripCaptions strips unconditionally, re-probes, and runs one more pass
// if caption tracks survived. Captions remaining after that are an error.
func (e *Engine) stripCaptions(ctx context.Context, path string) (transform.Probe, error) {
	for pass := 1; pass <= 2; pass++ {
		if err := e.media.StripCaptions(ctx, path); err != nil {
			return transform.Probe{}, fmt.Errorf("strip captions: %w", err)
		}
		probe, err := e.media.Probe(ctx, path)
		if err != nil {
			return transform.Probe{}, fmt.Errorf("verify stripped payload: %w", err)
		}
		if probe.CaptionTracks == 0 {
			return probe, nil
		}
	}
	return transform.Probe{}, fmt.Errorf("caption tracks remain after two strip passes")
}

func (e *Engine) cleanPartials(logger *slog.Logger, id string) {
	removed, err := e.area.RemoveItem(id)
	if err != nil {
		logging.WarnWithContext(logger, "partial cleanup failed", "acquire_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
			logging.String(logging.FieldImpact, "stale partial files may confuse the next strategy"),
		)
		return
	}
	if len(removed) > 0 {
		logger.Debug("removed partial files", logging.Int("count", len(removed)))
	}
}

func fileSize(path string) (int64, error) {
	if strings.TrimSpace(path) == "" {
		return 0, errors.New("no path reported")
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), nil
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next <= 0 {
		next = current
	}
	if max > 0 && next > max {
		next = max
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
