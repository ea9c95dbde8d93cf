package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"ferry/internal/logging"
	"ferry/internal/services"
)

// Request describes one upload.
type Request struct {
	ItemID      string
	Path        string
	Title       string
	Description string
	Tags        []string
	Visibility  string
}

// Result identifies the published item.
type Result struct {
	ID string
}

// Publisher uploads one file.
type Publisher interface {
	Publish(ctx context.Context, req Request) (Result, error)
}

// ErrQuotaExhausted is matched by every *QuotaError.
var ErrQuotaExhausted = services.ErrQuotaExhausted

// QuotaError reports that the destination refuses further uploads today.
type QuotaError struct {
	Reason string
	Err    error
}

func (e *QuotaError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("publish quota exhausted (%s)", e.Reason)
	}
	return fmt.Sprintf("publish quota exhausted (%s): %v", e.Reason, e.Err)
}

func (e *QuotaError) Unwrap() error { return e.Err }

func (e *QuotaError) Is(target error) bool { return target == ErrQuotaExhausted }

// IsQuota reports whether err is a quota exhaustion.
func IsQuota(err error) bool {
	return errors.Is(err, ErrQuotaExhausted)
}

// Noop logs the upload it would have made and returns a synthetic id.
type Noop struct {
	Logger *slog.Logger
}

// NewNoop returns a dry-run publisher.
func NewNoop(logger *slog.Logger) *Noop {
	return &Noop{Logger: logging.NewComponentLogger(logger, "publish")}
}

func (n *Noop) Publish(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	n.Logger.Info("dry run: upload skipped",
		logging.String(logging.FieldItemID, req.ItemID),
		logging.String("title", req.Title),
		logging.Int("tags", len(req.Tags)),
		logging.String("visibility", req.Visibility),
		logging.String(logging.FieldEventType, "publish_dry_run"),
	)
	return Result{ID: "dry-run-" + req.ItemID}, nil
}
