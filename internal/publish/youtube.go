package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"

	"ferry/internal/logging"
	"ferry/internal/services"
)

// quotaReasons are the API error reasons that mean no more uploads today.
var quotaReasons = map[string]struct{}{
	"uploadLimitExceeded": {},
	"quotaExceeded":       {},
	"dailyLimitExceeded":  {},
}

const maxBackoff = 60 * time.Second

// insertFunc performs one videos.insert call.
type insertFunc func(ctx context.Context, video *youtube.Video, media io.Reader) (*youtube.Video, error)

// YouTube publishes through the YouTube Data API.
type YouTube struct {
	categoryID string
	chunkSize  int
	maxRetries int
	logger     *slog.Logger
	insert     insertFunc
	sleep      func(ctx context.Context, d time.Duration) error
}

// YouTubeOptions tunes uploads.
type YouTubeOptions struct {
	CategoryID  string
	ChunkSizeMB int
	MaxRetries  int
}

// NewYouTube returns a publisher backed by svc.
func NewYouTube(svc *youtube.Service, opts YouTubeOptions, logger *slog.Logger) *YouTube {
	y := &YouTube{
		categoryID: opts.CategoryID,
		chunkSize:  opts.ChunkSizeMB * 1024 * 1024,
		maxRetries: opts.MaxRetries,
		logger:     logging.NewComponentLogger(logger, "publish"),
		sleep:      sleepContext,
	}
	if y.chunkSize <= 0 {
		y.chunkSize = googleapi.DefaultUploadChunkSize
	}
	if y.categoryID == "" {
		y.categoryID = "22"
	}
	y.insert = func(ctx context.Context, video *youtube.Video, media io.Reader) (*youtube.Video, error) {
		return svc.Videos.Insert([]string{"snippet", "status"}, video).
			Media(media, googleapi.ChunkSize(y.chunkSize)).
			Context(ctx).
			Do()
	}
	return y
}

// Publish uploads req.Path. Title, description and tags are clamped to the
// API limits.
func (y *YouTube) Publish(ctx context.Context, req Request) (Result, error) {
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       clampRunes(req.Title, 100),
			Description: clampRunes(req.Description, 5000),
			Tags:        clampTags(req.Tags, 30),
			CategoryId:  y.categoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           req.Visibility,
			SelfDeclaredMadeForKids: false,
			ForceSendFields:         []string{"SelfDeclaredMadeForKids"},
		},
	}
	logger := logging.WithContext(services.WithItemID(ctx, req.ItemID), y.logger)

	for retry := 0; ; retry++ {
		resp, err := y.uploadOnce(ctx, req.Path, video)
		if err == nil {
			logger.Info("uploaded",
				logging.String("video_id", resp.Id),
				logging.String("visibility", req.Visibility),
				logging.Int("retries", retry),
				logging.String(logging.FieldEventType, "publish_complete"),
			)
			return Result{ID: resp.Id}, nil
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		classified, retryable := classify(err)
		if !retryable || retry >= y.maxRetries {
			return Result{}, classified
		}
		wait := backoff(retry)
		logging.WarnWithContext(logger, "upload failed; retrying", "publish_retry",
			logging.Int("attempt", retry+1),
			logging.Duration("wait", wait),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "destination returned a server error"),
			logging.String(logging.FieldImpact, "upload restarts from the beginning"),
		)
		if err := y.sleep(ctx, wait); err != nil {
			return Result{}, err
		}
	}
}

func (y *YouTube) uploadOnce(ctx context.Context, path string, video *youtube.Video) (*youtube.Video, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "publish", "open media", path, err)
	}
	defer f.Close()
	resp, err := y.insert(ctx, video, f)
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.Id == "" {
		return nil, errors.New("upload returned no video id")
	}
	return resp, nil
}

// classify maps an upload error to the shared taxonomy and reports whether
// another attempt may help.
func classify(err error) (error, bool) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		for _, item := range gerr.Errors {
			if _, ok := quotaReasons[item.Reason]; ok {
				return &QuotaError{Reason: item.Reason, Err: err}, false
			}
		}
		switch {
		case gerr.Code >= 500:
			return services.Wrap(services.ErrTransient, "publish", "upload", fmt.Sprintf("server error %d", gerr.Code), err), true
		case gerr.Code == 401:
			return services.Wrap(services.ErrConfiguration, "publish", "upload", "credentials rejected", err), false
		default:
			return services.Wrap(services.ErrValidation, "publish", "upload", fmt.Sprintf("rejected with %d", gerr.Code), err), false
		}
	}
	if errors.Is(err, services.ErrValidation) {
		return err, false
	}
	return services.Wrap(services.ErrTransient, "publish", "upload", "network error", err), true
}

// backoff returns min(2^retry, 60) seconds.
func backoff(retry int) time.Duration {
	if retry >= 6 {
		return maxBackoff
	}
	d := time.Duration(1<<uint(retry)) * time.Second
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func clampRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}

func clampTags(tags []string, n int) []string {
	if len(tags) > n {
		tags = tags[:n]
	}
	return append([]string(nil), tags...)
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
