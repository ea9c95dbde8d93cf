package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ferry/internal/config"
)

const userAgent = "ferry/0.3.0"

// Run is the subset of a run summary worth pushing to a phone.
type Run struct {
	RunID           string
	Source          string
	Succeeded       int
	Failed          int
	Pending         int
	AbortedForQuota bool
	PartialListing  bool
	ListingFailed   bool
	Canceled        bool
	DryRun          bool
	Elapsed         time.Duration
	Failures        []string
}

// NeedsAttention reports whether the run ended in a state an operator should
// look at.
func (r Run) NeedsAttention() bool {
	return r.Failed > 0 || r.AbortedForQuota || r.PartialListing || r.ListingFailed
}

// Service is the notification surface used by the pipeline and CLI.
type Service interface {
	NotifyRunCompleted(ctx context.Context, run Run) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notify.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := cfg.Notify.RequestTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:       topic,
		client:         &http.Client{Timeout: timeout},
		onlyOnProblems: cfg.Notify.OnlyOnProblems,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint       string
	client         *http.Client
	onlyOnProblems bool
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, run Run) error {
	if n.onlyOnProblems && !run.NeedsAttention() {
		return nil
	}
	return n.send(ctx, runPayload(run))
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "Ferry - Test",
		message:  "Notification system test",
		tags:     []string{"ferry", "test"},
		priority: "low",
	})
}

func runPayload(run Run) payload {
	elapsed := run.Elapsed.Round(time.Second)
	if elapsed < 0 {
		elapsed = 0
	}

	data := payload{tags: []string{"ferry", "run"}}
	switch {
	case run.ListingFailed:
		data.title = "Ferry - Listing Failed"
		data.message = fmt.Sprintf("Could not list %s; nothing was processed", run.Source)
		data.tags = append(data.tags, "error")
		data.priority = "high"
		return data
	case run.AbortedForQuota:
		data.title = "Ferry - Quota Reached"
		data.tags = append(data.tags, "quota")
	case run.Failed > 0:
		data.title = "Ferry - Run Complete (with errors)"
		data.tags = append(data.tags, "error")
		data.priority = "high"
	case run.Canceled:
		data.title = "Ferry - Run Interrupted"
		data.tags = append(data.tags, "canceled")
	default:
		data.title = "Ferry - Run Complete"
		data.tags = append(data.tags, "completed")
	}
	if run.DryRun {
		data.title += " [dry run]"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d published, %d failed, %d pending in %s", run.Succeeded, run.Failed, run.Pending, elapsed)
	if run.PartialListing {
		b.WriteString("\nListing was partial")
	}
	if run.AbortedForQuota {
		b.WriteString("\nStopped early: destination quota exhausted")
	}
	for _, line := range run.Failures {
		b.WriteString("\n- ")
		b.WriteString(strings.TrimSpace(line))
	}
	data.message = b.String()
	return data
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunCompleted(context.Context, Run) error { return nil }
func (noopService) TestNotification(context.Context) error        { return nil }
