package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Relay asks a third-party resolver for a direct media URL and streams it to disk.
type Relay struct {
	ID      string
	BaseURL string
	APIKey  string
	Client  *http.Client
}

type relayResponse struct {
	Status      string   `json:"status"`
	MediaURL    string   `json:"media_url"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// NewRelay returns a relay strategy. An empty baseURL makes every attempt unavailable.
func NewRelay(baseURL, apiKey string) *Relay {
	return &Relay{
		ID:      "relay",
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{},
	}
}

func (r *Relay) Name() string { return r.ID }

func (r *Relay) UsesIdentity() bool { return false }

func (r *Relay) Attempt(ctx context.Context, req Request) (Payload, error) {
	if r.BaseURL == "" {
		return Payload{}, Failf(KindUnavailable, r.ID, "relay base_url not configured")
	}
	resolved, err := r.resolve(ctx, req.URL)
	if err != nil {
		return Payload{}, err
	}
	target := filepath.Join(req.OutputDir, req.ItemID+mediaExt(resolved.MediaURL))
	if err := r.fetch(ctx, resolved.MediaURL, target); err != nil {
		return Payload{}, err
	}
	return Payload{
		Path:        target,
		Title:       resolved.Title,
		Description: resolved.Description,
		Tags:        resolved.Tags,
	}, nil
}

func (r *Relay) resolve(ctx context.Context, itemURL string) (relayResponse, error) {
	endpoint := r.BaseURL + "/resolve?url=" + url.QueryEscape(itemURL)
	resp, err := r.get(ctx, endpoint, true)
	if err != nil {
		return relayResponse{}, err
	}
	defer resp.Body.Close()

	var payload relayResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload); err != nil {
		return relayResponse{}, Failf(KindCorrupt, r.ID, "decode relay response: %v", err)
	}
	switch strings.ToLower(strings.TrimSpace(payload.Status)) {
	case "ok", "success", "":
	case "not_found", "unavailable", "removed":
		return relayResponse{}, Failf(KindNotFound, r.ID, "relay status %q", payload.Status)
	case "blocked", "rate_limited", "captcha":
		return relayResponse{}, Failf(KindBlocked, r.ID, "relay status %q", payload.Status)
	default:
		return relayResponse{}, Failf(KindTimeout, r.ID, "relay status %q", payload.Status)
	}
	if strings.TrimSpace(payload.MediaURL) == "" {
		return relayResponse{}, Failf(KindCorrupt, r.ID, "relay returned no media_url")
	}
	return payload, nil
}

func (r *Relay) fetch(ctx context.Context, mediaURL, target string) error {
	resp, err := r.get(ctx, mediaURL, false)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Fail(KindUnavailable, r.ID, err)
	}
	partial := target + ".part"
	file, err := os.Create(partial)
	if err != nil {
		return Fail(KindUnavailable, r.ID, err)
	}
	_, copyErr := io.Copy(file, resp.Body)
	closeErr := file.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(partial)
		if copyErr != nil {
			return Fail(KindTimeout, r.ID, fmt.Errorf("stream media: %w", copyErr))
		}
		return Fail(KindCorrupt, r.ID, closeErr)
	}
	if err := os.Rename(partial, target); err != nil {
		_ = os.Remove(partial)
		return Fail(KindCorrupt, r.ID, err)
	}
	return nil
}

func (r *Relay) get(ctx context.Context, target string, authenticated bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, Fail(KindCorrupt, r.ID, err)
	}
	if authenticated && r.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.APIKey)
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		// Transport errors (deadline, reset, DNS) are all retryable.
		return nil, Fail(KindTimeout, r.ID, err)
	}
	if kind, failed := statusKind(resp.StatusCode); failed {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, Failf(kind, r.ID, "GET %s: HTTP %d", redactQuery(target), resp.StatusCode)
	}
	return resp, nil
}

// statusKind maps an HTTP status to a failure kind.
func statusKind(code int) (Kind, bool) {
	switch {
	case code >= 200 && code < 300:
		return 0, false
	case code == http.StatusUnauthorized, code == http.StatusForbidden, code == http.StatusTooManyRequests:
		return KindBlocked, true
	case code == http.StatusNotFound, code == http.StatusGone:
		return KindNotFound, true
	case code >= 500, code == http.StatusRequestTimeout:
		return KindTimeout, true
	default:
		return KindCorrupt, true
	}
}

func mediaExt(mediaURL string) string {
	parsed, err := url.Parse(mediaURL)
	if err != nil {
		return ".mp4"
	}
	ext := strings.ToLower(path.Ext(parsed.Path))
	switch ext {
	case ".mp4", ".webm", ".mkv", ".mov":
		return ext
	default:
		return ".mp4"
	}
}

func redactQuery(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}
