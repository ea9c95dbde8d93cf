package publish

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"ferry/internal/config"
	"ferry/internal/logging"
	"ferry/internal/services"
)

type scriptedInsert struct {
	errs   []error
	calls  int
	videos []*youtube.Video
	bodies []string
}

func (s *scriptedInsert) insert(_ context.Context, video *youtube.Video, media io.Reader) (*youtube.Video, error) {
	s.calls++
	s.videos = append(s.videos, video)
	data, _ := io.ReadAll(media)
	s.bodies = append(s.bodies, string(data))
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &youtube.Video{Id: "vid123"}, nil
}

func newTestYouTube(ins *scriptedInsert, maxRetries int, waits *[]time.Duration) *YouTube {
	return &YouTube{
		categoryID: "22",
		maxRetries: maxRetries,
		logger:     logging.NewNop(),
		insert:     ins.insert,
		sleep: func(_ context.Context, d time.Duration) error {
			*waits = append(*waits, d)
			return nil
		},
	}
}

func writeMedia(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a1_final.mp4")
	if err := os.WriteFile(path, []byte("media-bytes"), 0o644); err != nil {
		t.Fatalf("write media: %v", err)
	}
	return path
}

func TestPublishRetriesServerErrors(t *testing.T) {
	ins := &scriptedInsert{errs: []error{
		&googleapi.Error{Code: 503},
		&googleapi.Error{Code: 500},
		nil,
	}}
	var waits []time.Duration
	y := newTestYouTube(ins, 5, &waits)

	res, err := y.Publish(context.Background(), Request{ItemID: "a1", Path: writeMedia(t), Title: "T", Visibility: "public"})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.ID != "vid123" {
		t.Fatalf("id = %q", res.ID)
	}
	if ins.calls != 3 {
		t.Fatalf("calls = %d, want 3", ins.calls)
	}
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Fatalf("waits = %v", waits)
	}
	for i, body := range ins.bodies {
		if body != "media-bytes" {
			t.Fatalf("attempt %d sent %q; file must be reread on every attempt", i, body)
		}
	}
}

func TestPublishGivesUpAfterMaxRetries(t *testing.T) {
	ins := &scriptedInsert{errs: []error{
		&googleapi.Error{Code: 502},
		&googleapi.Error{Code: 502},
		&googleapi.Error{Code: 502},
	}}
	var waits []time.Duration
	y := newTestYouTube(ins, 2, &waits)

	_, err := y.Publish(context.Background(), Request{ItemID: "a1", Path: writeMedia(t)})
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("err = %v, want transient", err)
	}
	if ins.calls != 3 {
		t.Fatalf("calls = %d, want 3", ins.calls)
	}
}

func TestPublishQuotaIsNotRetried(t *testing.T) {
	ins := &scriptedInsert{errs: []error{&googleapi.Error{
		Code:   403,
		Errors: []googleapi.ErrorItem{{Reason: "uploadLimitExceeded"}},
	}}}
	var waits []time.Duration
	y := newTestYouTube(ins, 5, &waits)

	_, err := y.Publish(context.Background(), Request{ItemID: "a1", Path: writeMedia(t)})
	if !IsQuota(err) {
		t.Fatalf("err = %v, want quota", err)
	}
	var qe *QuotaError
	if !errors.As(err, &qe) || qe.Reason != "uploadLimitExceeded" {
		t.Fatalf("quota error = %#v", qe)
	}
	if services.FailureClass(err) != services.ClassQuota {
		t.Fatalf("class = %q", services.FailureClass(err))
	}
	if ins.calls != 1 || len(waits) != 0 {
		t.Fatalf("calls=%d waits=%v", ins.calls, waits)
	}
}

func TestPublishClientErrorsArePermanent(t *testing.T) {
	cases := []struct {
		code int
		want error
	}{
		{400, services.ErrValidation},
		{401, services.ErrConfiguration},
	}
	for _, tc := range cases {
		ins := &scriptedInsert{errs: []error{&googleapi.Error{Code: tc.code}}}
		var waits []time.Duration
		y := newTestYouTube(ins, 5, &waits)
		_, err := y.Publish(context.Background(), Request{ItemID: "a1", Path: writeMedia(t)})
		if !errors.Is(err, tc.want) {
			t.Fatalf("code %d: err = %v, want %v", tc.code, err, tc.want)
		}
		if ins.calls != 1 {
			t.Fatalf("code %d: calls = %d", tc.code, ins.calls)
		}
	}
}

func TestPublishMissingFileIsValidation(t *testing.T) {
	ins := &scriptedInsert{}
	var waits []time.Duration
	y := newTestYouTube(ins, 5, &waits)
	_, err := y.Publish(context.Background(), Request{ItemID: "a1", Path: filepath.Join(t.TempDir(), "missing.mp4")})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	if ins.calls != 0 {
		t.Fatalf("insert called for missing file")
	}
}

func TestPublishClampsMetadata(t *testing.T) {
	ins := &scriptedInsert{}
	var waits []time.Duration
	y := newTestYouTube(ins, 0, &waits)
	tags := make([]string, 40)
	for i := range tags {
		tags[i] = "tag"
	}
	_, err := y.Publish(context.Background(), Request{
		ItemID:      "a1",
		Path:        writeMedia(t),
		Title:       strings.Repeat("é", 150),
		Description: strings.Repeat("d", 6000),
		Tags:        tags,
		Visibility:  "unlisted",
	})
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	v := ins.videos[0]
	if n := len([]rune(v.Snippet.Title)); n != 100 {
		t.Fatalf("title runes = %d", n)
	}
	if n := len([]rune(v.Snippet.Description)); n != 5000 {
		t.Fatalf("description runes = %d", n)
	}
	if len(v.Snippet.Tags) != 30 {
		t.Fatalf("tags = %d", len(v.Snippet.Tags))
	}
	if v.Status.PrivacyStatus != "unlisted" || v.Snippet.CategoryId != "22" {
		t.Fatalf("status = %+v snippet category = %q", v.Status, v.Snippet.CategoryId)
	}
}

func TestBackoffCaps(t *testing.T) {
	want := []time.Duration{1, 2, 4, 8, 16, 32, 60, 60}
	for i, w := range want {
		if got := backoff(i); got != w*time.Second {
			t.Fatalf("backoff(%d) = %v, want %v", i, got, w*time.Second)
		}
	}
}

func TestNoopReturnsSyntheticID(t *testing.T) {
	res, err := NewNoop(nil).Publish(context.Background(), Request{ItemID: "a1"})
	if err != nil || res.ID != "dry-run-a1" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestScannerPagesThroughUploads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/channels"):
			_, _ = io.WriteString(w, `{"items":[{"contentDetails":{"relatedPlaylists":{"uploads":"UU1"}}}]}`)
		case strings.HasSuffix(r.URL.Path, "/playlistItems"):
			if r.URL.Query().Get("playlistId") != "UU1" {
				http.Error(w, "bad playlist", http.StatusBadRequest)
				return
			}
			if r.URL.Query().Get("pageToken") == "p2" {
				_, _ = io.WriteString(w, `{"items":[{"snippet":{"description":"third"}}]}`)
				return
			}
			_, _ = io.WriteString(w, `{"items":[{"snippet":{"description":"first"}},{"snippet":{"description":"second"}}],"nextPageToken":"p2"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	svc, err := youtube.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	got, err := NewScanner(svc).ScanDescriptions(context.Background())
	if err != nil {
		t.Fatalf("ScanDescriptions: %v", err)
	}
	if strings.Join(got, ",") != "first,second,third" {
		t.Fatalf("descriptions = %v", got)
	}
}

func TestTokenRoundTripIsPrivate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"}
	if err := SaveToken(path, tok); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v", info.Mode().Perm())
	}
	loaded, err := LoadToken(path)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if loaded.RefreshToken != "r" {
		t.Fatalf("refresh token = %q", loaded.RefreshToken)
	}
}

func TestOpenWithoutTokenIsConfigurationError(t *testing.T) {
	cfg := config.Default()
	cfg.Publish.Provider = config.PublishYouTube
	cfg.Publish.TokenPath = filepath.Join(t.TempDir(), "token.json")
	_, err := Open(context.Background(), &cfg, false, nil)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenDryRunUsesNoop(t *testing.T) {
	cfg := config.Default()
	cfg.Publish.Provider = config.PublishYouTube
	dest, err := Open(context.Background(), &cfg, true, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := dest.Publisher.(*Noop); !ok || dest.Scanner != nil {
		t.Fatalf("dest = %+v", dest)
	}
}
