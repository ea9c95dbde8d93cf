package acquisition

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ferry/internal/catalog"
	"ferry/internal/identity"
	"ferry/internal/logging"
	"ferry/internal/services"
	"ferry/internal/staging"
	"ferry/internal/testsupport"
	"ferry/internal/transform"
	"ferry/internal/transport"
)

// step is one scripted strategy outcome: either a failure kind or a payload
// file of the given size and extension.
type step struct {
	kind  transport.Kind
	size  int64
	ext   string
	title string
}

type fakeStrategy struct {
	name     string
	routed   bool
	steps    []step
	requests []transport.Request
}

func (f *fakeStrategy) Name() string       { return f.name }
func (f *fakeStrategy) UsesIdentity() bool { return f.routed }

func (f *fakeStrategy) Attempt(_ context.Context, req transport.Request) (transport.Payload, error) {
	f.requests = append(f.requests, req)
	idx := len(f.requests) - 1
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}
	s := f.steps[idx]
	if s.kind != transport.KindNone {
		// leave a partial behind like a real failed download would
		_ = os.WriteFile(filepath.Join(req.OutputDir, req.ItemID+".mp4.part"), []byte("x"), 0o644)
		return transport.Payload{}, transport.Failf(s.kind, f.name, "scripted %s", s.kind)
	}
	ext := s.ext
	if ext == "" {
		ext = ".mp4"
	}
	path := filepath.Join(req.OutputDir, req.ItemID+ext)
	if err := os.WriteFile(path, make([]byte, s.size), 0o644); err != nil {
		return transport.Payload{}, err
	}
	return transport.Payload{Path: path, Title: s.title, Description: "desc", Tags: []string{"t1"}}, nil
}

type fakeMedia struct {
	probe     transform.Probe
	captions  int
	stripped  int
	remuxed   []string
	probeErrs int
}

func (m *fakeMedia) Probe(_ context.Context, path string) (transform.Probe, error) {
	if m.probeErrs > 0 {
		m.probeErrs--
		return transform.Probe{}, services.Wrap(services.ErrValidation, "transform", "probe", "no video stream", nil)
	}
	p := m.probe
	p.CaptionTracks = m.captions
	return p, nil
}

func (m *fakeMedia) Remux(_ context.Context, in, out string) error {
	m.remuxed = append(m.remuxed, filepath.Base(in))
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o644)
}

// StripCaptions removes one caption track per pass unless sticky is set
// through a negative captions count.
func (m *fakeMedia) StripCaptions(context.Context, string) error {
	m.stripped++
	if m.captions > 0 {
		m.captions--
	}
	return nil
}

type fakeRotator struct {
	epoch   int
	rotated int
}

func (r *fakeRotator) Current() identity.Handle {
	return identity.Handle{Epoch: r.epoch, ProxyURL: "socks5://proxy", Confirmed: true}
}

func (r *fakeRotator) Rotate(context.Context) identity.Handle {
	r.rotated++
	r.epoch++
	return r.Current()
}

func landscape() transform.Probe {
	return transform.Probe{Width: 1920, Height: 1080, DurationSeconds: 300, VideoStreams: 1}
}

func newTestEngine(t *testing.T, media Media, rotator identity.Rotator, strategies ...transport.Strategy) (*Engine, staging.Area, *[]time.Duration) {
	t.Helper()
	base := t.TempDir()
	area := staging.New(filepath.Join(base, "raw"), filepath.Join(base, "out"))
	opts := Options{
		SameStrategyRetries: 2,
		BlockedRetries:      1,
		BackoffInitial:      time.Second,
		BackoffMax:          3 * time.Second,
		MinArtifactBytes:    10000,
		AttemptTimeout:      time.Minute,
		CanonicalContainer:  "mp4",
		RotateOnBlocked:     true,
	}
	engine := NewEngine(strategies, rotator, media, area, opts, logging.NewNop())
	var sleeps []time.Duration
	engine.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return engine, area, &sleeps
}

var sampleItem = catalog.Item{ID: "a1", SourceURL: catalog.WatchURL("a1"), Title: "Listing Title", Kind: catalog.KindPrimary}

func TestAcquireFirstStrategySucceeds(t *testing.T) {
	media := &fakeMedia{probe: landscape(), captions: 1}
	first := &fakeStrategy{name: "browser_cookies", steps: []step{{size: 20000, title: "Real Title"}}}
	second := &fakeStrategy{name: "ios_client", steps: []step{{size: 20000}}}
	engine, area, _ := newTestEngine(t, media, nil, first, second)

	artifact, err := engine.Acquire(context.Background(), sampleItem)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if artifact.Path != area.RawPath("a1", "mp4") || artifact.ByteSize != 20000 {
		t.Fatalf("unexpected artifact %+v", artifact)
	}
	if artifact.Title != "Real Title" || artifact.Strategy != "browser_cookies" || artifact.Kind != catalog.KindPrimary {
		t.Fatalf("unexpected metadata %+v", artifact)
	}
	if len(second.requests) != 0 {
		t.Fatal("engine must stop at first success")
	}
	if len(artifact.Attempts) != 1 || artifact.Attempts[0].Outcome != transport.OutcomeSuccess || artifact.Attempts[0].ArtifactPath != artifact.Path {
		t.Fatalf("unexpected attempts %+v", artifact.Attempts)
	}
	if got := artifact.Attempts[0].Kind; got != transport.KindNone || got.String() != "none" {
		t.Fatalf("successful attempt kind = %s", got)
	}
	if media.stripped != 1 || media.captions != 0 {
		t.Fatalf("captions must be stripped unconditionally, stripped=%d remaining=%d", media.stripped, media.captions)
	}
}

func TestAcquireAllNotFoundIsPermanent(t *testing.T) {
	media := &fakeMedia{probe: landscape()}
	a := &fakeStrategy{name: "browser_cookies", steps: []step{{kind: transport.KindNotFound}}}
	b := &fakeStrategy{name: "ios_client", steps: []step{{kind: transport.KindNotFound}}}
	c := &fakeStrategy{name: "cookie_file", steps: []step{{kind: transport.KindUnavailable}}}
	engine, area, sleeps := newTestEngine(t, media, nil, a, c, b)

	_, err := engine.Acquire(context.Background(), sampleItem)
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if !exhausted.Permanent || !errors.Is(err, ErrAcquisitionExhausted) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected permanent exhaustion, got %+v", exhausted)
	}
	if len(a.requests) != 1 || len(b.requests) != 1 || len(c.requests) != 1 {
		t.Fatal("NotFound and Unavailable must not be retried")
	}
	if len(exhausted.Attempts) != 3 || len(*sleeps) != 0 {
		t.Fatalf("unexpected attempts %d sleeps %d", len(exhausted.Attempts), len(*sleeps))
	}
	if entries, _ := area.List(); len(entries) != 0 {
		t.Fatalf("exhaustion must leave no partial files, found %+v", entries)
	}
}

func TestAcquireOnlyUnavailableIsNotPermanent(t *testing.T) {
	media := &fakeMedia{probe: landscape()}
	a := &fakeStrategy{name: "cookie_file", steps: []step{{kind: transport.KindUnavailable}}}
	engine, _, _ := newTestEngine(t, media, nil, a)
	_, err := engine.Acquire(context.Background(), sampleItem)
	if !errors.Is(err, ErrAcquisitionExhausted) || errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected transient exhaustion, got %v", err)
	}
}

func TestAcquireMixedFailuresAreTransient(t *testing.T) {
	media := &fakeMedia{probe: landscape()}
	a := &fakeStrategy{name: "browser_cookies", steps: []step{{kind: transport.KindNotFound}}}
	b := &fakeStrategy{name: "ios_client", steps: []step{{kind: transport.KindTimeout}}}
	engine, _, _ := newTestEngine(t, media, nil, a, b)
	_, err := engine.Acquire(context.Background(), sampleItem)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient exhaustion, got %v", err)
	}
	if len(b.requests) != 3 {
		t.Fatalf("timeouts retry the same strategy, got %d requests", len(b.requests))
	}
}

func TestAcquireRetriesTransientWithBackoff(t *testing.T) {
	media := &fakeMedia{probe: landscape()}
	a := &fakeStrategy{name: "ios_client", steps: []step{
		{kind: transport.KindTimeout},
		{kind: transport.KindCorrupt},
		{size: 20000},
	}}
	engine, _, sleeps := newTestEngine(t, media, nil, a)
	artifact, err := engine.Acquire(context.Background(), sampleItem)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(artifact.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(artifact.Attempts))
	}
	if artifact.Attempts[0].Outcome != transport.OutcomeTimeout || artifact.Attempts[1].Outcome != transport.OutcomeTransientFailure {
		t.Fatalf("unexpected outcomes %+v", artifact.Attempts)
	}
	if got := *sleeps; len(got) != 2 || got[0] != time.Second || got[1] != 2*time.Second {
		t.Fatalf("unexpected backoff sequence %v", got)
	}
}

func TestAcquireBlockedRotatesIdentity(t *testing.T) {
	media := &fakeMedia{probe: landscape()}
	rotator := &fakeRotator{}
	blocked := &fakeStrategy{name: "anonymized", routed: true, steps: []step{{kind: transport.KindBlocked}}}
	next := &fakeStrategy{name: "tv_client", steps: []step{{size: 20000}}}
	engine, _, sleeps := newTestEngine(t, media, rotator, blocked, next)

	artifact, err := engine.Acquire(context.Background(), sampleItem)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(blocked.requests) != 2 {
		t.Fatalf("blocked strategy retried once, got %d requests", len(blocked.requests))
	}
	if rotator.rotated != 2 {
		t.Fatalf("every blocked outcome rotates, got %d rotations", rotator.rotated)
	}
	if blocked.requests[0].Identity.Epoch != 0 || blocked.requests[1].Identity.Epoch != 1 || blocked.requests[1].Identity.ProxyURL == "" {
		t.Fatalf("retry must use the rotated identity: %+v", blocked.requests)
	}
	if next.requests[0].Identity != (identity.Handle{}) {
		t.Fatal("strategies that do not use identity get no proxy")
	}
	epochs := []int{artifact.Attempts[0].IdentityEpoch, artifact.Attempts[1].IdentityEpoch, artifact.Attempts[2].IdentityEpoch}
	if epochs[0] != 0 || epochs[1] != 1 || epochs[2] != 2 {
		t.Fatalf("unexpected attempt epochs %v", epochs)
	}
	if len(*sleeps) != 0 {
		t.Fatal("blocked retries rotate instead of backing off")
	}
}

func TestAcquireUndersizedPayloadIsCorrupt(t *testing.T) {
	media := &fakeMedia{probe: landscape()}
	a := &fakeStrategy{name: "ios_client", steps: []step{{size: 10000}}}
	b := &fakeStrategy{name: "tv_client", steps: []step{{size: 10001}}}
	engine, _, _ := newTestEngine(t, media, nil, a, b)
	artifact, err := engine.Acquire(context.Background(), sampleItem)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if artifact.Strategy != "tv_client" || len(a.requests) != 3 {
		t.Fatalf("undersized payloads should retry then fall through, got %s after %d", artifact.Strategy, len(a.requests))
	}
	if artifact.Attempts[0].Kind != transport.KindCorrupt {
		t.Fatalf("expected corrupt kind, got %s", artifact.Attempts[0].Kind)
	}
}

func TestAcquireUnprobeablePayloadIsCorrupt(t *testing.T) {
	media := &fakeMedia{probe: landscape(), probeErrs: 1}
	a := &fakeStrategy{name: "ios_client", steps: []step{{size: 20000}}}
	engine, _, _ := newTestEngine(t, media, nil, a)
	artifact, err := engine.Acquire(context.Background(), sampleItem)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(artifact.Attempts) != 2 || artifact.Attempts[0].Kind != transport.KindCorrupt {
		t.Fatalf("unexpected attempts %+v", artifact.Attempts)
	}
}

func TestAcquireRemuxesNonCanonicalContainer(t *testing.T) {
	media := &fakeMedia{probe: landscape()}
	a := &fakeStrategy{name: "ios_client", steps: []step{{size: 20000, ext: ".webm"}}}
	engine, area, _ := newTestEngine(t, media, nil, a)
	artifact, err := engine.Acquire(context.Background(), sampleItem)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(media.remuxed) != 1 || media.remuxed[0] != "a1.webm" {
		t.Fatalf("expected remux of a1.webm, got %v", media.remuxed)
	}
	if artifact.Path != area.RawPath("a1", "mp4") {
		t.Fatalf("unexpected path %s", artifact.Path)
	}
	if _, err := os.Stat(area.RawPath("a1", "webm")); !os.IsNotExist(err) {
		t.Fatal("source container should be removed after remux")
	}
}

func TestAcquireRemuxesMislabelledContainer(t *testing.T) {
	probe := landscape()
	probe.FormatName = "matroska,webm"
	media := &fakeMedia{probe: probe}
	a := &fakeStrategy{name: "ios_client", steps: []step{{size: 20000, ext: ".mp4"}}}
	engine, area, _ := newTestEngine(t, media, nil, a)
	artifact, err := engine.Acquire(context.Background(), sampleItem)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(media.remuxed) != 1 || media.remuxed[0] != "a1.mp4" {
		t.Fatalf("expected remux of mislabelled a1.mp4, got %v", media.remuxed)
	}
	if artifact.Path != area.RawPath("a1_remux", "mp4") {
		t.Fatalf("unexpected path %s", artifact.Path)
	}
	if _, err := os.Stat(area.RawPath("a1", "mp4")); !os.IsNotExist(err) {
		t.Fatal("mislabelled source should be removed after remux")
	}
}

func TestAcquireKeepsCanonicalContainer(t *testing.T) {
	probe := landscape()
	probe.FormatName = "mov,mp4,m4a,3gp,3g2,mj2"
	media := &fakeMedia{probe: probe}
	a := &fakeStrategy{name: "ios_client", steps: []step{{size: 20000}}}
	engine, area, _ := newTestEngine(t, media, nil, a)
	artifact, err := engine.Acquire(context.Background(), sampleItem)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if len(media.remuxed) != 0 || artifact.Path != area.RawPath("a1", "mp4") {
		t.Fatalf("mp4 payload should pass through, remuxed=%v path=%s", media.remuxed, artifact.Path)
	}
}

// hangingStrategy blocks until its attempt context ends.
type hangingStrategy struct{ calls int }

func (h *hangingStrategy) Name() string       { return "web_client" }
func (h *hangingStrategy) UsesIdentity() bool { return false }

func (h *hangingStrategy) Attempt(ctx context.Context, _ transport.Request) (transport.Payload, error) {
	h.calls++
	<-ctx.Done()
	return transport.Payload{}, ctx.Err()
}

func TestAcquireAttemptTimeoutFallsThrough(t *testing.T) {
	media := &fakeMedia{probe: landscape()}
	hung := &hangingStrategy{}
	next := &fakeStrategy{name: "ios_client", steps: []step{{size: 20000}}}
	engine, _, _ := newTestEngine(t, media, nil, hung, next)
	engine.opts.AttemptTimeout = 20 * time.Millisecond

	artifact, err := engine.Acquire(context.Background(), sampleItem)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if hung.calls != 3 {
		t.Fatalf("expected initial attempt plus two retries, got %d", hung.calls)
	}
	if artifact.Strategy != "ios_client" || len(artifact.Attempts) != 4 {
		t.Fatalf("unexpected artifact %+v", artifact)
	}
	for _, a := range artifact.Attempts[:3] {
		if a.Kind != transport.KindTimeout || a.Outcome != transport.OutcomeTimeout {
			t.Fatalf("hung attempt recorded as %s/%v", a.Kind, a.Outcome)
		}
	}
}

func TestAcquireSecondStripPass(t *testing.T) {
	media := &fakeMedia{probe: landscape(), captions: 2}
	a := &fakeStrategy{name: "ios_client", steps: []step{{size: 20000}}}
	engine, _, _ := newTestEngine(t, media, nil, a)
	if _, err := engine.Acquire(context.Background(), sampleItem); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if media.stripped != 2 {
		t.Fatalf("expected two strip passes, got %d", media.stripped)
	}
}

func TestAcquireRejectsPersistentCaptions(t *testing.T) {
	media := &fakeMedia{probe: landscape(), captions: 1000}
	a := &fakeStrategy{name: "ios_client", steps: []step{{size: 20000}}}
	engine, _, _ := newTestEngine(t, media, nil, a)
	_, err := engine.Acquire(context.Background(), sampleItem)
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) || exhausted.Permanent {
		t.Fatalf("expected transient exhaustion, got %v", err)
	}
	if !strings.Contains(exhausted.Attempts[0].Error, "caption") || exhausted.Attempts[0].Kind != transport.KindCorrupt {
		t.Fatalf("unexpected attempt %+v", exhausted.Attempts[0])
	}
}

func TestAcquireValidatedArtifactHasNoCaptions(t *testing.T) {
	for _, captions := range []int{0, 1, 2} {
		media := &fakeMedia{probe: landscape(), captions: captions}
		a := &fakeStrategy{name: "ios_client", steps: []step{{size: 20000}}}
		engine, _, _ := newTestEngine(t, media, nil, a)
		artifact, err := engine.Acquire(context.Background(), sampleItem)
		if err != nil {
			t.Fatalf("Acquire with %d captions: %v", captions, err)
		}
		probe, _ := media.Probe(context.Background(), artifact.Path)
		if probe.CaptionTracks != 0 {
			t.Fatalf("validated artifact still has %d caption tracks", probe.CaptionTracks)
		}
	}
}

func TestAcquireKindMonotonicity(t *testing.T) {
	cases := []struct {
		name  string
		hint  catalog.Kind
		probe transform.Probe
		want  catalog.Kind
	}{
		{"short hint survives landscape", catalog.KindShort, landscape(), catalog.KindShort},
		{"portrait upgrades primary", catalog.KindPrimary, transform.Probe{Width: 1080, Height: 1920, DurationSeconds: 300, VideoStreams: 1}, catalog.KindShort},
		{"brief upgrades primary", catalog.KindPrimary, transform.Probe{Width: 1920, Height: 1080, DurationSeconds: 45, VideoStreams: 1}, catalog.KindShort},
		{"long landscape stays primary", catalog.KindPrimary, landscape(), catalog.KindPrimary},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			media := &fakeMedia{probe: tc.probe}
			a := &fakeStrategy{name: "ios_client", steps: []step{{size: 20000}}}
			engine, _, _ := newTestEngine(t, media, nil, a)
			item := sampleItem
			item.Kind = tc.hint
			artifact, err := engine.Acquire(context.Background(), item)
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			if artifact.Kind != tc.want {
				t.Fatalf("kind = %s, want %s", artifact.Kind, tc.want)
			}
		})
	}
}

func TestAcquireCleansPartialsBetweenStrategies(t *testing.T) {
	media := &fakeMedia{probe: landscape()}
	a := &fakeStrategy{name: "ios_client", steps: []step{{kind: transport.KindNotFound}}}
	engine, area, _ := newTestEngine(t, media, nil, a)
	testsupport.WriteMedia(t, area.RawPath("a1", "mkv"), 50000)
	b := &fakeStrategy{name: "tv_client", steps: []step{{size: 20000}}}
	engine.strategies = append(engine.strategies, b)

	if _, err := engine.Acquire(context.Background(), sampleItem); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	for _, leftover := range []string{area.RawPath("a1", "mkv"), area.RawPath("a1", "mp4.part")} {
		if _, err := os.Stat(leftover); !os.IsNotExist(err) {
			t.Fatalf("partial %s should have been cleaned", leftover)
		}
	}
}

func TestAcquireCanceled(t *testing.T) {
	media := &fakeMedia{probe: landscape()}
	a := &fakeStrategy{name: "ios_client", steps: []step{{size: 20000}}}
	engine, _, _ := newTestEngine(t, media, nil, a)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Acquire(ctx, sampleItem); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestChooseTitle(t *testing.T) {
	cases := []struct{ payload, listing, want string }{
		{"Real Title", "Listing", "Real Title"},
		{"", "Listing", "Listing"},
		{"dl/a1.mp4", "Listing", "Listing"},
		{"a1.f137", "Listing", "Listing"},
		{"Untitled", "x", PlaceholderTitle},
		{" ", "", PlaceholderTitle},
	}
	for _, tc := range cases {
		if got := ChooseTitle(tc.payload, tc.listing); got != tc.want {
			t.Fatalf("ChooseTitle(%q, %q) = %q, want %q", tc.payload, tc.listing, got, tc.want)
		}
	}
}
