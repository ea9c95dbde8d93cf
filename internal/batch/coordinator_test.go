package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ferry/internal/acquisition"
	"ferry/internal/catalog"
	"ferry/internal/logging"
	"ferry/internal/progress"
	"ferry/internal/publish"
	"ferry/internal/services"
	"ferry/internal/staging"
	"ferry/internal/testsupport"
	"ferry/internal/transform"
)

type fakeAcquirer struct {
	area  staging.Area
	errs  map[string]error
	kinds map[string]catalog.Kind
	calls []string
}

func (f *fakeAcquirer) Acquire(_ context.Context, item catalog.Item) (acquisition.Artifact, error) {
	f.calls = append(f.calls, item.ID)
	if err := f.errs[item.ID]; err != nil {
		return acquisition.Artifact{}, err
	}
	path := f.area.RawPath(item.ID, "mp4")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return acquisition.Artifact{}, err
	}
	if err := os.WriteFile(path, []byte("raw"), 0o644); err != nil {
		return acquisition.Artifact{}, err
	}
	kind := item.Kind
	if k, ok := f.kinds[item.ID]; ok {
		kind = kind.Upgrade(k == catalog.KindShort)
	}
	return acquisition.Artifact{
		Path:        path,
		ByteSize:    3,
		Kind:        kind,
		Title:       "clip " + item.ID,
		Description: "a long enough description for " + item.ID,
		Tags:        []string{"tag"},
		Strategy:    "web",
	}, nil
}

type fakeTransformer struct {
	err          map[string]error
	orientations map[string]transform.Orientation
}

func (f *fakeTransformer) Transform(_ context.Context, in, out string, orientation transform.Orientation, _ float64) (string, error) {
	id := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	if f.orientations == nil {
		f.orientations = map[string]transform.Orientation{}
	}
	f.orientations[id] = orientation
	if err := f.err[id]; err != nil {
		_ = os.WriteFile(out, []byte("half"), 0o644)
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", err
	}
	return out, os.WriteFile(out, []byte("final"), 0o644)
}

type fakePublisher struct {
	errs     map[string]error
	requests []publish.Request
	onCall   func(id string)
}

func (f *fakePublisher) Publish(_ context.Context, req publish.Request) (publish.Result, error) {
	f.requests = append(f.requests, req)
	if f.onCall != nil {
		f.onCall(req.ItemID)
	}
	if err := f.errs[req.ItemID]; err != nil {
		return publish.Result{}, err
	}
	return publish.Result{ID: "pub-" + req.ItemID}, nil
}

func (f *fakePublisher) ids() []string {
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.ItemID)
	}
	return out
}

type harness struct {
	coord  *Coordinator
	acq    *fakeAcquirer
	trans  *fakeTransformer
	pub    *fakePublisher
	store  *progress.LedgerStore
	area   staging.Area
	ledger string
	sleeps []time.Duration
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	base := t.TempDir()
	area := staging.New(filepath.Join(base, "raw"), filepath.Join(base, "out"))
	if err := area.Ensure(); err != nil {
		t.Fatalf("ensure staging: %v", err)
	}
	h := &harness{
		acq:    &fakeAcquirer{area: area, errs: map[string]error{}},
		trans:  &fakeTransformer{err: map[string]error{}},
		pub:    &fakePublisher{errs: map[string]error{}},
		area:   area,
		ledger: filepath.Join(base, "ledger.txt"),
	}
	h.store = progress.NewLedgerStore(h.ledger)
	if opts.Visibility == "" {
		opts.Visibility = "public"
	}
	h.coord = New(h.acq, h.trans, h.pub, h.store, area, opts, logging.NewNop())
	h.coord.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

func (h *harness) assertStagingEmpty(t *testing.T) {
	t.Helper()
	entries, err := h.area.List()
	if err != nil {
		t.Fatalf("list staging: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("staging not empty: %+v", entries)
	}
}

func items(ids ...string) []catalog.Item {
	out := make([]catalog.Item, 0, len(ids))
	for i, id := range ids {
		out = append(out, catalog.Item{ID: id, SourceURL: catalog.WatchURL(id), Title: "title " + id, DiscoveryOrder: i})
	}
	return out
}

func TestScenarioOldestSingleItem(t *testing.T) {
	h := newHarness(t, Options{})
	cat := []catalog.Item{
		{ID: "a1", Kind: catalog.KindPrimary, SourceURL: catalog.WatchURL("a1")},
		{ID: "b2", Kind: catalog.KindShort, SourceURL: catalog.WatchURL("b2"), DiscoveryOrder: 1},
	}
	completed := progress.NewSet()

	res := h.coord.RunBatch(context.Background(), cat, completed, 1, "oldest")

	if strings.Join(h.acq.calls, ",") != "b2" {
		t.Fatalf("acquired %v, want [b2]", h.acq.calls)
	}
	if len(h.pub.requests) != 1 {
		t.Fatalf("publishes = %d, want 1", len(h.pub.requests))
	}
	if res.Succeeded != 1 || res.Failed != 0 || res.Pending != 1 {
		t.Fatalf("result = %+v", res)
	}
	if !completed.Has("b2") || completed.Has("a1") {
		t.Fatalf("completed = %v", completed.Sorted())
	}
	if got := testsupport.ReadLedgerLines(t, h.ledger); strings.Join(got, ",") != "b2" {
		t.Fatalf("ledger = %v", got)
	}
	if h.trans.orientations["b2"] != transform.Portrait {
		t.Fatalf("short rendered as %v", h.trans.orientations["b2"])
	}
	req := h.pub.requests[0]
	if !strings.HasSuffix(req.Title, "#Shorts") {
		t.Fatalf("short title = %q", req.Title)
	}
	if ids := progress.ExtractMarkers(req.Description); len(ids) != 1 || ids[0] != "b2" {
		t.Fatalf("marker missing from description %q", req.Description)
	}
	if req.Visibility != "public" {
		t.Fatalf("visibility = %q", req.Visibility)
	}
	h.assertStagingEmpty(t)
}

func TestOldestOrderTakesFromTheEnd(t *testing.T) {
	h := newHarness(t, Options{})
	h.coord.RunBatch(context.Background(), items("v1", "v2", "v3"), progress.NewSet(), 2, "oldest")
	if got := strings.Join(h.pub.ids(), ","); got != "v3,v2" {
		t.Fatalf("processed %s, want v3,v2", got)
	}
}

func TestNewestOrderKeepsListingOrder(t *testing.T) {
	h := newHarness(t, Options{})
	h.coord.RunBatch(context.Background(), items("v1", "v2", "v3"), progress.NewSet("v1"), 5, "newest")
	if got := strings.Join(h.pub.ids(), ","); got != "v2,v3" {
		t.Fatalf("processed %s, want v2,v3", got)
	}
}

func TestSecondBatchPublishesNothing(t *testing.T) {
	h := newHarness(t, Options{})
	cat := items("a", "b", "c")

	first := h.coord.RunBatch(context.Background(), cat, progress.NewSet(), 10, "oldest")
	if first.Succeeded != 3 {
		t.Fatalf("first = %+v", first)
	}

	completed, err := h.store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := len(h.pub.requests)
	second := h.coord.RunBatch(context.Background(), cat, completed, 10, "oldest")
	if len(h.pub.requests) != before {
		t.Fatalf("second batch published %d items", len(h.pub.requests)-before)
	}
	if second.Succeeded != 0 || second.Pending != 0 || len(second.Items) != 0 {
		t.Fatalf("second = %+v", second)
	}
}

func TestExhaustedAcquisitionCountsAsFailure(t *testing.T) {
	h := newHarness(t, Options{})
	h.acq.errs["gone"] = &acquisition.ExhaustedError{ItemID: "gone", Permanent: true}

	res := h.coord.RunBatch(context.Background(), items("gone", "ok"), progress.NewSet(), 2, "newest")

	if res.Failed != 1 || res.Succeeded != 1 || res.Skipped != 0 {
		t.Fatalf("result = %+v", res)
	}
	failed := res.Items[0]
	if failed.Status != StatusFailed || failed.Stage != StageAcquire || failed.FailureClass != services.ClassPermanent {
		t.Fatalf("failed item = %+v", failed)
	}
	if res.Pending != 1 {
		t.Fatalf("pending = %d, want 1", res.Pending)
	}
	if got := strings.Join(h.pub.ids(), ","); got != "ok" {
		t.Fatalf("published %s", got)
	}
}

func TestQuotaStopsBatchCleanly(t *testing.T) {
	h := newHarness(t, Options{})
	h.pub.errs["i2"] = &publish.QuotaError{Reason: "uploadLimitExceeded"}

	res := h.coord.RunBatch(context.Background(), items("i1", "i2", "i3"), progress.NewSet(), 3, "newest")

	if res.Succeeded != 1 || res.Failed != 0 || !res.AbortedForQuota {
		t.Fatalf("result = %+v", res)
	}
	if strings.Join(h.acq.calls, ",") != "i1,i2" {
		t.Fatalf("acquired %v; i3 must not be attempted", h.acq.calls)
	}
	if got := testsupport.ReadLedgerLines(t, h.ledger); strings.Join(got, ",") != "i1" {
		t.Fatalf("ledger = %v", got)
	}
	if res.Items[1].Status != StatusQuota {
		t.Fatalf("item 2 status = %s", res.Items[1].Status)
	}
	h.assertStagingEmpty(t)
}

func TestStageFailureCleansUpAndContinues(t *testing.T) {
	h := newHarness(t, Options{})
	h.trans.err["bad"] = services.Wrap(services.ErrExternalTool, "transform", "ffmpeg", "exit 1", nil)
	h.pub.errs["late"] = services.Wrap(services.ErrValidation, "publish", "upload", "rejected with 400", nil)

	res := h.coord.RunBatch(context.Background(), items("bad", "late", "good"), progress.NewSet(), 3, "newest")

	if res.Failed != 2 || res.Succeeded != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Items[0].Stage != StageTransform || res.Items[1].Stage != StagePublish {
		t.Fatalf("stages = %s, %s", res.Items[0].Stage, res.Items[1].Stage)
	}
	if got := testsupport.ReadLedgerLines(t, h.ledger); strings.Join(got, ",") != "good" {
		t.Fatalf("ledger = %v", got)
	}
	h.assertStagingEmpty(t)
}

func TestDelayOnlyAfterSuccessWithMoreToCome(t *testing.T) {
	h := newHarness(t, Options{DelayMin: 10 * time.Second, DelayMax: 20 * time.Second})
	h.coord.jitter = func(n int64) int64 {
		if n != int64(10*time.Second)+1 {
			t.Fatalf("jitter range = %d", n)
		}
		return int64(5 * time.Second)
	}
	h.acq.errs["x2"] = errors.New("boom")

	h.coord.RunBatch(context.Background(), items("x1", "x2", "x3", "x4"), progress.NewSet(), 4, "newest")

	// x1 succeeds then waits, x2 fails without waiting, x3 waits, x4 is last.
	if len(h.sleeps) != 2 {
		t.Fatalf("sleeps = %v, want 2", h.sleeps)
	}
	for _, d := range h.sleeps {
		if d != 15*time.Second {
			t.Fatalf("delay = %v, want 15s", d)
		}
	}
}

func TestCancellationStopsBetweenItems(t *testing.T) {
	h := newHarness(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.pub.onCall = func(id string) {
		if id == "c1" {
			cancel()
		}
	}

	res := h.coord.RunBatch(ctx, items("c1", "c2"), progress.NewSet(), 2, "newest")

	if !res.Canceled {
		t.Fatalf("result = %+v", res)
	}
	if strings.Join(h.acq.calls, ",") != "c1" {
		t.Fatalf("acquired %v", h.acq.calls)
	}
	// c1 published before the cancel landed, so its commit still happens.
	if got := testsupport.ReadLedgerLines(t, h.ledger); strings.Join(got, ",") != "c1" {
		t.Fatalf("ledger = %v", got)
	}
	h.assertStagingEmpty(t)
}

func TestCanceledAcquisitionIsNotAFailure(t *testing.T) {
	h := newHarness(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.acq.errs["z"] = context.Canceled

	res := h.coord.RunBatch(ctx, items("z"), progress.NewSet(), 1, "newest")
	if res.Failed != 0 || !res.Canceled || len(h.acq.calls) != 0 {
		t.Fatalf("result = %+v calls=%v", res, h.acq.calls)
	}
}

func TestDuplicateCatalogEntriesAreSkipped(t *testing.T) {
	h := newHarness(t, Options{})
	cat := append(items("d1"), catalog.Item{ID: "d1", SourceURL: catalog.WatchURL("d1")})

	res := h.coord.RunBatch(context.Background(), cat, progress.NewSet(), 2, "newest")
	if res.Succeeded != 1 || res.Skipped != 1 || len(h.pub.requests) != 1 {
		t.Fatalf("result = %+v", res)
	}
}

func TestMeasuredShortUsesPortraitAndListingShortStaysShort(t *testing.T) {
	h := newHarness(t, Options{})
	h.acq.kinds = map[string]catalog.Kind{"wide": catalog.KindPrimary, "tall": catalog.KindShort}
	cat := []catalog.Item{
		{ID: "wide", Kind: catalog.KindShort},
		{ID: "tall", Kind: catalog.KindPrimary},
	}

	h.coord.RunBatch(context.Background(), cat, progress.NewSet(), 2, "newest")

	if h.trans.orientations["wide"] != transform.Portrait {
		t.Fatalf("listing short rendered %v", h.trans.orientations["wide"])
	}
	if h.trans.orientations["tall"] != transform.Portrait {
		t.Fatalf("measured short rendered %v", h.trans.orientations["tall"])
	}
}

func TestDryRunDoesNotCommit(t *testing.T) {
	h := newHarness(t, Options{DryRun: true})
	completed := progress.NewSet()

	res := h.coord.RunBatch(context.Background(), items("r1"), completed, 1, "newest")

	if res.Succeeded != 1 || res.Pending != 1 {
		t.Fatalf("result = %+v", res)
	}
	if completed.Has("r1") {
		t.Fatalf("dry run added to completed set")
	}
	if got := testsupport.ReadLedgerLines(t, h.ledger); len(got) != 0 {
		t.Fatalf("ledger = %v", got)
	}
}

func TestPlan(t *testing.T) {
	got := Plan(items("a", "b", "c", "d"), progress.NewSet("b"), 2, "oldest")
	ids := make([]string, 0, len(got))
	for _, it := range got {
		ids = append(ids, it.ID)
	}
	if strings.Join(ids, ",") != "d,c" {
		t.Fatalf("plan = %v", ids)
	}
}
