package trust

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"truce.ai/internal/persistence/docstore"
	"truce.ai/internal/sim/actors"
	"truce.ai/internal/sim/sched"
)

type fixture struct {
	clk   *sched.ManualClock
	q     *sched.Queue
	dir   *actors.Directory
	store *docstore.Memory
	logs  *observer.ObservedLogs
	g     *Graph
	notes map[actors.ID][]string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		clk:   sched.NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		dir:   actors.NewDirectory(),
		store: docstore.NewMemory(),
		notes: map[actors.ID][]string{},
	}
	f.q = sched.New(f.clk.Now)
	core, logs := observer.New(zapcore.DebugLevel)
	f.logs = logs
	f.g = New(Config{}, Deps{
		Sched:  f.q,
		Actors: f.dir,
		Notifier: actors.NotifyFunc(func(id actors.ID, _ string, text string) {
			f.notes[id] = append(f.notes[id], text)
		}),
		Saver: docstore.Direct{Store: f.store},
		Log:   zap.New(core),
	})
	return f
}

func (f *fixture) join(name string) actors.ID {
	id := uuid.New()
	f.dir.Join(id, name, actors.Location{World: "w"})
	return id
}

func (f *fixture) advance(d time.Duration) {
	f.q.RunDue(f.clk.Advance(d))
}

func (f *fixture) befriend(t *testing.T, a, b actors.ID) {
	t.Helper()
	if _, err := f.g.RequestTrust(a, b); err != nil {
		t.Fatalf("request %s->%s: %v", a, b, err)
	}
	if _, err := f.g.AcceptTrust(b); err != nil {
		t.Fatalf("accept: %v", err)
	}
}

func TestAcceptTrust_IsSymmetric(t *testing.T) {
	f := newFixture(t)
	a, b := f.join("alice"), f.join("bob")

	if f.g.IsTrusted(a, b) {
		t.Fatalf("strangers should not be trusted")
	}
	if mutual, err := f.g.RequestTrust(a, b); err != nil || mutual {
		t.Fatalf("RequestTrust: mutual=%v err=%v", mutual, err)
	}
	if _, ok := f.g.PendingFor(b); !ok {
		t.Fatalf("expected pending request for bob")
	}
	requester, err := f.g.AcceptTrust(b)
	if err != nil || requester != a {
		t.Fatalf("AcceptTrust: requester=%v err=%v", requester, err)
	}
	if !f.g.IsTrusted(a, b) || !f.g.IsTrusted(b, a) {
		t.Fatalf("trust must be symmetric after accept")
	}
	if f.g.PendingCount() != 0 || f.q.Len() != 0 {
		t.Fatalf("pending=%d tasks=%d, want 0/0", f.g.PendingCount(), f.q.Len())
	}
	if got := f.g.TrustedPeers(a); !cmp.Equal(got, []actors.ID{b}) {
		t.Fatalf("TrustedPeers(a) = %v", got)
	}
	if f.g.IsTrusted(a, a) {
		t.Fatalf("self is never trusted")
	}
}

func TestRequestTrust_PendingExclusivity(t *testing.T) {
	f := newFixture(t)
	a, b, x := f.join("a"), f.join("b"), f.join("x")

	if _, err := f.g.RequestTrust(a, x); err != nil {
		t.Fatalf("a->x: %v", err)
	}
	if _, err := f.g.RequestTrust(b, x); !errors.Is(err, ErrTargetBusy) {
		t.Fatalf("b->x while busy: got %v, want ErrTargetBusy", err)
	}
	if requester, err := f.g.DenyTrust(x); err != nil || requester != a {
		t.Fatalf("deny: requester=%v err=%v", requester, err)
	}
	if len(f.notes[a]) == 0 {
		t.Fatalf("requester should be told about the denial")
	}
	if _, err := f.g.RequestTrust(b, x); err != nil {
		t.Fatalf("b->x after deny: %v", err)
	}
	if f.g.IsTrusted(a, x) {
		t.Fatalf("denied request must not form trust")
	}
}

func TestRequestTrust_Validation(t *testing.T) {
	f := newFixture(t)
	a, b := f.join("a"), f.join("b")

	if _, err := f.g.RequestTrust(a, a); !errors.Is(err, ErrSelfTrust) {
		t.Fatalf("self: %v", err)
	}
	if _, err := f.g.RequestTrust(a, b); err != nil {
		t.Fatalf("a->b: %v", err)
	}
	if _, err := f.g.RequestTrust(a, b); !errors.Is(err, ErrDuplicatePending) {
		t.Fatalf("duplicate: %v", err)
	}
	if _, err := f.g.AcceptTrust(b); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := f.g.RequestTrust(b, a); !errors.Is(err, ErrAlreadyTrusted) {
		t.Fatalf("already trusted: %v", err)
	}
	if _, err := f.g.AcceptTrust(b); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("accept without request: %v", err)
	}
	if _, err := f.g.DenyTrust(b); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("deny without request: %v", err)
	}
}

func TestRequestTrust_Expires(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.join("a"), f.join("b"), f.join("c")

	if _, err := f.g.RequestTrust(a, b); err != nil {
		t.Fatalf("request: %v", err)
	}
	f.advance(59 * time.Second)
	if _, ok := f.g.PendingFor(b); !ok {
		t.Fatalf("request should still be pending at 59s")
	}
	f.advance(time.Second)
	if _, ok := f.g.PendingFor(b); ok || f.g.PendingCount() != 0 {
		t.Fatalf("request should have expired at 60s")
	}
	if _, err := f.g.AcceptTrust(b); !errors.Is(err, ErrNoPendingRequest) {
		t.Fatalf("accept after expiry: %v", err)
	}
	if _, err := f.g.RequestTrust(c, b); err != nil {
		t.Fatalf("target should be free after expiry: %v", err)
	}
	if f.logs.FilterMessage("trust request expired").Len() != 1 {
		t.Fatalf("expected one expiry log line")
	}
}

func TestRequestTrust_StaleExpiryDoesNotTouchNewRequest(t *testing.T) {
	f := newFixture(t)
	a, b := f.join("a"), f.join("b")

	_, _ = f.g.RequestTrust(a, b)
	f.advance(30 * time.Second)
	if _, err := f.g.DenyTrust(b); err != nil {
		t.Fatalf("deny: %v", err)
	}
	_, _ = f.g.RequestTrust(a, b)
	// The first request's expiry time passes; the second request must survive.
	f.advance(31 * time.Second)
	if p, ok := f.g.PendingFor(b); !ok || p.Requester != a {
		t.Fatalf("second request lost: %+v %v", p, ok)
	}
	f.advance(29 * time.Second)
	if _, ok := f.g.PendingFor(b); ok {
		t.Fatalf("second request should expire 60s after it was made")
	}
}

func TestAcceptTrust_RequesterGone(t *testing.T) {
	f := newFixture(t)
	a, b := f.join("a"), f.join("b")

	_, _ = f.g.RequestTrust(a, b)
	f.dir.Leave(a)
	if _, err := f.g.AcceptTrust(b); !errors.Is(err, ErrRequesterGone) {
		t.Fatalf("got %v, want ErrRequesterGone", err)
	}
	if f.g.PendingCount() != 0 || f.g.EdgeCount() != 0 {
		t.Fatalf("stale request must be discarded without edges")
	}
}

func TestRequestTrust_CrossedRequestsFormTrust(t *testing.T) {
	f := newFixture(t)
	a, b := f.join("a"), f.join("b")

	if _, err := f.g.RequestTrust(a, b); err != nil {
		t.Fatalf("a->b: %v", err)
	}
	mutual, err := f.g.RequestTrust(b, a)
	if err != nil || !mutual {
		t.Fatalf("b->a: mutual=%v err=%v", mutual, err)
	}
	if !f.g.IsTrusted(a, b) || f.g.PendingCount() != 0 || f.q.Len() != 0 {
		t.Fatalf("crossed requests should resolve into trust and clear pending state")
	}
}

func TestRemoveTrust(t *testing.T) {
	f := newFixture(t)
	a, b := f.join("a"), f.join("b")

	if err := f.g.RemoveTrust(a, b); !errors.Is(err, ErrNotTrusted) {
		t.Fatalf("remove strangers: %v", err)
	}
	f.befriend(t, a, b)
	if err := f.g.RemoveTrust(b, a); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if f.g.IsTrusted(a, b) || f.g.EdgeCount() != 0 {
		t.Fatalf("both edges should be gone")
	}
}

func TestForgetThenReconcile(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.join("a"), f.join("b"), f.join("c")
	f.befriend(t, a, b)
	f.befriend(t, b, c)

	if n := f.g.Forget(a); n != 1 {
		t.Fatalf("Forget = %d, want 1", n)
	}
	want := []Edge{{From: b, To: a}}
	if got := f.g.Asymmetries(); !cmp.Equal(got, want) {
		t.Fatalf("Asymmetries = %v, want %v", got, want)
	}
	// Detection does not mutate.
	if f.g.EdgeCount() != 3 {
		t.Fatalf("edge count changed by detection: %d", f.g.EdgeCount())
	}
	if f.g.IsTrusted(b, a) {
		t.Fatalf("one-sided edge must not count as trust")
	}
	if f.logs.FilterMessage("asymmetric trust edge").Len() == 0 {
		t.Fatalf("expected asymmetric edge warning")
	}

	if n := f.g.Reconcile(); n != 1 {
		t.Fatalf("Reconcile = %d, want 1", n)
	}
	if len(f.g.Asymmetries()) != 0 {
		t.Fatalf("asymmetries remain after reconcile")
	}
	if !f.g.IsTrusted(b, c) {
		t.Fatalf("reconcile must keep mutual edges")
	}
	if n := f.g.Reconcile(); n != 0 {
		t.Fatalf("second Reconcile = %d, want 0", n)
	}
}

func TestDropPendingFor(t *testing.T) {
	f := newFixture(t)
	a, b, c := f.join("a"), f.join("b"), f.join("c")
	_, _ = f.g.RequestTrust(a, b)
	_, _ = f.g.RequestTrust(c, a)

	if n := f.g.DropPendingFor(a); n != 2 {
		t.Fatalf("DropPendingFor = %d, want 2", n)
	}
	if f.g.PendingCount() != 0 || f.q.Len() != 0 {
		t.Fatalf("requests and their expiry tasks should be gone")
	}
}

func TestPersistAndLoad(t *testing.T) {
	f := newFixture(t)
	a, b := f.join("a"), f.join("b")
	f.befriend(t, a, b)

	g2 := New(Config{}, Deps{})
	edges, skipped, err := g2.Load(context.Background(), f.store)
	if err != nil || edges != 2 || skipped != 0 {
		t.Fatalf("Load: edges=%d skipped=%d err=%v", edges, skipped, err)
	}
	if !g2.IsTrusted(a, b) {
		t.Fatalf("trust not restored")
	}
}

func TestLoad_SkipsMalformed(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	store := docstore.NewMemory()
	doc := `{
	  "` + a.String() + `": ["` + b.String() + `", "not-a-uuid", 42, "` + a.String() + `"],
	  "` + b.String() + `": ["` + a.String() + `"],
	  "garbage": ["` + a.String() + `"],
	  "` + uuid.NewString() + `": "oops"
	}`
	_ = store.Put(context.Background(), docstore.DocTrust, []byte(doc))

	core, logs := observer.New(zapcore.WarnLevel)
	g := New(Config{}, Deps{Log: zap.New(core)})
	edges, skipped, err := g.Load(context.Background(), store)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if edges != 2 || skipped != 5 {
		t.Fatalf("edges=%d skipped=%d, want 2/5", edges, skipped)
	}
	if !g.IsTrusted(a, b) {
		t.Fatalf("valid edges should load")
	}
	if logs.Len() == 0 {
		t.Fatalf("expected warnings for malformed entries")
	}

	_ = store.Put(context.Background(), docstore.DocTrust, []byte(`["x"]`))
	if _, _, err := g.Load(context.Background(), store); err == nil {
		t.Fatalf("expected error for non-object document")
	}
}
