package host

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/site"
)

type fakeStore struct {
	mu       sync.Mutex
	bindings map[string]*site.Record
	slugs    map[string]*site.Record
	calls    atomic.Int64
	fail     error
	gate     chan struct{}
}

func newFake() *fakeStore {
	return &fakeStore{bindings: map[string]*site.Record{}, slugs: map[string]*site.Record{}}
}

func (f *fakeStore) ByHostname(_ context.Context, h string) (*site.Record, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	if rec, ok := f.bindings[h]; ok {
		return rec, nil
	}
	return nil, apperr.NotFound("site", h)
}

func (f *fakeStore) BySlug(_ context.Context, slug string) (*site.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.slugs[slug]; ok {
		return rec, nil
	}
	return nil, apperr.NotFound("site", slug)
}

func (f *fakeStore) bind(h string, rec *site.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bindings[h] = rec
}

var (
	siteA = &site.Record{ID: 1, Slug: "alpha"}
	siteB = &site.Record{ID: 2, Slug: "shop"}
)

func newResolver(store Lookup) *Resolver {
	return New(store, Options{PlatformDomain: "sitepress.app"}, zap.NewNop().Sugar())
}

func TestResolve_PrecedenceAndFallback(t *testing.T) {
	store := newFake()
	store.slugs["alpha"] = siteA
	store.slugs["shop"] = siteB
	// Site A binds a hostname whose first label equals site B's slug, and
	// even a platform subdomain that spells site B's slug.
	store.bindings["shop.example.com"] = siteA
	store.bindings["shop.sitepress.app"] = siteA

	r := newResolver(store)
	ctx := context.Background()

	cases := []struct {
		host string
		want *site.Record
	}{
		{"shop.example.com", siteA},
		{"SHOP.sitepress.app:443", siteA},
		{"alpha.sitepress.app", siteA},
		{"alpha.sitepress.app.", siteA},
	}
	for _, tc := range cases {
		got, err := r.Resolve(ctx, tc.host)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tc.host, err)
		}
		if got.ID != tc.want.ID {
			t.Errorf("Resolve(%q) = site %d, want %d", tc.host, got.ID, tc.want.ID)
		}
	}

	absent := []string{
		"sitepress.app",            // bare platform domain
		"a.b.sitepress.app",        // multi-label prefix
		"nobody.sitepress.app",     // unknown slug
		"marketing.example.org",    // unbound custom host
		"alpha.sitepress.app.evil", // suffix must be exact
		"",
	}
	for _, h := range absent {
		if _, err := r.Resolve(ctx, h); !apperr.IsNotFound(err) {
			t.Errorf("Resolve(%q) err = %v, want NotFoundError", h, err)
		}
	}
}

func TestResolve_CachesAndInvalidates(t *testing.T) {
	store := newFake()
	r := newResolver(store)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "www.acme.com"); !apperr.IsNotFound(err) {
		t.Fatalf("unbound host err = %v", err)
	}
	if _, err := r.Resolve(ctx, "www.acme.com"); !apperr.IsNotFound(err) {
		t.Fatalf("cached negative err = %v", err)
	}
	if n := store.calls.Load(); n != 1 {
		t.Fatalf("store hit %d times, negative entry not cached", n)
	}

	store.bind("www.acme.com", siteA)
	r.Invalidate("WWW.ACME.COM")

	got, err := r.Resolve(ctx, "www.acme.com")
	if err != nil || got.ID != siteA.ID {
		t.Fatalf("after bind: %+v, %v", got, err)
	}
	if n := store.calls.Load(); n != 2 {
		t.Fatalf("store calls = %d, want 2", n)
	}
}

func TestResolve_InactiveSitesAreAbsent(t *testing.T) {
	gone := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	store := newFake()
	store.bindings["www.closed.com"] = &site.Record{ID: 3, Slug: "closed", SuspendedAt: &gone}
	store.slugs["old"] = &site.Record{ID: 4, Slug: "old", DeletedAt: &gone}
	r := newResolver(store)

	for _, h := range []string{"www.closed.com", "old.sitepress.app"} {
		if _, err := r.Resolve(context.Background(), h); !apperr.IsNotFound(err) {
			t.Errorf("Resolve(%q) err = %v, want NotFoundError", h, err)
		}
	}
}

// heldStore answers "unbound" but holds the answer until released, so an
// Invalidate can land while the load is in flight.
type heldStore struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int64
}

func (h *heldStore) ByHostname(_ context.Context, host string) (*site.Record, error) {
	if h.calls.Add(1) == 1 {
		close(h.entered)
		<-h.release
	}
	return nil, apperr.NotFound("site", host)
}

func (h *heldStore) BySlug(_ context.Context, slug string) (*site.Record, error) {
	return nil, apperr.NotFound("site", slug)
}

func TestInvalidate_DuringLoadDropsStaleAnswer(t *testing.T) {
	store := &heldStore{entered: make(chan struct{}), release: make(chan struct{})}
	r := newResolver(store)

	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve(context.Background(), "www.acme.com")
		done <- err
	}()

	<-store.entered
	r.Invalidate("www.acme.com") // binding created while the lookup runs
	close(store.release)
	if err := <-done; !apperr.IsNotFound(err) {
		t.Fatalf("in-flight answer err = %v", err)
	}

	if r.Len() != 0 {
		t.Fatal("pre-invalidation negative answer was cached")
	}
	r.Resolve(context.Background(), "www.acme.com")
	if n := store.calls.Load(); n != 2 {
		t.Fatalf("store calls = %d, want a fresh load after invalidation", n)
	}
}

func TestResolve_StoreErrorsAreNotCached(t *testing.T) {
	store := newFake()
	store.fail = errors.New("connection refused")
	r := newResolver(store)

	if _, err := r.Resolve(context.Background(), "www.acme.com"); err == nil || apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want store error", err)
	}
	if r.Len() != 0 {
		t.Fatal("store error was cached")
	}
}

func TestResolve_SingleflightCollapsesLoads(t *testing.T) {
	store := newFake()
	store.bindings["www.acme.com"] = siteA
	store.gate = make(chan struct{})
	r := newResolver(store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(context.Background(), "www.acme.com"); err != nil {
				t.Errorf("Resolve: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	if n := store.calls.Load(); n != 1 {
		t.Fatalf("store called %d times, want 1", n)
	}
}

func TestEvict_TTLIdleAndLRU(t *testing.T) {
	store := newFake()
	for _, h := range []string{"a.example.com", "b.example.com", "c.example.com"} {
		store.bindings[h] = siteA
	}
	r := New(store, Options{
		TTL:         time.Hour,
		NegativeTTL: time.Minute,
		IdleTTL:     10 * time.Minute,
		MaxEntries:  3,
	}, zap.NewNop().Sugar())

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	ctx := context.Background()

	r.Resolve(ctx, "a.example.com")
	now = now.Add(time.Second)
	r.Resolve(ctx, "b.example.com")
	now = now.Add(time.Second)
	r.Resolve(ctx, "c.example.com")
	r.Resolve(ctx, "missing.example.com") // negative

	if n := r.evict(); n != 1 {
		t.Fatalf("LRU pass evicted %d, want 1", n)
	}
	if _, ok := r.m.Load("a.example.com"); ok {
		t.Fatal("least recently used entry survived")
	}

	now = now.Add(2 * time.Minute)
	if n := r.evict(); n != 1 {
		t.Fatalf("negative TTL pass evicted %d, want 1", n)
	}

	now = now.Add(20 * time.Minute)
	if n := r.evict(); n != 2 {
		t.Fatalf("idle pass evicted %d, want 2", n)
	}
	if r.Len() != 0 {
		t.Fatalf("%d entries remain", r.Len())
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	r := New(newFake(), Options{EvictInterval: time.Millisecond}, zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
