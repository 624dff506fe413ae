package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/sitepress/internal/auth"
)

func newTestLimiter(t *testing.T, opts ...Option) *Limiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	all := append([]Option{WithRate(1, 3), WithTTL(time.Hour), WithLogger(zap.NewNop().Sugar())}, opts...)
	return New(ctx, all...)
}

func TestAllow_BurstThenRejectPerWorkspace(t *testing.T) {
	l := newTestLimiter(t)
	for i := 0; i < 3; i++ {
		if !l.Allow(1) {
			t.Fatalf("request %d denied within burst", i+1)
		}
	}
	if l.Allow(1) {
		t.Fatal("request beyond burst allowed")
	}
	if !l.Allow(2) {
		t.Fatal("workspace 2 shares workspace 1's bucket")
	}
}

func TestSweep_EvictsIdleBuckets(t *testing.T) {
	l := newTestLimiter(t, WithTTL(time.Minute))
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow(1)
	now = now.Add(30 * time.Second)
	l.Allow(2)
	now = now.Add(45 * time.Second)
	l.sweep()

	if l.Len() != 1 {
		t.Fatalf("%d buckets remain, want 1", l.Len())
	}
}

func TestMiddleware(t *testing.T) {
	l := newTestLimiter(t, WithRate(1, 1))
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/pages", nil)
		req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{WorkspaceID: 9, UserID: 1}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	if c := do(); c != http.StatusOK {
		t.Fatalf("first = %d", c)
	}
	if c := do(); c != http.StatusTooManyRequests {
		t.Fatalf("second = %d, want 429", c)
	}
}
