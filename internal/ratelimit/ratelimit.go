// internal/ratelimit/ratelimit.go
//
// Per-workspace token-bucket limiter for editor writes.
//
// Context
// -------
// Each workspace gets its own golang.org/x/time/rate bucket, created on
// first use and evicted after `ttl` of inactivity by a background sweep.
// Reads are never limited; the middleware is mounted on mutating routes
// only.  State is process-local and not shared between replicas.
//
// Notes
// -----
//   - The first denial per bucket is logged once; every denial increments
//     `editor_rate_limited_total`.
//   - Oxford commas, two spaces after periods.
package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/yanizio/sitepress/internal/auth"
	"github.com/yanizio/sitepress/internal/metrics"
)

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	logged   bool
}

// Limiter holds one bucket per workspace.
type Limiter struct {
	mu      sync.Mutex
	buckets map[uint64]*bucket

	perSecond rate.Limit
	burst     int
	ttl       time.Duration
	log       *zap.SugaredLogger
	now       func() time.Time
}

// Option customises a Limiter.
type Option func(*Limiter)

// WithRate sets the refill rate and bucket size.
func WithRate(perSecond float64, burst int) Option {
	return func(l *Limiter) {
		l.perSecond = rate.Limit(perSecond)
		l.burst = burst
	}
}

// WithTTL controls how long an idle workspace keeps its bucket.
func WithTTL(d time.Duration) Option { return func(l *Limiter) { l.ttl = d } }

func WithLogger(log *zap.SugaredLogger) Option { return func(l *Limiter) { l.log = log } }

// New creates a Limiter and starts the cleanup goroutine, which stops when
// ctx is cancelled.
func New(ctx context.Context, opts ...Option) *Limiter {
	l := &Limiter{
		buckets:   make(map[uint64]*bucket),
		perSecond: 5,
		burst:     20,
		ttl:       10 * time.Minute,
		log:       zap.S(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	go l.cleanup(ctx)
	return l
}

// Allow reports whether workspaceID may perform one more write now.
func (l *Limiter) Allow(workspaceID uint64) bool {
	l.mu.Lock()
	b, ok := l.buckets[workspaceID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.perSecond, l.burst)}
		l.buckets[workspaceID] = b
	}
	b.lastSeen = l.now()
	allowed := b.limiter.Allow()
	first := !allowed && !b.logged
	if first {
		b.logged = true
	}
	l.mu.Unlock()

	if !allowed {
		metrics.RateLimitedTotal.Inc()
		if first {
			l.log.Warnw("editor writes rate limited", "workspace", workspaceID)
		}
	}
	return allowed
}

// Len reports the number of live buckets.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *Limiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep()
		}
	}
}

func (l *Limiter) sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, id)
		}
	}
}

// Middleware rejects requests over the caller's workspace budget with 429.
// It must run after auth.Gateway; requests without a principal pass
// through untouched.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.FromContext(r.Context())
		if ok && !l.Allow(p.WorkspaceID) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"too many requests"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}
