// internal/host/resolver.go
//
// Hostname → Site resolution with a read-through cache.
//
// Context
// -------
// Every public request starts here.  Resolution order (first match wins):
//
//  1. Exact domain binding.  Custom domains always beat the platform
//     subdomain scheme, even when a bound hostname's first label equals
//     another site's slug.
//  2. `<slug>.<platform-domain>` with a single-label slug.
//  3. Absent (apperr.NotFoundError).  The caller treats this as "not a
//     tenant request".
//
// The answer depends only on persisted bindings and slugs, so it is cached
// aggressively.  Bindings changes call Invalidate; everything else ages out.
//
// Workflow
// --------
//   - Resolve checks the sync.Map first.  A fresh entry (positive or
//     negative) is returned and its lastSeen bumped.
//   - On a miss, singleflight collapses concurrent loads of the same host
//     into one store round-trip.
//   - Run drives the evictor (see evictor.go) until its context ends.
//
// Notes
// -----
//   - Store errors are returned and never cached.
//   - Suspended or deleted sites resolve as absent.
//   - Invalidate bumps an epoch under the same lock a load takes to store
//     its answer.  A load that started before the bump drops its result
//     instead of caching a pre-invalidation answer.
//   - Oxford commas, two spaces after periods.
package host

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/metrics"
	"github.com/yanizio/sitepress/internal/site"
)

// Lookup is the persisted side of resolution.  *site.Store satisfies it.
type Lookup interface {
	ByHostname(ctx context.Context, hostname string) (*site.Record, error)
	BySlug(ctx context.Context, slug string) (*site.Record, error)
}

// Options tunes the cache.  Zero values take the defaults below.
type Options struct {
	PlatformDomain string        // e.g. "sitepress.app"
	TTL            time.Duration // max age of a positive entry
	NegativeTTL    time.Duration // max age of an "absent" entry
	IdleTTL        time.Duration // evict after this long without a hit
	MaxEntries     int           // LRU pressure threshold
	EvictInterval  time.Duration
	LoadTimeout    time.Duration
}

// Static defaults.
const (
	DefaultTTL           = 5 * time.Minute
	DefaultNegativeTTL   = 30 * time.Second
	DefaultIdleTTL       = 30 * time.Minute
	DefaultMaxEntries    = 10000
	DefaultEvictInterval = time.Minute
	DefaultLoadTimeout   = 5 * time.Second
)

func (o *Options) defaults() {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.NegativeTTL <= 0 {
		o.NegativeTTL = DefaultNegativeTTL
	}
	if o.IdleTTL <= 0 {
		o.IdleTTL = DefaultIdleTTL
	}
	if o.MaxEntries <= 0 {
		o.MaxEntries = DefaultMaxEntries
	}
	if o.EvictInterval <= 0 {
		o.EvictInterval = DefaultEvictInterval
	}
	if o.LoadTimeout <= 0 {
		o.LoadTimeout = DefaultLoadTimeout
	}
	o.PlatformDomain = site.CanonicalHost(o.PlatformDomain)
}

type entry struct {
	site     *site.Record // nil caches "absent"
	loadedAt int64        // UnixNano
	lastSeen int64        // UnixNano, atomic
}

// Resolver maps hostnames to sites.  Safe for concurrent use.
type Resolver struct {
	store Lookup
	opts  Options
	log   *zap.SugaredLogger
	now   func() time.Time

	sfg singleflight.Group
	m   sync.Map // canonical host → *entry

	mu    sync.Mutex // orders Invalidate against storing loads
	epoch uint64
}

// New returns a Resolver.  Call Run to start eviction.
func New(store Lookup, opts Options, log *zap.SugaredLogger) *Resolver {
	opts.defaults()
	if log == nil {
		log = zap.S()
	}
	return &Resolver{store: store, opts: opts, log: log, now: time.Now}
}

// Normalize lower-cases h and strips any port and trailing dot.
func Normalize(h string) string { return site.CanonicalHost(h) }

// IsPlatformHost reports whether h is the platform domain or one of its
// subdomains.
func (r *Resolver) IsPlatformHost(h string) bool {
	d := r.opts.PlatformDomain
	if d == "" {
		return false
	}
	h = Normalize(h)
	return h == d || strings.HasSuffix(h, "."+d)
}

// Resolve returns the active site serving hostname.
func (r *Resolver) Resolve(ctx context.Context, hostname string) (*site.Record, error) {
	host := Normalize(hostname)
	if host == "" {
		return nil, apperr.NotFound("host", hostname)
	}

	if ent, ok := r.fresh(host); ok {
		metrics.HostResolveTotal.WithLabelValues("cache", outcome(ent.site)).Inc()
		return answer(host, ent.site)
	}

	v, err, _ := r.sfg.Do(host, func() (any, error) {
		// Double-check after singleflight barrier.
		if ent, ok := r.fresh(host); ok {
			return ent, nil
		}

		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.LoadTimeout)
		defer cancel()

		r.mu.Lock()
		epoch := r.epoch
		r.mu.Unlock()

		rec, err := r.load(lctx, host)
		if err != nil && !apperr.IsNotFound(err) {
			metrics.HostResolveTotal.WithLabelValues("store", "error").Inc()
			return nil, err
		}
		now := r.now().UnixNano()
		ent := &entry{site: rec, loadedAt: now, lastSeen: now}
		r.remember(host, ent, epoch)
		metrics.HostResolveTotal.WithLabelValues("store", outcome(rec)).Inc()
		return ent, nil
	})
	if err != nil {
		r.log.Warnw("host resolve failed", "host", host, "err", err)
		return nil, err
	}
	return answer(host, v.(*entry).site)
}

// remember caches ent unless an Invalidate ran since the load read epoch.
func (r *Resolver) remember(host string, ent *entry, epoch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.epoch != epoch {
		r.log.Debugw("host load superseded by invalidation", "host", host)
		return
	}
	if _, loaded := r.m.Swap(host, ent); !loaded {
		metrics.HostCacheEntries.Inc()
	}
}

// load applies the precedence rules against the store, uncached.
func (r *Resolver) load(ctx context.Context, host string) (*site.Record, error) {
	rec, err := r.store.ByHostname(ctx, host)
	if err == nil {
		return active(host, rec)
	}
	if !apperr.IsNotFound(err) {
		return nil, err
	}

	if d := r.opts.PlatformDomain; d != "" && strings.HasSuffix(host, "."+d) {
		label := strings.TrimSuffix(host, "."+d)
		if label != "" && !strings.Contains(label, ".") {
			rec, err := r.store.BySlug(ctx, label)
			if err != nil {
				return nil, err
			}
			return active(host, rec)
		}
	}
	return nil, apperr.NotFound("host", host)
}

func active(host string, rec *site.Record) (*site.Record, error) {
	if !rec.Active() {
		return nil, apperr.NotFound("host", host)
	}
	return rec, nil
}

// fresh returns the cached entry for host when it has not outlived its TTL.
// Stale entries are dropped.
func (r *Resolver) fresh(host string) (*entry, bool) {
	v, ok := r.m.Load(host)
	if !ok {
		return nil, false
	}
	ent := v.(*entry)
	now := r.now().UnixNano()
	ttl := r.opts.TTL
	if ent.site == nil {
		ttl = r.opts.NegativeTTL
	}
	if time.Duration(now-ent.loadedAt) > ttl {
		if r.m.CompareAndDelete(host, ent) {
			metrics.HostCacheEntries.Dec()
		}
		return nil, false
	}
	atomic.StoreInt64(&ent.lastSeen, now)
	return ent, true
}

// Invalidate drops hostname from the cache.  Call it after a binding for
// hostname is created or deleted.
func (r *Resolver) Invalidate(hostname string) {
	host := Normalize(hostname)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	r.sfg.Forget(host)
	if _, ok := r.m.LoadAndDelete(host); ok {
		metrics.HostCacheEntries.Dec()
	}
}

// Len reports the number of cached hostnames, positive and negative.
func (r *Resolver) Len() int {
	n := 0
	r.m.Range(func(any, any) bool { n++; return true })
	return n
}

func answer(host string, rec *site.Record) (*site.Record, error) {
	if rec == nil {
		return nil, apperr.NotFound("host", host)
	}
	return rec, nil
}

func outcome(rec *site.Record) string {
	if rec == nil {
		return "absent"
	}
	return "hit"
}
