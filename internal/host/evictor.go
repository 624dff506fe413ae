// evictor.go houses the eviction loop for Resolver.  Every EvictInterval it
// scans the map and removes:
//
//   - entries older than their TTL (positive or negative)
//   - entries idle longer than IdleTTL
//   - least-recently-used entries when map size exceeds MaxEntries
//
// Each eviction updates Prometheus counters.
package host

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/yanizio/sitepress/internal/metrics"
)

// Run evicts on every tick until ctx is cancelled.
func (r *Resolver) Run(ctx context.Context) {
	t := time.NewTicker(r.opts.EvictInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.evict(); n > 0 {
				r.log.Debugw("host cache evicted", "count", n)
			}
		}
	}
}

// evict runs one idle pass and one LRU pass and returns the number of
// entries removed.
func (r *Resolver) evict() int {
	now := r.now().UnixNano()
	var count, removed int

	// ----------------------------------------------------------------
	// Idle and age pass
	// ----------------------------------------------------------------
	r.m.Range(func(key, value any) bool {
		ent := value.(*entry)
		ttl := r.opts.TTL
		if ent.site == nil {
			ttl = r.opts.NegativeTTL
		}
		idle := time.Duration(now - atomic.LoadInt64(&ent.lastSeen))
		age := time.Duration(now - ent.loadedAt)
		if idle > r.opts.IdleTTL || age > ttl {
			if r.m.CompareAndDelete(key, value) {
				removed++
				metrics.HostCacheEvictTotal.Inc()
				metrics.HostCacheEntries.Dec()
			}
			return true
		}
		count++
		return true
	})

	// ----------------------------------------------------------------
	// LRU pass
	// ----------------------------------------------------------------
	if r.opts.MaxEntries > 0 && count > r.opts.MaxEntries {
		type kv struct {
			key   string
			value *entry
			at    int64
		}
		var all []kv
		r.m.Range(func(key, value any) bool {
			ent := value.(*entry)
			all = append(all, kv{key: key.(string), value: ent, at: atomic.LoadInt64(&ent.lastSeen)})
			return true
		})
		sort.Slice(all, func(i, j int) bool { return all[i].at < all[j].at })
		for i := 0; i < len(all)-r.opts.MaxEntries; i++ {
			if r.m.CompareAndDelete(all[i].key, all[i].value) {
				removed++
				metrics.HostCacheEvictTotal.Inc()
				metrics.HostCacheEntries.Dec()
			}
		}
	}
	return removed
}
