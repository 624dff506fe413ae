// Package metrics holds Prometheus instruments that are used across the
// pipeline.  All collectors are registered with the global registry, so
// mounting promhttp.Handler() on the admin server is enough to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RevisionsAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revisions_appended_total",
			Help: "Cumulative number of revisions appended, by unit kind.",
		}, []string{"kind"})

	RevisionsPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "revisions_pruned_total",
			Help: "Cumulative number of revisions removed by the history cap.",
		})

	RevisionPruneErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "revision_prune_errors_total",
			Help: "Cumulative number of prune attempts that failed and were deferred.",
		})

	PublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_total",
			Help: "Cumulative number of publish operations, by unit kind.",
		}, []string{"kind"})

	RollbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollback_total",
			Help: "Cumulative number of rollback operations, by unit kind.",
		}, []string{"kind"})

	PurgeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_purge_total",
			Help: "Purge handler invocations, by handler and result.",
		}, []string{"handler", "result"})

	PurgeDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_purge_dropped_total",
			Help: "Purge events dropped because the queue was full or closed.",
		})

	HostResolveTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "host_resolve_total",
			Help: "Host resolutions, by source (cache, store) and outcome.",
		}, []string{"source", "outcome"})

	HostCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "host_cache_entries",
			Help: "Number of hostnames currently held by the resolver cache.",
		})

	HostCacheEvictTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "host_cache_evict_total",
			Help: "Cumulative number of resolver cache evictions.",
		})

	PageViewsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "page_views_total",
			Help: "Public page renders, by device class and status.",
		}, []string{"device", "status"})

	RateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "editor_rate_limited_total",
			Help: "Editor write requests rejected by the per-workspace limiter.",
		})
)

func init() {
	prometheus.MustRegister(
		RevisionsAppendedTotal,
		RevisionsPrunedTotal,
		RevisionPruneErrorsTotal,
		PublishTotal,
		RollbackTotal,
		PurgeTotal,
		PurgeDroppedTotal,
		HostResolveTotal,
		HostCacheEntries,
		HostCacheEvictTotal,
		PageViewsTotal,
		RateLimitedTotal,
	)
}
