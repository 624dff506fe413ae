// internal/cachectl/policy.go
//
// Response cache-control policy.
//
// Context
// -------
// Public content is served with a short positive freshness window plus a
// longer stale-while-revalidate window.  A publish therefore reaches some
// readers almost immediately and every reader within the stale window, even
// when no purge handler is configured.  Editor reads, previews, and every
// error response get `no-store`.
//
//	public   Cache-Control: public, max-age=60, stale-while-revalidate=300
//	private  Cache-Control: no-store
//
// Notes
// -----
//   - Policies are plain values; build once from config and share.
//   - Oxford commas, two spaces after periods.
package cachectl

import (
	"net/http"
	"strconv"
	"time"
)

// Kind selects a policy.
type Kind string

const (
	// Public is published content served to anonymous visitors.
	Public Kind = "public"
	// Private is editor, preview, and error traffic.
	Private Kind = "private"
)

// Default windows for public content.
const (
	DefaultMaxAge               = 60 * time.Second
	DefaultStaleWhileRevalidate = 300 * time.Second
)

// NoStore is the header value for anything that must never be cached.
const NoStore = "no-store"

// Policy is a resolved set of caching headers.
type Policy struct {
	CacheControl string
}

// Apply writes the policy onto h.  Private policies also drop any
// validators a handler may already have set.
func (p Policy) Apply(h http.Header) {
	h.Set("Cache-Control", p.CacheControl)
	if p.CacheControl == NoStore {
		h.Del("ETag")
		h.Del("Last-Modified")
	}
}

// Policies holds the configured freshness windows.
type Policies struct {
	MaxAge               time.Duration
	StaleWhileRevalidate time.Duration
}

// DefaultPolicies returns 60 s fresh and 300 s stale-while-revalidate.
func DefaultPolicies() Policies {
	return Policies{MaxAge: DefaultMaxAge, StaleWhileRevalidate: DefaultStaleWhileRevalidate}
}

// Headers returns the policy for k.  Unknown kinds fall back to Private.
func (p Policies) Headers(k Kind) Policy {
	if k != Public {
		return Policy{CacheControl: NoStore}
	}
	cc := "public, max-age=" + seconds(p.MaxAge)
	if p.StaleWhileRevalidate > 0 {
		cc += ", stale-while-revalidate=" + seconds(p.StaleWhileRevalidate)
	}
	return Policy{CacheControl: cc}
}

// SetNoStore marks w as uncacheable.
func SetNoStore(w http.ResponseWriter) {
	Policy{CacheControl: NoStore}.Apply(w.Header())
}

func seconds(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return strconv.FormatInt(int64(d/time.Second), 10)
}
