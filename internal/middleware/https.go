// Package middleware holds small, composable HTTP wrappers shared by the
// public and editor servers.
package middleware

import (
	"context"
	"net/http"

	"github.com/yanizio/sitepress/internal/site"
)

// Resolver is the slice of host.Resolver that ForceHTTPS needs.
type Resolver interface {
	Resolve(ctx context.Context, hostname string) (*site.Record, error)
}

// ForceHTTPS wraps h.  If the request is plain HTTP, the host is not
// “localhost”, and the resolver knows the host, the wrapper issues a 308
// Permanent Redirect to the HTTPS version of the same URL.  Otherwise it
// calls the next handler unchanged.  A request that arrived over TLS at a
// terminating proxy is recognised by `X-Forwarded-Proto: https`.
func ForceHTTPS(res Resolver, h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := site.CanonicalHost(r.Host)

		// Already HTTPS or dev host → continue.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" || host == "localhost" {
			h.ServeHTTP(w, r)
			return
		}

		// Only redirect if the host maps to a live site.
		if _, err := res.Resolve(r.Context(), host); err == nil {
			target := "https://" + r.Host + r.URL.RequestURI()
			http.Redirect(w, r, target, http.StatusPermanentRedirect)
			return
		}

		// Unknown host → keep normal flow (likely 404 later).
		h.ServeHTTP(w, r)
	})
}
