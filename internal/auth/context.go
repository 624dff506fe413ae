// internal/auth/context.go
//
// Editor principal carried in the request context.
//
// Context
// -------
// Authentication happens upstream.  The gateway in front of the editor API
// verifies the session and forwards two headers, `X-Workspace-ID` and
// `X-User-ID`.  `Gateway` turns them into a `Principal` on the context;
// everything below the API layer reads the workspace from there and never
// from the request body.
//
// Usage
// -----
//
//	r.Use(auth.Gateway)
//
//	p, ok := auth.FromContext(ctx)   // {WorkspaceID: 3, UserID: 17}, true
//
// Notes
// -----
// • Missing or malformed headers yield 401 with a JSON body and no-store.
// • Oxford commas, two spaces after periods.
package auth

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// Header names set by the gateway.
const (
	HeaderWorkspace = "X-Workspace-ID"
	HeaderUser      = "X-User-ID"
)

// Principal identifies the caller of an editor request.
type Principal struct {
	WorkspaceID uint64
	UserID      uint64
}

// principalKey is unexported to avoid context-key collisions.
type principalKey struct{}

// WithPrincipal returns a new context carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext extracts the principal.  It returns false if none is set.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// UserID is a shorthand for handlers that only need the author id.
func UserID(ctx context.Context) (uint64, bool) {
	p, ok := FromContext(ctx)
	return p.UserID, ok
}

// Gateway reads the principal headers and rejects the request with 401
// when either is missing, zero, or not a number.
func Gateway(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, okWS := parseID(r.Header.Get(HeaderWorkspace))
		user, okUser := parseID(r.Header.Get(HeaderUser))
		if !okWS || !okUser {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthenticated"}`))
			return
		}
		ctx := WithPrincipal(r.Context(), Principal{WorkspaceID: ws, UserID: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func parseID(s string) (uint64, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
