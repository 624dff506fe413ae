// internal/api/api.go
//
// Editor HTTP surface, mounted under /api/v1.
//
// Context
// -------
// Every route requires the gateway principal (auth.Gateway) and answers
// with `Cache-Control: no-store`.  Mutating routes additionally pass the
// per-workspace rate limiter.  Handlers never trust a workspace id from
// the body or path; the scope always comes from the principal, and
// entities outside it are reported as 404.
//
// Error mapping: ValidationError 400, NotFoundError 404, ConflictError
// 409, rate limited 429, anything else 500 with a generic body.
//
// Notes
// -----
//   - Oxford commas, two spaces after periods.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/yanizio/sitepress/internal/auth"
	"github.com/yanizio/sitepress/internal/cachectl"
	"github.com/yanizio/sitepress/internal/content"
	"github.com/yanizio/sitepress/internal/publish"
)

// Config wires the API to its collaborators.  Hosts, Purger, Limit, and
// Log are optional.
type Config struct {
	Pages         Units[content.PageMeta, content.PagePatch]
	PagePublisher Publisher[content.PageMeta]
	Items         Units[content.ItemMeta, content.ItemPatch]
	ItemPublisher Publisher[content.ItemMeta]
	Menus         Menus
	Domains       Domains
	Hosts         Hosts
	Purger        publish.Purger
	Limit         func(http.Handler) http.Handler
	Log           *zap.SugaredLogger
}

// API serves the editor endpoints.
type API struct {
	pages   *unitHandler[content.PageMeta, content.PagePatch]
	items   *unitHandler[content.ItemMeta, content.ItemPatch]
	menus   Menus
	domains Domains
	hosts   Hosts
	purger  publish.Purger
	limit   func(http.Handler) http.Handler
	log     *zap.SugaredLogger
}

// New builds the API.
func New(cfg Config) *API {
	a := &API{
		menus:   cfg.Menus,
		domains: cfg.Domains,
		hosts:   cfg.Hosts,
		purger:  cfg.Purger,
		limit:   cfg.Limit,
		log:     cfg.Log,
	}
	if a.log == nil {
		a.log = zap.S()
	}
	if a.limit == nil {
		a.limit = func(next http.Handler) http.Handler { return next }
	}
	a.pages = &unitHandler[content.PageMeta, content.PagePatch]{api: a, units: cfg.Pages, pub: cfg.PagePublisher}
	a.items = &unitHandler[content.ItemMeta, content.ItemPatch]{api: a, units: cfg.Items, pub: cfg.ItemPublisher}
	return a
}

// Routes returns the router to mount at /api/v1.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(noStore)
	r.Use(auth.Gateway)

	r.Route("/pages", func(r chi.Router) { a.pages.routes(r, a.limit) })
	r.Route("/items", func(r chi.Router) { a.items.routes(r, a.limit) })
	r.Route("/menus", func(r chi.Router) { a.menuRoutes(r, a.limit) })
	r.Route("/sites", func(r chi.Router) { a.domainRoutes(r, a.limit) })

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})
	return r
}

func noStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cachectl.SetNoStore(w)
		next.ServeHTTP(w, r)
	})
}
