// internal/render/render.go
//
// Public render path: Host → site → path → published page.
//
// Context
// -------
// This is the only anonymous surface.  Visitors see exactly the snapshot
// stored on the page head by the last publish; drafts, history, and
// editor metadata never leave the process.
//
// Workflow
// --------
//  1. Resolve the Host header through host.Resolver.  Unknown hosts are
//     handed to the platform fallback (marketing site, default 404).
//  2. Map the path to a slug: "/" → index slug, "/about" → "about".
//  3. Serve the page from the in-process cache, or load the published
//     snapshot and assemble the view (SEO defaults, header and footer
//     navigation).
//  4. Write HTML, or JSON when the client asks for application/json, with
//     the public cache policy.
//
// Any failure after step 1 is a generic 404 with `no-store`; the cause is
// logged, never shown.
//
// Notes
// -----
//   - The page cache is purged through the cachectl.Invalidator (see
//     PurgeHandler) and entries also expire after the public max-age, so
//     menu and SEO edits that do not publish still show up.
//   - Oxford commas, two spaces after periods.
package render

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/cache"
	"github.com/yanizio/sitepress/internal/cachectl"
	"github.com/yanizio/sitepress/internal/content"
	"github.com/yanizio/sitepress/internal/menu"
	"github.com/yanizio/sitepress/internal/metrics"
	"github.com/yanizio/sitepress/internal/routing"
	"github.com/yanizio/sitepress/internal/site"
	"github.com/yanizio/sitepress/internal/ua"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTmpl = template.Must(template.ParseFS(templateFS, "templates/page.html"))

// Sites resolves a Host header.  *host.Resolver satisfies it.
type Sites interface {
	Resolve(ctx context.Context, hostname string) (*site.Record, error)
}

// Pages loads published snapshots.  *content.Repository and
// contenttest.Memory satisfy it.
type Pages interface {
	PublishedBySlug(ctx context.Context, siteID uint64, slug string) (*content.Published[content.PageMeta], error)
}

// SEO supplies per-site head defaults.  *site.Store satisfies it.
type SEO interface {
	SEODefaults(ctx context.Context, siteID uint64) (site.SEO, error)
}

// Menus supplies navigation by slot.  *menu.Store satisfies it.
type Menus interface {
	BySlot(ctx context.Context, siteID uint64, slot string) (*menu.Menu, []menu.Item, error)
}

// Options configures a Handler.  Only Sites and Pages are mandatory.
type Options struct {
	IndexSlug    string
	Policies     cachectl.Policies
	CacheEntries int
	Fallback     http.Handler
	SEO          SEO
	Menus        Menus
	Log          *zap.SugaredLogger
}

// Defaults for Options.
const (
	DefaultIndexSlug    = "home"
	DefaultCacheEntries = 2048
)

type pageKey struct {
	site uint64
	slug string
}

// Handler serves published pages.  Safe for concurrent use.
type Handler struct {
	sites Sites
	pages Pages
	seo   SEO
	menus Menus
	opts  Options
	log   *zap.SugaredLogger
	cache *cache.LRU[pageKey, *view]
	now   func() time.Time
}

// New returns a Handler.
func New(sites Sites, pages Pages, opts Options) *Handler {
	if opts.IndexSlug == "" {
		opts.IndexSlug = DefaultIndexSlug
	}
	if opts.Policies == (cachectl.Policies{}) {
		opts.Policies = cachectl.DefaultPolicies()
	}
	if opts.CacheEntries <= 0 {
		opts.CacheEntries = DefaultCacheEntries
	}
	if opts.Log == nil {
		opts.Log = zap.S()
	}
	h := &Handler{
		sites: sites,
		pages: pages,
		seo:   opts.SEO,
		menus: opts.Menus,
		opts:  opts,
		log:   opts.Log,
		cache: cache.New[pageKey, *view](opts.CacheEntries),
		now:   time.Now,
	}
	if h.opts.Fallback == nil {
		h.opts.Fallback = http.HandlerFunc(notFound)
	}
	return h
}

// Routes returns the public router.  GET and HEAD only; anything else is
// the same generic 404.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.GetHead)
	r.Get("/*", h.ServeHTTP)
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)
	return r
}

// PurgeHandler drops cached pages on publish.  An event without a slug
// clears the whole site.
func (h *Handler) PurgeHandler() cachectl.Handler {
	return cachectl.HandlerFunc("page-cache", func(_ context.Context, ev cachectl.Event) error {
		n := h.cache.RemoveFunc(func(k pageKey) bool {
			return k.site == ev.SiteID && (ev.Slug == "" || k.slug == ev.Slug)
		})
		h.log.Debugw("page cache purged", "site", ev.SiteID, "slug", ev.Slug, "entries", n)
		return nil
	})
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	device := ua.Class(r.UserAgent())

	rec, err := h.sites.Resolve(r.Context(), r.Host)
	if err != nil {
		if !apperr.IsNotFound(err) {
			h.log.Errorw("host resolution failed", "host", r.Host, zap.Error(err))
			h.fail(w, device)
			return
		}
		h.opts.Fallback.ServeHTTP(w, r)
		return
	}

	slug, ok := routing.SlugFromPath(r.URL.Path, h.opts.IndexSlug)
	if !ok {
		h.fail(w, device)
		return
	}

	v, err := h.load(r.Context(), rec, slug)
	if err != nil {
		if !apperr.IsNotFound(err) {
			h.log.Errorw("page load failed",
				"site", rec.ID, "slug", slug, "request_id", chimw.GetReqID(r.Context()), zap.Error(err))
		}
		h.fail(w, device)
		return
	}

	if wantsJSON(r) {
		h.writeJSON(w, v, device)
		return
	}
	h.writeHTML(w, v, device)
}

// load returns the cached view or builds a fresh one.
func (h *Handler) load(ctx context.Context, rec *site.Record, slug string) (*view, error) {
	key := pageKey{site: rec.ID, slug: slug}
	if v, ok := h.cache.Get(key); ok {
		if h.now().Sub(v.builtAt) < h.opts.Policies.MaxAge {
			return v, nil
		}
		h.cache.Remove(key)
	}

	pub, err := h.pages.PublishedBySlug(ctx, rec.ID, slug)
	if err != nil {
		return nil, err
	}
	v := h.build(ctx, rec, pub)
	h.cache.Add(key, v)
	return v, nil
}

func (h *Handler) writeHTML(w http.ResponseWriter, v *view, device string) {
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, v); err != nil {
		h.log.Errorw("page template failed", "site", v.Site.ID, "slug", v.Page.Slug, zap.Error(err))
		h.fail(w, device)
		return
	}
	h.opts.Policies.Headers(cachectl.Public).Apply(w.Header())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Add("Vary", "Accept")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	metrics.PageViewsTotal.WithLabelValues(device, "200").Inc()
}

func (h *Handler) writeJSON(w http.ResponseWriter, v *view, device string) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Errorw("page encode failed", "site", v.Site.ID, "slug", v.Page.Slug, zap.Error(err))
		h.fail(w, device)
		return
	}
	h.opts.Policies.Headers(cachectl.Public).Apply(w.Header())
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Add("Vary", "Accept")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	metrics.PageViewsTotal.WithLabelValues(device, "200").Inc()
}

func (h *Handler) fail(w http.ResponseWriter, device string) {
	metrics.PageViewsTotal.WithLabelValues(device, "404").Inc()
	notFound(w, nil)
}

// notFound is the only error body the public path ever sends.
func notFound(w http.ResponseWriter, _ *http.Request) {
	cachectl.SetNoStore(w)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("404 page not found\n"))
}

// wantsJSON reports whether application/json is listed in Accept ahead
// of text/html.
func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	j := strings.Index(accept, "application/json")
	if j < 0 {
		return false
	}
	h := strings.Index(accept, "text/html")
	return h < 0 || j < h
}
