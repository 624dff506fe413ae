package render

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/content"
	"github.com/yanizio/sitepress/internal/head"
	"github.com/yanizio/sitepress/internal/menu"
	"github.com/yanizio/sitepress/internal/routing"
	"github.com/yanizio/sitepress/internal/site"
)

// Navigation slots rendered around every page.
const (
	SlotHeader = "header"
	SlotFooter = "footer"
)

// siteView is the public face of a site.
type siteView struct {
	ID    uint64 `json:"id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

type pageView struct {
	ID          uint64     `json:"id"`
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Path        string     `json:"path"`
	PublishedAt *time.Time `json:"publishedAt"`
}

type headView struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Robots      string `json:"robots,omitempty"`
	Image       string `json:"image,omitempty"`
	Canonical   string `json:"canonical,omitempty"`
}

type navView struct {
	Header []*menu.TreeNode `json:"header,omitempty"`
	Footer []*menu.TreeNode `json:"footer,omitempty"`
}

// view is everything one page render needs.  It is immutable once built
// and shared between concurrent requests through the page cache.
type view struct {
	Site    siteView        `json:"site"`
	Page    pageView        `json:"page"`
	Meta    headView        `json:"head"`
	Nav     navView         `json:"navigation"`
	Raw     json.RawMessage `json:"content"`
	builtAt time.Time
	head    *head.Builder
	doc     any
	body    string
	blocks  []string
}

// document is the subset of a snapshot the HTML template understands.
type document struct {
	Body   string            `json:"body"`
	Blocks []json.RawMessage `json:"blocks"`
}

// Template accessors.
func (v *view) Head() *head.Builder { return v.head }
func (v *view) Content() any        { return v.doc }
func (v *view) Body() string        { return v.body }
func (v *view) Blocks() []string    { return v.blocks }

// build assembles the view for a published page.  SEO defaults and
// navigation are decoration: their failures are logged and the page is
// served without them.
func (h *Handler) build(ctx context.Context, rec *site.Record, pub *content.Published[content.PageMeta]) *view {
	meta := pub.Unit.Meta
	path := routing.PagePath(meta.Slug, h.opts.IndexSlug)

	v := &view{
		Site: siteView{ID: rec.ID, Slug: rec.Slug, Title: rec.Title},
		Page: pageView{
			ID:          pub.Unit.ID,
			Slug:        meta.Slug,
			Title:       meta.Title,
			Description: meta.Description,
			Path:        path,
			PublishedAt: pub.Unit.PublishedAt,
		},
		Raw:     pub.Snapshot,
		builtAt: h.now(),
	}

	seo := site.SEO{Title: rec.Title}
	if h.seo != nil {
		s, err := h.seo.SEODefaults(ctx, rec.ID)
		if err != nil {
			h.log.Warnw("seo defaults unavailable", "site", rec.ID, "error", err)
		} else {
			if s.Title == "" {
				s.Title = rec.Title
			}
			seo = s
		}
	}
	v.head = head.FromSEO(seo, head.Page{Title: meta.Title, Description: meta.Description, Canonical: path})
	v.Meta = headView{
		Title:       v.head.TitleText(),
		Description: v.head.Lookup("description"),
		Robots:      v.head.Lookup("robots"),
		Image:       v.head.Lookup("og:image"),
		Canonical:   path,
	}

	v.Nav.Header = h.nav(ctx, rec.ID, SlotHeader, path)
	v.Nav.Footer = h.nav(ctx, rec.ID, SlotFooter, path)

	_ = json.Unmarshal(pub.Snapshot, &v.doc)
	var doc document
	if json.Unmarshal(pub.Snapshot, &doc) == nil {
		v.body = doc.Body
		for _, raw := range doc.Blocks {
			var s string
			if json.Unmarshal(raw, &s) == nil && s != "" {
				v.blocks = append(v.blocks, s)
			}
		}
	}
	return v
}

// nav builds the slot's tree and marks links pointing at path.
func (h *Handler) nav(ctx context.Context, siteID uint64, slot, path string) []*menu.TreeNode {
	if h.menus == nil {
		return nil
	}
	_, items, err := h.menus.BySlot(ctx, siteID, slot)
	switch {
	case apperr.IsNotFound(err):
		return nil
	case err != nil:
		h.log.Warnw("navigation unavailable", "site", siteID, "slot", slot, "error", err)
		return nil
	}
	tree := menu.BuildTree(items)
	menu.Walk(tree, func(n *menu.TreeNode, _ int) bool {
		n.Current = n.URL == path
		return true
	})
	return tree
}
