// internal/head/head.go
//
// The Builder collects everything that should appear inside a published
// page's <head> element.  It is scoped to a single render.  The render
// path seeds it from the site's SEO defaults, layers the page's own
// metadata on top, and the page template emits the result.
//
// Features
// --------
//   - SetTitle      – single <title> tag (last call wins).
//   - Meta, Link    – name/content and rel/href tags, deduplicated by key.
//   - FromSEO       – builds a Builder from site defaults plus a page.
//   - Render helpers return template.HTML with every value escaped.
//
// Notes
// -----
//   - A later Meta with the same name replaces the earlier value, so page
//     metadata overrides site defaults by call order alone.
//   - Oxford commas, two spaces after periods.
package head

import (
	"html/template"
	"strings"

	"github.com/yanizio/sitepress/internal/site"
)

type tag struct {
	key   string // "name" or "property" attribute, or rel for links
	value string
}

// Builder is not safe for concurrent writes; one per render.
type Builder struct {
	title string
	metas []tag
	links []tag
}

// New returns an empty Builder.
func New() *Builder { return &Builder{} }

// SetTitle overrides the page <title>.  The last caller wins.
func (b *Builder) SetTitle(t string) { b.title = t }

// Meta sets <meta name=… content=…>.  Empty content is ignored and a
// repeated name overwrites the previous value.
func (b *Builder) Meta(name, content string) { b.metas = set(b.metas, name, content) }

// Link sets <link rel=… href=…>.
func (b *Builder) Link(rel, href string) { b.links = set(b.links, rel, href) }

func set(tags []tag, key, value string) []tag {
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		return tags
	}
	for i := range tags {
		if tags[i].key == key {
			tags[i].value = value
			return tags
		}
	}
	return append(tags, tag{key: key, value: value})
}

// TitleText is the resolved title without markup.
func (b *Builder) TitleText() string { return b.title }

// Lookup returns the content of meta name, or "".
func (b *Builder) Lookup(name string) string {
	for _, t := range b.metas {
		if t.key == name {
			return t.value
		}
	}
	return ""
}

// Title returns a fully formed <title> tag or an empty string.
func (b *Builder) Title() template.HTML {
	if b.title == "" {
		return ""
	}
	return template.HTML("<title>" + template.HTMLEscapeString(b.title) + "</title>")
}

// Metas renders every meta tag.  og:* keys use the property attribute.
func (b *Builder) Metas() template.HTML {
	var sb strings.Builder
	for _, t := range b.metas {
		attr := "name"
		if strings.HasPrefix(t.key, "og:") {
			attr = "property"
		}
		sb.WriteString(`<meta ` + attr + `="` + template.HTMLEscapeString(t.key) +
			`" content="` + template.HTMLEscapeString(t.value) + `">`)
	}
	return template.HTML(sb.String())
}

// Links renders every link tag.
func (b *Builder) Links() template.HTML {
	var sb strings.Builder
	for _, t := range b.links {
		sb.WriteString(`<link rel="` + template.HTMLEscapeString(t.key) +
			`" href="` + template.HTMLEscapeString(t.value) + `">`)
	}
	return template.HTML(sb.String())
}

// Page is the per-page metadata merged over site defaults.
type Page struct {
	Title       string
	Description string
	Canonical   string
}

// FromSEO merges site defaults with page metadata.  The page title gets
// the site's suffix; a page without a title falls back to the site title.
func FromSEO(seo site.SEO, p Page) *Builder {
	b := New()

	title := strings.TrimSpace(p.Title)
	switch {
	case title != "":
		b.SetTitle(title + seo.TitleSuffix)
	case seo.Title != "":
		b.SetTitle(seo.Title)
	}

	b.Meta("description", seo.Description)
	b.Meta("description", p.Description)
	b.Meta("robots", seo.Robots)
	b.Meta("og:title", b.title)
	b.Meta("og:description", b.Lookup("description"))
	b.Meta("og:image", seo.Image)
	b.Link("canonical", p.Canonical)
	return b
}
