// internal/content/codec.go
//
// Kind-specific behaviour plugged into the generic repository.
//
// A Codec knows the head table's metadata columns, how to normalise new
// metadata, and how to apply a partial patch.  Patches use pointer fields:
// nil means "not supplied" and leaves the stored value untouched, so an
// omitted field is never silently cleared.
package content

import (
	"strings"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/revision"
	"github.com/yanizio/sitepress/internal/routing"
)

// Codec describes one content unit kind.
type Codec[M, P any] interface {
	Kind() revision.Kind
	// Columns lists metadata columns in the order used by Values and Dest.
	Columns() []string
	Values(m M) []any
	Dest(m *M) []any
	// SearchColumn is matched with LIKE by List.
	SearchColumn() string
	// SlugColumn is the public lookup column, "" when the kind has none.
	SlugColumn() string
	// Slug returns the public slug, "" when the kind has none.
	Slug(m M) string
	Normalize(m M) (M, error)
	Apply(m M, p P) (M, error)
}

//
// Pages
//

// PageMeta is the metadata of a page head.
type PageMeta struct {
	Slug        string `json:"slug"        validate:"omitempty,max=100"`
	Title       string `json:"title"       validate:"required,max=255"`
	Description string `json:"description" validate:"max=2000"`
}

// PagePatch carries the page fields an editor chose to change.
type PagePatch struct {
	Slug        *string `json:"slug"        validate:"omitempty,max=100"`
	Title       *string `json:"title"       validate:"omitempty,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// PageCodec is the Codec for pages.
type PageCodec struct{}

func (PageCodec) Kind() revision.Kind    { return revision.KindPage }
func (PageCodec) Columns() []string      { return []string{"slug", "title", "description"} }
func (PageCodec) SearchColumn() string   { return "title" }
func (PageCodec) SlugColumn() string     { return "slug" }
func (PageCodec) Slug(m PageMeta) string { return m.Slug }

func (PageCodec) Values(m PageMeta) []any { return []any{m.Slug, m.Title, m.Description} }

func (PageCodec) Dest(m *PageMeta) []any { return []any{&m.Slug, &m.Title, &m.Description} }

// Normalize trims the title and derives or cleans the slug with
// routing.MakeSlug.
func (PageCodec) Normalize(m PageMeta) (PageMeta, error) {
	m.Title = strings.TrimSpace(m.Title)
	if m.Title == "" {
		return m, apperr.Invalid("title", "must not be empty")
	}
	if strings.TrimSpace(m.Slug) == "" {
		m.Slug = routing.MakeSlug(m.Title)
	} else {
		m.Slug = routing.MakeSlug(m.Slug)
	}
	return m, nil
}

func (c PageCodec) Apply(m PageMeta, p PagePatch) (PageMeta, error) {
	if p.Title != nil {
		m.Title = *p.Title
	}
	if p.Slug != nil {
		if strings.TrimSpace(*p.Slug) == "" {
			return m, apperr.Invalid("slug", "must not be empty when supplied")
		}
		m.Slug = *p.Slug
	}
	if p.Description != nil {
		m.Description = *p.Description
	}
	return c.Normalize(m)
}

//
// Collection items
//

// ItemMeta is the metadata of a collection item head.  The item's public
// identity lives in its revision data.
type ItemMeta struct {
	CollectionID uint64 `json:"collectionId" validate:"required"`
	Title        string `json:"title"        validate:"required,max=255"`
}

// ItemPatch carries the item fields an editor chose to change.
type ItemPatch struct {
	CollectionID *uint64 `json:"collectionId" validate:"omitempty,min=1"`
	Title        *string `json:"title"        validate:"omitempty,max=255"`
}

// ItemCodec is the Codec for collection items.
type ItemCodec struct{}

func (ItemCodec) Kind() revision.Kind  { return revision.KindItem }
func (ItemCodec) Columns() []string    { return []string{"collection_id", "title"} }
func (ItemCodec) SearchColumn() string { return "title" }
func (ItemCodec) SlugColumn() string   { return "" }
func (ItemCodec) Slug(ItemMeta) string { return "" }

func (ItemCodec) Values(m ItemMeta) []any { return []any{m.CollectionID, m.Title} }

func (ItemCodec) Dest(m *ItemMeta) []any { return []any{&m.CollectionID, &m.Title} }

func (ItemCodec) Normalize(m ItemMeta) (ItemMeta, error) {
	m.Title = strings.TrimSpace(m.Title)
	if m.CollectionID == 0 {
		return m, apperr.Invalid("collectionId", "is required")
	}
	if m.Title == "" {
		return m, apperr.Invalid("title", "must not be empty")
	}
	return m, nil
}

func (c ItemCodec) Apply(m ItemMeta, p ItemPatch) (ItemMeta, error) {
	if p.CollectionID != nil {
		m.CollectionID = *p.CollectionID
	}
	if p.Title != nil {
		m.Title = *p.Title
	}
	return c.Normalize(m)
}
