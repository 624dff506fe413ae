// internal/routing/slug.go
//
// Slug and path helpers shared by the content repository and the public
// render path.
//
// • MakeSlug(title) ─ converts arbitrary text into a URL-safe slug restricted
//   to ASCII a-z, 0-9 and “-”.
// • ValidSlug(s) ─ reports whether s is already in MakeSlug's output form.
// • SlugFromPath(path, index) ─ maps a request path to a page slug.
// • PagePath(slug, index) ─ the inverse, used for canonical links.
//
// Rules (MakeSlug)
// ----------------
// 1. Lower-case everything.
// 2. Convert any run of non-[a-z0-9] characters to one “-”.  That strips
//    spaces, punctuation, emoji, and non-ASCII.
// 3. Trim leading / trailing “-”.
// 4. If the result is empty, return "item".
//
// Notes
// -----
// • Slugs are max 100 bytes, matching the page.slug column.
// • Pages are flat: a path with more than one segment never maps to a slug.

package routing

import (
	"strings"
)

// MaxSlugLen is the width of the slug column.
const MaxSlugLen = 100

// MakeSlug converts title → lower-kebab ASCII.
func MakeSlug(title string) string {
	var b strings.Builder
	b.Grow(len(title))

	lastWasDash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastWasDash = false
		default:
			if !lastWasDash {
				b.WriteRune('-')
				lastWasDash = true
			}
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "item"
	}
	if len(slug) > MaxSlugLen {
		slug = strings.TrimRight(slug[:MaxSlugLen], "-")
	}
	return slug
}

// ValidSlug reports whether s could have been produced by MakeSlug.
func ValidSlug(s string) bool {
	if s == "" || len(s) > MaxSlugLen || s[0] == '-' || s[len(s)-1] == '-' {
		return false
	}
	prevDash := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevDash = false
		case c == '-' && !prevDash:
			prevDash = true
		default:
			return false
		}
	}
	return true
}

// SlugFromPath maps "/" to index and "/about" or "/about/" to "about".
// ok is false for nested paths and anything that is not a valid slug.
func SlugFromPath(path, index string) (slug string, ok bool) {
	p := strings.Trim(path, "/")
	if p == "" {
		return index, index != ""
	}
	if strings.Contains(p, "/") || !ValidSlug(p) {
		return "", false
	}
	return p, true
}

// PagePath returns the public path of slug; the index page lives at "/".
func PagePath(slug, index string) string {
	if slug == "" || slug == index {
		return "/"
	}
	return "/" + slug
}
