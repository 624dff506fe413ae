// internal/site/config.go
//
// Helpers for fetching key-value settings from the `site_config` table.
//
// Context
// -------
// Sites keep free-form string settings in `site_config`.  The render path
// reads the `seo.*` keys as page-head defaults; a page's own title and
// description override them.
//
// Notes
// -----
//   - String keys are case-sensitive and unique per site.
//   - The helpers never log; callers wrap errors if they need more detail.
package site

import (
	"context"
	"fmt"
)

// SEO keys in site_config.
const (
	KeySEOTitle       = "seo.title"
	KeySEOTitleSuffix = "seo.title_suffix"
	KeySEODescription = "seo.description"
	KeySEORobots      = "seo.robots"
	KeySEOImage       = "seo.og_image"
)

// SEO holds a site's page-head defaults.
type SEO struct {
	Title       string
	TitleSuffix string
	Description string
	Robots      string
	Image       string
}

// Config returns a map[key]value for one site_id.
func (s *Store) Config(ctx context.Context, siteID uint64) (map[string]string, error) {
	const q = `
	    SELECT  ` + "`key`, value" + `
	    FROM    site_config
	    WHERE   site_id = ?`
	rows := make([]struct {
		Key   string `db:"key"`
		Value string `db:"value"`
	}, 0, 8) // small default cap

	if err := s.db.SelectContext(ctx, &rows, q, siteID); err != nil {
		return nil, fmt.Errorf("config of site %d: %w", siteID, err)
	}

	cfg := make(map[string]string, len(rows))
	for _, r := range rows {
		cfg[r.Key] = r.Value
	}
	return cfg, nil
}

// SEODefaults folds the `seo.*` keys of site_config into SEO.  Robots
// defaults to "index, follow".
func (s *Store) SEODefaults(ctx context.Context, siteID uint64) (SEO, error) {
	cfg, err := s.Config(ctx, siteID)
	if err != nil {
		return SEO{}, err
	}
	seo := SEO{
		Title:       cfg[KeySEOTitle],
		TitleSuffix: cfg[KeySEOTitleSuffix],
		Description: cfg[KeySEODescription],
		Robots:      cfg[KeySEORobots],
		Image:       cfg[KeySEOImage],
	}
	if seo.Robots == "" {
		seo.Robots = "index, follow"
	}
	return seo, nil
}
