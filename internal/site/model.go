// internal/site/model.go
//
// `site` and `domain_binding` row models.
//
// Context
// -------
// A Site is the tenant-owned publishing target.  Its unique slug doubles as
// the label of the default `<slug>.<platform-domain>` hostname.  Custom
// hostnames live in `domain_binding`, one row per literal hostname.
// Verification happens outside this service; any binding row found here is
// trusted.
//
// Schema reference
//
//	CREATE TABLE site (
//	    id            BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    workspace_id  BIGINT UNSIGNED NOT NULL,
//	    slug          VARCHAR(63)     NOT NULL UNIQUE,
//	    title         VARCHAR(255)    NOT NULL DEFAULT '',
//	    suspended_at  TIMESTAMP NULL,
//	    deleted_at    TIMESTAMP NULL,
//	    created_at    TIMESTAMP NOT NULL,
//	    updated_at    TIMESTAMP NOT NULL
//	);
//
// Notes
// -----
//   - Nullable timestamps are `*time.Time`; callers must nil-check before use.
//   - Either SuspendedAt or DeletedAt being non-NULL hides the site from
//     host resolution.
//   - Oxford commas, two spaces after periods.
package site

import "time"

// Record mirrors one row in the `site` table.
type Record struct {
	ID          uint64     `db:"id"           json:"id"`
	WorkspaceID uint64     `db:"workspace_id" json:"workspaceId"`
	Slug        string     `db:"slug"         json:"slug"`
	Title       string     `db:"title"        json:"title"`
	SuspendedAt *time.Time `db:"suspended_at" json:"suspendedAt,omitempty"`
	DeletedAt   *time.Time `db:"deleted_at"   json:"deletedAt,omitempty"`
	CreatedAt   time.Time  `db:"created_at"   json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at"   json:"updatedAt"`
}

// Active reports whether the site may be served.
func (r *Record) Active() bool { return r.SuspendedAt == nil && r.DeletedAt == nil }

// Binding mirrors one row in the `domain_binding` table.
type Binding struct {
	ID        uint64    `db:"id"         json:"id"`
	SiteID    uint64    `db:"site_id"    json:"siteId"`
	Hostname  string    `db:"hostname"   json:"hostname"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
