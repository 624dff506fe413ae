package site

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/sitepress/internal/apperr"
)

const siteColumns = `s.id, s.workspace_id, s.slug, s.title, s.suspended_at, s.deleted_at, s.created_at, s.updated_at`

// Store reads sites and manages their domain bindings.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps db.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// BySlug fetches an active site by its unique slug.
func (s *Store) BySlug(ctx context.Context, slug string) (*Record, error) {
	const q = `
        SELECT ` + siteColumns + `
        FROM   site s
        WHERE  s.slug = ?
          AND  s.suspended_at IS NULL
          AND  s.deleted_at   IS NULL
        LIMIT  1`
	return s.one(ctx, "slug "+slug, q, slug)
}

// ByHostname fetches the active site a custom hostname is bound to.  The
// hostname must already be canonical (see CanonicalHost).
func (s *Store) ByHostname(ctx context.Context, hostname string) (*Record, error) {
	const q = `
        SELECT ` + siteColumns + `
        FROM   domain_binding b
        JOIN   site s ON s.id = b.site_id
        WHERE  b.hostname = ?
          AND  s.suspended_at IS NULL
          AND  s.deleted_at   IS NULL
        LIMIT  1`
	return s.one(ctx, "host "+hostname, q, hostname)
}

// Owned fetches site id when it belongs to workspaceID.  Suspended sites
// are still returned so editors can manage them.
func (s *Store) Owned(ctx context.Context, workspaceID, id uint64) (*Record, error) {
	const q = `
        SELECT ` + siteColumns + `
        FROM   site s
        WHERE  s.id = ?
          AND  s.workspace_id = ?
          AND  s.deleted_at IS NULL
        LIMIT  1`
	return s.one(ctx, id, q, id, workspaceID)
}

func (s *Store) one(ctx context.Context, key any, q string, args ...any) (*Record, error) {
	var rec Record
	err := s.db.GetContext(ctx, &rec, q, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("site", key)
	}
	if err != nil {
		return nil, fmt.Errorf("site %v: %w", key, err)
	}
	return &rec, nil
}
