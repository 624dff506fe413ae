// internal/content/repository.go
//
// Generic head-record repository for revisioned content units.
//
// Context
// -------
// Repository[M, P] stores the head row of one kind (page or collection
// item) and delegates every body change to revision.Store.  The head never
// points at a revision; "latest" is always MAX(version) in the ledger.
//
// Workflow
// --------
//   - CreateDraft   INSERT head (DRAFT) + revision v1 "Initial creation."
//     in one transaction.
//   - SaveDraft     lock head, apply patch, append revision, flush head.
//   - Mutate        the same locked unit of work, opened to the publish
//     orchestrator through the Mutation interface.
//   - Delete        lock head, delete all revisions, delete head.
//
// Each write that appended a revision prunes after commit.  Prune failures
// are swallowed by revision.Store.PruneQuietly.
//
// Publish freezes the metadata next to the snapshot (published_meta,
// published_slug).  The public lookup reads only those columns, so a draft
// save that renames a published page leaves its public URL alone.
//
// Notes
// -----
//   - Table and column names come from the Codec, never from callers.
//   - published_slug is unique per site.  Publishing a page onto a slug
//     another page still serves is a ConflictError.
//   - MySQL 1062 on the head table becomes apperr.ConflictError.
package content

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/database"
	"github.com/yanizio/sitepress/internal/revision"
)

const baseColumns = "id, workspace_id, site_id, status, published_at, COALESCE(published_slug, ''), created_at, updated_at"

// Repository persists heads of one content kind.
type Repository[M, P any] struct {
	db    *sqlx.DB
	revs  *revision.Store
	codec Codec[M, P]
	table string
	cols  string
	now   func() time.Time
}

// New binds codec to the revision store's database.  It panics on a codec
// whose kind has no head table; that is a programming error.
func New[M, P any](revs *revision.Store, codec Codec[M, P]) *Repository[M, P] {
	table, err := codec.Kind().Table()
	if err != nil {
		panic(err)
	}
	return &Repository[M, P]{
		db:    revs.DB(),
		revs:  revs,
		codec: codec,
		table: table,
		cols:  baseColumns + ", " + strings.Join(codec.Columns(), ", "),
		now:   time.Now,
	}
}

// NewPages returns the page repository.
func NewPages(revs *revision.Store) *Repository[PageMeta, PagePatch] {
	return New[PageMeta, PagePatch](revs, PageCodec{})
}

// NewItems returns the collection item repository.
func NewItems(revs *revision.Store) *Repository[ItemMeta, ItemPatch] {
	return New[ItemMeta, ItemPatch](revs, ItemCodec{})
}

// Kind reports the unit kind this repository stores.
func (r *Repository[M, P]) Kind() revision.Kind { return r.codec.Kind() }

func (r *Repository[M, P]) ref(id uint64) revision.Ref {
	return revision.Ref{Kind: r.codec.Kind(), UnitID: id}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *Repository[M, P]) scan(row rowScanner, extra ...any) (*Unit[M], error) {
	var u Unit[M]
	dest := []any{&u.ID, &u.WorkspaceID, &u.SiteID, &u.Status, &u.PublishedAt, &u.PublishedSlug, &u.CreatedAt, &u.UpdatedAt}
	dest = append(dest, r.codec.Dest(&u.Meta)...)
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return &u, nil
}

//
// Reads
//

// Get returns the head of unit id within scope.
func (r *Repository[M, P]) Get(ctx context.Context, scope Scope, id uint64) (*Unit[M], error) {
	q := `SELECT ` + r.cols + ` FROM ` + r.table + ` WHERE id = ? AND workspace_id = ?`
	u, err := r.scan(r.db.QueryRowContext(ctx, q, id, scope.WorkspaceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(r.table, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %d: %w", r.table, id, err)
	}
	return u, nil
}

// Latest returns the head and its newest revision.
func (r *Repository[M, P]) Latest(ctx context.Context, scope Scope, id uint64) (*Unit[M], *revision.Revision, error) {
	u, err := r.Get(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}
	rev, err := r.revs.Latest(ctx, r.ref(id))
	if err != nil {
		return nil, nil, err
	}
	return u, rev, nil
}

// History returns the kept revisions of unit id, newest first.
func (r *Repository[M, P]) History(ctx context.Context, scope Scope, id uint64) ([]revision.Revision, error) {
	if _, err := r.Get(ctx, scope, id); err != nil {
		return nil, err
	}
	return r.revs.History(ctx, r.ref(id))
}

// List returns heads in scope, most recently updated first.
func (r *Repository[M, P]) List(ctx context.Context, scope Scope, f Filter) ([]Unit[M], error) {
	var (
		where = []string{"workspace_id = ?"}
		args  = []any{scope.WorkspaceID}
	)
	if f.SiteID != 0 {
		where = append(where, "site_id = ?")
		args = append(args, f.SiteID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, r.codec.SearchColumn()+" LIKE ?")
		args = append(args, "%"+escapeLike(s)+"%")
	}
	args = append(args, f.limit())

	q := `SELECT ` + r.cols + ` FROM ` + r.table +
		` WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY updated_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	defer rows.Close()

	out := []Unit[M]{}
	for rows.Next() {
		u, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", r.table, err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// PublishedBySlug returns the unit published at slug, with the metadata and
// snapshot frozen by its last publish.  Not workspace scoped; used by the
// public render path after host resolution.
func (r *Repository[M, P]) PublishedBySlug(ctx context.Context, siteID uint64, slug string) (*Published[M], error) {
	if r.codec.SlugColumn() == "" || slug == "" {
		return nil, apperr.NotFound(r.table, slug)
	}
	q := `SELECT ` + r.cols + `, published_snapshot, published_meta FROM ` + r.table +
		` WHERE site_id = ? AND published_slug = ? AND status = ?`

	var snap, meta []byte
	u, err := r.scan(r.db.QueryRowContext(ctx, q, siteID, slug, string(StatusPublished)), &snap, &meta)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && len(snap) == 0) {
		return nil, apperr.NotFound(r.table, slug)
	}
	if err != nil {
		return nil, fmt.Errorf("published %s %q: %w", r.table, slug, err)
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &u.Meta); err != nil {
			return nil, fmt.Errorf("published %s %q meta: %w", r.table, slug, err)
		}
	}
	return &Published[M]{Unit: *u, Snapshot: json.RawMessage(snap)}, nil
}

//
// Writes
//

// CreateDraft inserts a DRAFT head and its first revision.
func (r *Repository[M, P]) CreateDraft(ctx context.Context, scope Scope, siteID uint64, meta M, snapshot json.RawMessage, authorID uint64) (*Unit[M], *revision.Revision, error) {
	meta, err := r.codec.Normalize(meta)
	if err != nil {
		return nil, nil, err
	}

	now := r.now().UTC()
	u := &Unit[M]{
		WorkspaceID: scope.WorkspaceID,
		SiteID:      siteID,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
		Meta:        meta,
	}

	var rev *revision.Revision
	err = database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := r.checkSite(ctx, tx, scope, siteID); err != nil {
			return err
		}

		cols := append([]string{"workspace_id", "site_id", "status", "created_at", "updated_at"}, r.codec.Columns()...)
		args := append([]any{u.WorkspaceID, u.SiteID, string(u.Status), u.CreatedAt, u.UpdatedAt}, r.codec.Values(meta)...)
		q := `INSERT INTO ` + r.table + ` (` + strings.Join(cols, ", ") + `) VALUES (` + placeholders(len(cols)) + `)`

		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return r.writeErr(err, meta)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("%s id: %w", r.table, err)
		}
		u.ID = uint64(id)

		note := revision.NoteInitial
		rev, err = r.revs.AppendTx(ctx, tx, r.ref(u.ID), snapshot, authorID, &note)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return u, rev, nil
}

// SaveDraft applies the supplied patch fields and appends snapshot as a new
// revision.  Status is left unchanged.
func (r *Repository[M, P]) SaveDraft(ctx context.Context, scope Scope, id uint64, patch P, snapshot json.RawMessage, authorID uint64, note string) (*Unit[M], *revision.Revision, error) {
	var rev *revision.Revision
	u, err := r.mutate(ctx, scope, id, func(m *mutation[M]) error {
		meta, err := r.codec.Apply(m.unit.Meta, patch)
		if err != nil {
			return err
		}
		m.unit.Meta = meta
		m.dirty = true
		rev, err = m.Append(snapshot, authorID, note)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return u, rev, nil
}

// Mutate runs fn against the locked head of unit id and commits its staged
// changes atomically.
func (r *Repository[M, P]) Mutate(ctx context.Context, scope Scope, id uint64, fn func(Mutation[M]) error) (*Unit[M], error) {
	return r.mutate(ctx, scope, id, func(m *mutation[M]) error { return fn(m) })
}

func (r *Repository[M, P]) mutate(ctx context.Context, scope Scope, id uint64, fn func(*mutation[M]) error) (*Unit[M], error) {
	var m *mutation[M]
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		u, err := r.lock(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		m = &mutation[M]{ctx: ctx, tx: tx, revs: r.revs, ref: r.ref(id), slug: r.codec.Slug, unit: *u}
		if err := fn(m); err != nil {
			return err
		}
		if m.dirty {
			return r.flush(ctx, tx, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m.appended {
		r.revs.PruneQuietly(ctx, m.ref)
	}
	out := m.unit
	return &out, nil
}

// Delete removes unit id and every revision it owns.  The removed head is
// returned so callers can purge caches for it.
func (r *Repository[M, P]) Delete(ctx context.Context, scope Scope, id uint64) (*Unit[M], error) {
	var gone *Unit[M]
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		u, err := r.lock(ctx, tx, scope, id)
		if err != nil {
			return err
		}
		if _, err := r.revs.DeleteAllTx(ctx, tx, r.ref(id)); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+r.table+` WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete %s %d: %w", r.table, id, err)
		}
		gone = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return gone, nil
}

//
// Internals
//

// lock reads and row-locks the scoped head.  The revision store relies on
// this lock for version allocation.
func (r *Repository[M, P]) lock(ctx context.Context, tx *sqlx.Tx, scope Scope, id uint64) (*Unit[M], error) {
	q := `SELECT ` + r.cols + ` FROM ` + r.table + ` WHERE id = ? AND workspace_id = ? FOR UPDATE`
	u, err := r.scan(tx.QueryRowContext(ctx, q, id, scope.WorkspaceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(r.table, id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s %d: %w", r.table, id, err)
	}
	return u, nil
}

func (r *Repository[M, P]) flush(ctx context.Context, tx *sqlx.Tx, m *mutation[M]) error {
	sets := []string{"status = ?", "published_at = ?", "updated_at = ?"}
	args := []any{string(m.unit.Status), m.unit.PublishedAt, m.unit.UpdatedAt}
	vals := r.codec.Values(m.unit.Meta)
	for i, col := range r.codec.Columns() {
		sets = append(sets, col+" = ?")
		args = append(args, vals[i])
	}
	if m.published != nil {
		meta, err := json.Marshal(m.unit.Meta)
		if err != nil {
			return fmt.Errorf("encode %s %d meta: %w", r.table, m.unit.ID, err)
		}
		var slug any
		if m.unit.PublishedSlug != "" {
			slug = m.unit.PublishedSlug
		}
		sets = append(sets, "published_snapshot = ?", "published_meta = ?", "published_slug = ?")
		args = append(args, []byte(m.published), meta, slug)
	}
	args = append(args, m.unit.ID)

	q := `UPDATE ` + r.table + ` SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return r.writeErr(err, m.unit.Meta)
	}
	return nil
}

func (r *Repository[M, P]) checkSite(ctx context.Context, tx *sqlx.Tx, scope Scope, siteID uint64) error {
	var id uint64
	err := tx.GetContext(ctx, &id,
		`SELECT id FROM site WHERE id = ? AND workspace_id = ? AND deleted_at IS NULL`,
		siteID, scope.WorkspaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("site", siteID)
	}
	if err != nil {
		return fmt.Errorf("check site %d: %w", siteID, err)
	}
	return nil
}

func (r *Repository[M, P]) writeErr(err error, meta M) error {
	if database.IsDuplicate(err) {
		key := r.codec.Slug(meta)
		if key == "" {
			key = r.table
		}
		return apperr.Conflict(r.table, key)
	}
	return fmt.Errorf("write %s: %w", r.table, err)
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
