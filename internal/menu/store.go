// internal/menu/store.go
//
// Menu persistence and the transactional reorder.
//
// Workflow (Reorder)
// ------------------
//  1. BEGIN; lock the workspace-scoped menu row (absent → NotFound).
//  2. Lock and load the menu's items.
//  3. Validate the request (ids in menu, no duplicates, no cycles).
//  4. UPDATE parent_id and sort_order per node.
//  5. Re-read items ordered by (sort_order, id); COMMIT.
//
// Any failure rolls back everything, so a partial tree is never visible.
package menu

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/database"
)

const (
	menuColumns = `id, workspace_id, site_id, name, slot`
	itemColumns = `id, menu_id, parent_id, sort_order, label, url`
)

// Store reads and reorders menus.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps db.
func NewStore(db *sqlx.DB) *Store { return &Store{db: db} }

// Get returns menu id when it belongs to workspaceID.
func (s *Store) Get(ctx context.Context, workspaceID, id uint64) (*Menu, error) {
	var m Menu
	err := s.db.GetContext(ctx, &m,
		`SELECT `+menuColumns+` FROM menu WHERE id = ? AND workspace_id = ?`, id, workspaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("menu", id)
	}
	if err != nil {
		return nil, fmt.Errorf("menu %d: %w", id, err)
	}
	return &m, nil
}

// Items returns the items of menu id sorted by (sort_order, id).
func (s *Store) Items(ctx context.Context, workspaceID, id uint64) ([]Item, error) {
	if _, err := s.Get(ctx, workspaceID, id); err != nil {
		return nil, err
	}
	return s.items(ctx, s.db, id, false)
}

// BySlot returns the menu assigned to slot on siteID and its items.  Used
// by the public render path, so it is scoped by site rather than
// workspace.
func (s *Store) BySlot(ctx context.Context, siteID uint64, slot string) (*Menu, []Item, error) {
	var m Menu
	err := s.db.GetContext(ctx, &m,
		`SELECT `+menuColumns+` FROM menu WHERE site_id = ? AND slot = ? ORDER BY id LIMIT 1`, siteID, slot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apperr.NotFound("menu", slot)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("menu slot %q: %w", slot, err)
	}
	items, err := s.items(ctx, s.db, m.ID, false)
	if err != nil {
		return nil, nil, err
	}
	return &m, items, nil
}

// Reorder applies nodes to menu id atomically and returns the re-sorted
// items.  The returned order is computed from the locked rows, so no
// second read is needed.
func (s *Store) Reorder(ctx context.Context, workspaceID, id uint64, nodes []Node) ([]Item, error) {
	var out []Item
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var menuID uint64
		err := tx.GetContext(ctx, &menuID,
			`SELECT id FROM menu WHERE id = ? AND workspace_id = ? FOR UPDATE`, id, workspaceID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("menu", id)
		}
		if err != nil {
			return fmt.Errorf("lock menu %d: %w", id, err)
		}

		current, err := s.items(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := Validate(id, current, nodes); err != nil {
			return err
		}

		index := make(map[uint64]int, len(current))
		for i, it := range current {
			index[it.ID] = i
		}
		for _, n := range nodes {
			if _, err := tx.ExecContext(ctx,
				`UPDATE menu_item SET parent_id = ?, sort_order = ? WHERE id = ? AND menu_id = ?`,
				n.ParentID, n.SortOrder, n.ID, id); err != nil {
				return fmt.Errorf("reorder item %d: %w", n.ID, err)
			}
			it := &current[index[n.ID]]
			it.ParentID, it.SortOrder = n.ParentID, n.SortOrder
		}

		SortItems(current)
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) items(ctx context.Context, q sqlx.QueryerContext, menuID uint64, lock bool) ([]Item, error) {
	query := `SELECT ` + itemColumns + ` FROM menu_item WHERE menu_id = ? ORDER BY sort_order, id`
	if lock {
		query += ` FOR UPDATE`
	}
	items := []Item{}
	if err := sqlx.SelectContext(ctx, q, &items, query, menuID); err != nil {
		return nil, fmt.Errorf("items of menu %d: %w", menuID, err)
	}
	return items, nil
}
