package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/menu"
)

// Menus is the menu store surface.  *menu.Store satisfies it.
type Menus interface {
	Get(ctx context.Context, workspaceID, id uint64) (*menu.Menu, error)
	Items(ctx context.Context, workspaceID, id uint64) ([]menu.Item, error)
	Reorder(ctx context.Context, workspaceID, id uint64, nodes []menu.Node) ([]menu.Item, error)
}

type menuView struct {
	Menu  *menu.Menu       `json:"menu,omitempty"`
	Items []menu.Item      `json:"items"`
	Tree  []*menu.TreeNode `json:"tree"`
}

func newMenuView(m *menu.Menu, items []menu.Item) menuView {
	tree := menu.BuildTree(items)
	if tree == nil {
		tree = []*menu.TreeNode{}
	}
	return menuView{Menu: m, Items: items, Tree: tree}
}

func (a *API) menuRoutes(r chi.Router, writes func(http.Handler) http.Handler) {
	r.Get("/{id}", a.getMenu)
	r.With(writes).Put("/{id}/reorder", a.reorderMenu)
}

func (a *API) getMenu(w http.ResponseWriter, r *http.Request) {
	scope, _ := principal(r)
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	m, err := a.menus.Get(r.Context(), scope.WorkspaceID, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	items, err := a.menus.Items(r.Context(), scope.WorkspaceID, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newMenuView(m, items))
}

// reorderMenu accepts a flat list of {id, parentId, sortOrder}.  Items not
// listed keep their position.
func (a *API) reorderMenu(w http.ResponseWriter, r *http.Request) {
	scope, _ := principal(r)
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var nodes []menu.Node
	if err := decode(data, &nodes); err != nil {
		a.writeError(w, r, err)
		return
	}
	if len(nodes) == 0 {
		a.writeError(w, r, apperr.Invalid("items", "reorder request is empty"))
		return
	}
	for _, n := range nodes {
		if err := check(n); err != nil {
			a.writeError(w, r, err)
			return
		}
	}

	items, err := a.menus.Reorder(r.Context(), scope.WorkspaceID, id, nodes)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.log.Infow("menu reordered", "menu", id, "workspace", scope.WorkspaceID, "nodes", len(nodes))
	writeJSON(w, http.StatusOK, newMenuView(nil, items))
}
