package menu

import (
	"github.com/yanizio/sitepress/internal/apperr"
)

// Validate checks a reorder request against the menu's current items.  It
// rejects empty requests, ids or parent ids outside the menu, duplicate
// ids, and any resulting parent chain that loops back on itself.  Items
// not mentioned in nodes keep their current parent for the cycle check.
func Validate(menuID uint64, current []Item, nodes []Node) error {
	if len(nodes) == 0 {
		return apperr.Invalid("items", "reorder request is empty")
	}

	parents := make(map[uint64]*uint64, len(current))
	for _, it := range current {
		parents[it.ID] = it.ParentID
	}

	seen := make(map[uint64]struct{}, len(nodes))
	for _, n := range nodes {
		if _, ok := parents[n.ID]; !ok {
			return apperr.Invalid("items", "item %d does not belong to menu %d", n.ID, menuID)
		}
		if _, dup := seen[n.ID]; dup {
			return apperr.Invalid("items", "item %d listed twice", n.ID)
		}
		seen[n.ID] = struct{}{}

		if n.ParentID != nil {
			if _, ok := parents[*n.ParentID]; !ok {
				return apperr.Invalid("items", "parent %d of item %d does not belong to menu %d", *n.ParentID, n.ID, menuID)
			}
		}
	}

	for _, n := range nodes {
		parents[n.ID] = n.ParentID
	}
	if id, ok := findCycle(parents); ok {
		return apperr.Invalid("items", "parent chain of item %d forms a cycle", id)
	}
	return nil
}

// findCycle runs a three-colour DFS over the parent links and returns an
// item whose ancestry loops.
func findCycle(parents map[uint64]*uint64) (uint64, bool) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[uint64]int, len(parents))

	var visit func(uint64) bool
	visit = func(id uint64) bool {
		switch state[id] {
		case visiting:
			return true
		case done:
			return false
		}
		state[id] = visiting
		if p := parents[id]; p != nil {
			if visit(*p) {
				return true
			}
		}
		state[id] = done
		return false
	}

	for id := range parents {
		if state[id] == unvisited && visit(id) {
			return id, true
		}
	}
	return 0, false
}
