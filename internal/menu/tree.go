// internal/menu/tree.go
//
// Tree reconstruction from the flat item list.
//
// BuildTree indexes children per parent and sorts each bucket by
// (SortOrder, ID).  Items whose parent is missing from the list are
// promoted to roots.  Only nodes reachable from a root are returned, so a
// corrupted cycle in stored data can never make traversal loop.
package menu

import (
	"sort"
)

// TreeNode is an Item with its ordered children.
type TreeNode struct {
	Item
	// Current marks the link to the page being rendered.
	Current  bool        `json:"current,omitempty"`
	Children []*TreeNode `json:"children"`
}

// BuildTree reconstructs the menu tree.
func BuildTree(items []Item) []*TreeNode {
	nodes := make(map[uint64]*TreeNode, len(items))
	for _, it := range items {
		nodes[it.ID] = &TreeNode{Item: it}
	}

	var roots []*TreeNode
	children := make(map[uint64][]*TreeNode, len(items))
	for _, it := range items {
		n := nodes[it.ID]
		if it.ParentID != nil {
			if _, ok := nodes[*it.ParentID]; ok && *it.ParentID != it.ID {
				children[*it.ParentID] = append(children[*it.ParentID], n)
				continue
			}
		}
		roots = append(roots, n)
	}

	sortNodes(roots)
	var attach func(n *TreeNode)
	attach = func(n *TreeNode) {
		kids := children[n.ID]
		sortNodes(kids)
		n.Children = kids
		for _, k := range kids {
			attach(k)
		}
	}
	for _, r := range roots {
		attach(r)
	}
	return roots
}

// Walk visits nodes in pre-order.  Returning false from fn skips the
// node's children.
func Walk(nodes []*TreeNode, fn func(n *TreeNode, depth int) bool) {
	var walk func([]*TreeNode, int)
	walk = func(ns []*TreeNode, depth int) {
		for _, n := range ns {
			if fn(n, depth) {
				walk(n.Children, depth+1)
			}
		}
	}
	walk(nodes, 0)
}

// SortItems orders items by (SortOrder, ID) in place.
func SortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].SortOrder != items[j].SortOrder {
			return items[i].SortOrder < items[j].SortOrder
		}
		return items[i].ID < items[j].ID
	})
}

func sortNodes(ns []*TreeNode) {
	sort.SliceStable(ns, func(i, j int) bool {
		if ns[i].SortOrder != ns[j].SortOrder {
			return ns[i].SortOrder < ns[j].SortOrder
		}
		return ns[i].ID < ns[j].ID
	})
}
