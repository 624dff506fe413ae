// internal/menu/model.go
//
// `menu` and `menu_item` row models.
//
// Context
// -------
// A menu belongs to a site and may be assigned to a rendering slot
// ("header", "footer", …).  Its items form a tree, persisted flat in
// arena-and-index style: each row carries a nullable parent_id and an
// integer sort_order.  Siblings sort by (sort_order, id); sort_order values
// need not be contiguous.
//
// Schema reference
//
//	CREATE TABLE menu (
//	    id            BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    workspace_id  BIGINT UNSIGNED NOT NULL,
//	    site_id       BIGINT UNSIGNED NOT NULL,
//	    name          VARCHAR(128)    NOT NULL,
//	    slot          VARCHAR(32) NULL
//	);
//	CREATE TABLE menu_item (
//	    id          BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    menu_id     BIGINT UNSIGNED NOT NULL,
//	    parent_id   BIGINT UNSIGNED NULL,
//	    sort_order  INT             NOT NULL DEFAULT 0,
//	    label       VARCHAR(255)    NOT NULL,
//	    url         VARCHAR(2048)   NOT NULL DEFAULT ''
//	);
package menu

// Menu mirrors one row in the `menu` table.
type Menu struct {
	ID          uint64  `db:"id"           json:"id"`
	WorkspaceID uint64  `db:"workspace_id" json:"workspaceId"`
	SiteID      uint64  `db:"site_id"      json:"siteId"`
	Name        string  `db:"name"         json:"name"`
	Slot        *string `db:"slot"         json:"slot"`
}

// Item mirrors one row in the `menu_item` table.
type Item struct {
	ID        uint64  `db:"id"         json:"id"`
	MenuID    uint64  `db:"menu_id"    json:"menuId"`
	ParentID  *uint64 `db:"parent_id"  json:"parentId"`
	SortOrder int     `db:"sort_order" json:"sortOrder"`
	Label     string  `db:"label"      json:"label"`
	URL       string  `db:"url"        json:"url"`
}

// Node is one entry of a reorder request.
type Node struct {
	ID        uint64  `json:"id"        validate:"required"`
	ParentID  *uint64 `json:"parentId"`
	SortOrder int     `json:"sortOrder"`
}
