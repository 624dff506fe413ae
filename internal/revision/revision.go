// internal/revision/revision.go
//
// Revision row model and the pure retention rule.
//
// Context
// -------
// Every edit to a content unit (page or collection item) becomes one
// immutable row in the shared **revision** table, keyed by
// (unit_kind, unit_id, version).  Versions start at 1, only ever grow, and
// are never reused.  "Latest" is always derived from MAX(version); no
// pointer to the newest row is stored anywhere.
//
// Schema reference
//
//	CREATE TABLE revision (
//	    id                BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    unit_kind         VARCHAR(32)     NOT NULL,
//	    unit_id           BIGINT UNSIGNED NOT NULL,
//	    version           INT UNSIGNED    NOT NULL,
//	    content_snapshot  JSON            NOT NULL,
//	    author_id         BIGINT UNSIGNED NOT NULL,
//	    note              VARCHAR(255) NULL,
//	    created_at        TIMESTAMP NOT NULL,
//	    UNIQUE KEY revision_unit_version (unit_kind, unit_id, version)
//	);
//
// Notes
// -----
//   - Kind doubles as the whitelist of head tables; table names are never
//     taken from caller input.
//   - Oxford commas, two spaces after periods.
package revision

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// DefaultKeep is the number of revisions retained per unit.
const DefaultKeep = 10

// Canonical notes written by the content repository and the publisher.
const (
	NoteInitial   = "Initial creation."
	NotePublished = "Published."
)

// RollbackNote returns the note recorded on a rollback revision.
func RollbackNote(targetVersion int) string {
	return "Rollback to v" + strconv.Itoa(targetVersion)
}

// Kind names a content unit variant.
type Kind string

const (
	KindPage Kind = "page"
	KindItem Kind = "collection_item"
)

// Table returns the head table for k.
func (k Kind) Table() (string, error) {
	switch k {
	case KindPage:
		return "page", nil
	case KindItem:
		return "collection_item", nil
	default:
		return "", fmt.Errorf("revision: unknown unit kind %q", string(k))
	}
}

// Ref identifies one content unit.
type Ref struct {
	Kind   Kind
	UnitID uint64
}

func (r Ref) String() string {
	return string(r.Kind) + "/" + strconv.FormatUint(r.UnitID, 10)
}

// Revision mirrors one row in the `revision` table.
type Revision struct {
	ID        uint64          `db:"id"               json:"id"`
	UnitKind  Kind            `db:"unit_kind"        json:"unitKind"`
	UnitID    uint64          `db:"unit_id"          json:"unitId"`
	Version   int             `db:"version"          json:"version"`
	Snapshot  json.RawMessage `db:"content_snapshot" json:"contentSnapshot"`
	AuthorID  uint64          `db:"author_id"        json:"authorId"`
	Note      *string         `db:"note"             json:"note,omitempty"`
	CreatedAt time.Time       `db:"created_at"       json:"createdAt"`
}

// Surplus returns the versions that must be deleted so that at most keep
// remain.  The highest versions are kept; the input order does not matter
// and the input slice is not modified.  The newest version is never
// returned for keep >= 1.
func Surplus(versions []int, keep int) []int {
	if keep < 1 {
		keep = 1
	}
	if len(versions) <= keep {
		return nil
	}
	sorted := append([]int(nil), versions...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	drop := sorted[keep:]
	sort.Ints(drop)
	return drop
}
