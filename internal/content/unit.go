// internal/content/unit.go
//
// Content unit model shared by pages and collection items.
//
// Context
// -------
// A content unit is the mutable "head" record an editor works on.  Its
// body lives exclusively in the revision ledger; the head carries only
// identity, ownership, lifecycle state, and a small kind-specific metadata
// value (Meta).  Pages and collection items revision identically, so the
// head is one generic type parameterised by its metadata.
//
// Lifecycle
// ---------
//
//	DRAFT ──publish──▶ PUBLISHED ──publish──▶ PUBLISHED (idempotent)
//
// Saving or rolling back never changes Status.  Only publish does.
//
// Publish also freezes a copy of Meta next to the published snapshot.
// Visitors see that copy, so renaming or retitling a published page in a
// draft save changes nothing public until the next publish.
//
// Notes
// -----
//   - Every read and write is scoped by Scope.WorkspaceID.  A unit owned by
//     another workspace is reported as not found.
//   - Oxford commas, two spaces after periods.
package content

import (
	"encoding/json"
	"time"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/revision"
)

// Status is the public lifecycle state of a unit.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPublished Status = "PUBLISHED"
)

// ParseStatus accepts the two canonical values; the empty string means
// "any" and is returned as-is.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case "", StatusDraft, StatusPublished:
		return Status(s), nil
	default:
		return "", apperr.Invalid("status", "must be DRAFT or PUBLISHED, got %q", s)
	}
}

// Scope is the tenant boundary every call carries.  The caller has already
// proven the principal belongs to WorkspaceID.
type Scope struct {
	WorkspaceID uint64
}

// Unit is the head record of a page or collection item.
type Unit[M any] struct {
	ID          uint64     `json:"id"`
	WorkspaceID uint64     `json:"workspaceId"`
	SiteID      uint64     `json:"siteId"`
	Status      Status     `json:"status"`
	PublishedAt *time.Time `json:"publishedAt"`
	// PublishedSlug is the slug visitors reach the unit at, "" until the
	// first publish and for kinds without a slug.
	PublishedSlug string    `json:"publishedSlug,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Meta          M         `json:"meta"`
}

// Published is a unit as visitors see it: Unit.Meta holds the metadata
// frozen by the last publish, not the current draft metadata.
type Published[M any] struct {
	Unit     Unit[M]
	Snapshot json.RawMessage
}

// Filter narrows List.  Zero values mean "no constraint".
type Filter struct {
	SiteID uint64
	Status Status
	Search string
	Limit  int
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultListLimit
	case f.Limit > maxListLimit:
		return maxListLimit
	default:
		return f.Limit
	}
}

// Mutation is the unit of work handed to Mutate callbacks.  The unit's head
// row is locked for the lifetime of the callback, so version allocation and
// status changes made through it are atomic with respect to other writers
// on the same unit.
type Mutation[M any] interface {
	// Unit returns the head as currently staged.
	Unit() Unit[M]
	// Latest returns the newest revision, including any appended by this
	// mutation.
	Latest() (*revision.Revision, error)
	// Revision returns revision id when it belongs to this unit.
	Revision(id uint64) (*revision.Revision, error)
	// Append adds a revision.  An empty note is stored as NULL.
	Append(snapshot json.RawMessage, authorID uint64, note string) (*revision.Revision, error)
	// MarkPublished stages status PUBLISHED, publishedAt, and the snapshot
	// the render path serves.  The unit's current metadata and slug become
	// the published ones.
	MarkPublished(snapshot json.RawMessage, at time.Time)
}

func notePtr(note string) *string {
	if note == "" {
		return nil
	}
	return &note
}
