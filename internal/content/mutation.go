package content

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/yanizio/sitepress/internal/revision"
)

// mutation is the SQL-backed Mutation.  It is only valid inside the
// transaction that created it.
type mutation[M any] struct {
	ctx  context.Context
	tx   *sqlx.Tx
	revs *revision.Store
	ref  revision.Ref
	slug func(M) string

	unit      Unit[M]
	published json.RawMessage
	dirty     bool
	appended  bool
}

func (m *mutation[M]) Unit() Unit[M] { return m.unit }

func (m *mutation[M]) Latest() (*revision.Revision, error) {
	return m.revs.LatestTx(m.ctx, m.tx, m.ref)
}

func (m *mutation[M]) Revision(id uint64) (*revision.Revision, error) {
	return m.revs.GetTx(m.ctx, m.tx, m.ref, id)
}

func (m *mutation[M]) Append(snapshot json.RawMessage, authorID uint64, note string) (*revision.Revision, error) {
	rev, err := m.revs.AppendTx(m.ctx, m.tx, m.ref, snapshot, authorID, notePtr(note))
	if err != nil {
		return nil, err
	}
	m.appended = true
	m.dirty = true
	m.unit.UpdatedAt = rev.CreatedAt
	return rev, nil
}

func (m *mutation[M]) MarkPublished(snapshot json.RawMessage, at time.Time) {
	at = at.UTC()
	m.unit.Status = StatusPublished
	m.unit.PublishedAt = &at
	m.unit.PublishedSlug = m.slug(m.unit.Meta)
	m.published = append(json.RawMessage(nil), snapshot...)
	m.dirty = true
}
