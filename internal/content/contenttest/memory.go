// Package contenttest provides an in-memory content repository with the
// same revision semantics as the SQL one: per-unit versions starting at 1,
// a retention cap with lowest-version-first pruning, scoped reads, and an
// atomic Mutate.  Packages above content (publish, api, render) test
// against it instead of mocking SQL.
package contenttest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/content"
	"github.com/yanizio/sitepress/internal/revision"
)

type record[M any] struct {
	unit      content.Unit[M]
	revs      []revision.Revision // ascending by version
	published json.RawMessage
	meta      M // frozen by the last publish
}

func (r *record[M]) clone() *record[M] {
	c := *r
	c.revs = append([]revision.Revision(nil), r.revs...)
	return &c
}

// Memory is a goroutine-safe in-memory repository.
type Memory[M, P any] struct {
	mu    sync.Mutex
	codec content.Codec[M, P]
	keep  int
	now   func() time.Time

	nextID    uint64
	nextRevID uint64
	units     map[uint64]*record[M]
	maxVer    map[uint64]int
	sites     map[uint64]uint64 // site → workspace
}

// New returns an empty Memory keeping revision.DefaultKeep revisions.
func New[M, P any](codec content.Codec[M, P]) *Memory[M, P] {
	return &Memory[M, P]{
		codec:  codec,
		keep:   revision.DefaultKeep,
		now:    time.Now,
		units:  map[uint64]*record[M]{},
		maxVer: map[uint64]int{},
		sites:  map[uint64]uint64{},
	}
}

// NewPages returns an in-memory page repository.
func NewPages() *Memory[content.PageMeta, content.PagePatch] {
	return New[content.PageMeta, content.PagePatch](content.PageCodec{})
}

// NewItems returns an in-memory collection item repository.
func NewItems() *Memory[content.ItemMeta, content.ItemPatch] {
	return New[content.ItemMeta, content.ItemPatch](content.ItemCodec{})
}

// AddSite registers siteID as owned by workspaceID.
func (m *Memory[M, P]) AddSite(siteID, workspaceID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[siteID] = workspaceID
}

// SetClock replaces time.Now.
func (m *Memory[M, P]) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// RevisionCount reports how many revisions exist for unit id across all
// scopes, zero when the unit is gone.
func (m *Memory[M, P]) RevisionCount(id uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.units[id]; ok {
		return len(rec.revs)
	}
	return 0
}

func (m *Memory[M, P]) Kind() revision.Kind { return m.codec.Kind() }

func (m *Memory[M, P]) scoped(scope content.Scope, id uint64) (*record[M], error) {
	rec, ok := m.units[id]
	if !ok || rec.unit.WorkspaceID != scope.WorkspaceID {
		table, _ := m.codec.Kind().Table()
		return nil, apperr.NotFound(table, id)
	}
	return rec, nil
}

func (m *Memory[M, P]) Get(_ context.Context, scope content.Scope, id uint64) (*content.Unit[M], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.scoped(scope, id)
	if err != nil {
		return nil, err
	}
	u := rec.unit
	return &u, nil
}

func (m *Memory[M, P]) Latest(_ context.Context, scope content.Scope, id uint64) (*content.Unit[M], *revision.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.scoped(scope, id)
	if err != nil {
		return nil, nil, err
	}
	u := rec.unit
	rev := rec.revs[len(rec.revs)-1]
	return &u, &rev, nil
}

func (m *Memory[M, P]) History(_ context.Context, scope content.Scope, id uint64) ([]revision.Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.scoped(scope, id)
	if err != nil {
		return nil, err
	}
	out := make([]revision.Revision, 0, len(rec.revs))
	for i := len(rec.revs) - 1; i >= 0; i-- {
		out = append(out, rec.revs[i])
	}
	return out, nil
}

func (m *Memory[M, P]) List(_ context.Context, scope content.Scope, f content.Filter) ([]content.Unit[M], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(f.Search))
	out := []content.Unit[M]{}
	for _, rec := range m.units {
		u := rec.unit
		switch {
		case u.WorkspaceID != scope.WorkspaceID,
			f.SiteID != 0 && u.SiteID != f.SiteID,
			f.Status != "" && u.Status != f.Status:
			continue
		}
		if needle != "" {
			raw, _ := json.Marshal(u.Meta)
			if !strings.Contains(strings.ToLower(string(raw)), needle) {
				continue
			}
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *Memory[M, P]) PublishedBySlug(_ context.Context, siteID uint64, slug string) (*content.Published[M], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.units {
		u := rec.unit
		if u.SiteID == siteID && u.Status == content.StatusPublished &&
			slug != "" && u.PublishedSlug == slug && len(rec.published) > 0 {
			u.Meta = rec.meta
			return &content.Published[M]{Unit: u, Snapshot: append(json.RawMessage(nil), rec.published...)}, nil
		}
	}
	table, _ := m.codec.Kind().Table()
	return nil, apperr.NotFound(table, slug)
}

func (m *Memory[M, P]) CreateDraft(_ context.Context, scope content.Scope, siteID uint64, meta M, snapshot json.RawMessage, authorID uint64) (*content.Unit[M], *revision.Revision, error) {
	meta, err := m.codec.Normalize(meta)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ws, ok := m.sites[siteID]; !ok || ws != scope.WorkspaceID {
		return nil, nil, apperr.NotFound("site", siteID)
	}
	if err := m.checkSlug(0, siteID, meta); err != nil {
		return nil, nil, err
	}

	now := m.now().UTC()
	m.nextID++
	rec := &record[M]{unit: content.Unit[M]{
		ID:          m.nextID,
		WorkspaceID: scope.WorkspaceID,
		SiteID:      siteID,
		Status:      content.StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
		Meta:        meta,
	}}
	rev, err := m.append(rec, snapshot, authorID, revision.NoteInitial)
	if err != nil {
		m.nextID--
		return nil, nil, err
	}
	m.units[rec.unit.ID] = rec
	u := rec.unit
	return &u, rev, nil
}

func (m *Memory[M, P]) SaveDraft(ctx context.Context, scope content.Scope, id uint64, patch P, snapshot json.RawMessage, authorID uint64, note string) (*content.Unit[M], *revision.Revision, error) {
	var rev *revision.Revision
	u, err := m.Mutate(ctx, scope, id, func(mu content.Mutation[M]) error {
		mm := mu.(*mutation[M, P])
		meta, err := m.codec.Apply(mm.rec.unit.Meta, patch)
		if err != nil {
			return err
		}
		mm.rec.unit.Meta = meta
		rev, err = mm.Append(snapshot, authorID, note)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return u, rev, nil
}

// Mutate runs fn on a copy of the unit and swaps it in only when fn
// succeeds, so a failed callback leaves no trace.
func (m *Memory[M, P]) Mutate(_ context.Context, scope content.Scope, id uint64, fn func(content.Mutation[M]) error) (*content.Unit[M], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.scoped(scope, id)
	if err != nil {
		return nil, err
	}
	work := rec.clone()
	saveVer, saveRevID := m.maxVer[id], m.nextRevID

	if err := fn(&mutation[M, P]{m: m, rec: work}); err != nil {
		m.maxVer[id], m.nextRevID = saveVer, saveRevID
		return nil, err
	}
	if err := m.checkSlug(id, work.unit.SiteID, work.unit.Meta); err != nil {
		m.maxVer[id], m.nextRevID = saveVer, saveRevID
		return nil, err
	}
	if err := m.checkPublishedSlug(id, work.unit); err != nil {
		m.maxVer[id], m.nextRevID = saveVer, saveRevID
		return nil, err
	}
	m.prune(work)
	m.units[id] = work
	u := work.unit
	return &u, nil
}

func (m *Memory[M, P]) Delete(_ context.Context, scope content.Scope, id uint64) (*content.Unit[M], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.scoped(scope, id)
	if err != nil {
		return nil, err
	}
	delete(m.units, id)
	u := rec.unit
	return &u, nil
}

// append must be called with mu held.
func (m *Memory[M, P]) append(rec *record[M], snapshot json.RawMessage, authorID uint64, note string) (*revision.Revision, error) {
	if len(snapshot) == 0 || !json.Valid(snapshot) {
		return nil, apperr.Invalid("content", "snapshot must be a valid JSON document")
	}
	id := rec.unit.ID
	m.maxVer[id]++
	m.nextRevID++
	rev := revision.Revision{
		ID:        m.nextRevID,
		UnitKind:  m.codec.Kind(),
		UnitID:    id,
		Version:   m.maxVer[id],
		Snapshot:  append(json.RawMessage(nil), snapshot...),
		AuthorID:  authorID,
		CreatedAt: m.now().UTC(),
	}
	if note != "" {
		rev.Note = &note
	}
	rec.revs = append(rec.revs, rev)
	rec.unit.UpdatedAt = rev.CreatedAt
	return &rev, nil
}

func (m *Memory[M, P]) prune(rec *record[M]) {
	versions := make([]int, len(rec.revs))
	for i, r := range rec.revs {
		versions[i] = r.Version
	}
	drop := revision.Surplus(versions, m.keep)
	if len(drop) == 0 {
		return
	}
	cutoff := drop[len(drop)-1]
	kept := rec.revs[:0]
	for _, r := range rec.revs {
		if r.Version > cutoff {
			kept = append(kept, r)
		}
	}
	rec.revs = kept
}

func (m *Memory[M, P]) checkSlug(selfID, siteID uint64, meta M) error {
	slug := m.codec.Slug(meta)
	if slug == "" {
		return nil
	}
	for id, rec := range m.units {
		if id != selfID && rec.unit.SiteID == siteID && m.codec.Slug(rec.unit.Meta) == slug {
			table, _ := m.codec.Kind().Table()
			return apperr.Conflict(table, slug)
		}
	}
	return nil
}

func (m *Memory[M, P]) checkPublishedSlug(selfID uint64, u content.Unit[M]) error {
	if u.PublishedSlug == "" {
		return nil
	}
	for id, rec := range m.units {
		if id != selfID && rec.unit.SiteID == u.SiteID && rec.unit.PublishedSlug == u.PublishedSlug {
			table, _ := m.codec.Kind().Table()
			return apperr.Conflict(table, u.PublishedSlug)
		}
	}
	return nil
}

type mutation[M, P any] struct {
	m   *Memory[M, P]
	rec *record[M]
}

func (mu *mutation[M, P]) Unit() content.Unit[M] { return mu.rec.unit }

func (mu *mutation[M, P]) Latest() (*revision.Revision, error) {
	rev := mu.rec.revs[len(mu.rec.revs)-1]
	return &rev, nil
}

func (mu *mutation[M, P]) Revision(id uint64) (*revision.Revision, error) {
	for _, r := range mu.rec.revs {
		if r.ID == id {
			rev := r
			return &rev, nil
		}
	}
	return nil, apperr.NotFound("revision", id)
}

func (mu *mutation[M, P]) Append(snapshot json.RawMessage, authorID uint64, note string) (*revision.Revision, error) {
	return mu.m.append(mu.rec, snapshot, authorID, note)
}

func (mu *mutation[M, P]) MarkPublished(snapshot json.RawMessage, at time.Time) {
	at = at.UTC()
	mu.rec.unit.Status = content.StatusPublished
	mu.rec.unit.PublishedAt = &at
	mu.rec.unit.PublishedSlug = mu.m.codec.Slug(mu.rec.unit.Meta)
	mu.rec.published = append(json.RawMessage(nil), snapshot...)
	mu.rec.meta = mu.rec.unit.Meta
}
