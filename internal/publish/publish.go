// internal/publish/publish.go
//
// Publish orchestrator: the draft→published state machine.
//
// Context
// -------
// Publishing is the only operation that changes what visitors see.
// Rollback rewrites draft history only; an editor must publish afterwards
// to make a rolled-back version public.
//
//	publish(unit, author, snapshot?)
//	  ├─ snapshot = explicit value, else latest revision's content
//	  ├─ append revision "Published."
//	  ├─ status = PUBLISHED, publishedAt = now, head stores snapshot + meta
//	  └─ purge(site, slug)                  (after commit, fire-and-forget;
//	                                         also the old slug when it moved)
//
//	rollback(unit, targetRevision, author)
//	  ├─ target must belong to unit         (else NotFound)
//	  └─ append copy "Rollback to v<N>"     (status untouched, no purge)
//
// Both run inside one content.Mutation, so the version allocation and the
// head update commit together.  Re-publishing an already published unit is
// legal and adds exactly one revision per call.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/yanizio/sitepress/internal/content"
	"github.com/yanizio/sitepress/internal/metrics"
	"github.com/yanizio/sitepress/internal/revision"
)

// Units is the slice of the content repository the orchestrator needs.
// *content.Repository and contenttest.Memory both satisfy it.
type Units[M any] interface {
	Kind() revision.Kind
	Mutate(ctx context.Context, scope content.Scope, id uint64, fn func(content.Mutation[M]) error) (*content.Unit[M], error)
}

// Purger receives best-effort cache purge notifications.  Implementations
// must not block.
type Purger interface {
	Purge(siteID uint64, slug string)
}

type options struct {
	log *zap.SugaredLogger
	now func() time.Time
}

// Option customises an Orchestrator.
type Option func(*options)

func WithLogger(l *zap.SugaredLogger) Option { return func(o *options) { o.log = l } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Orchestrator drives publish and rollback for one unit kind.
type Orchestrator[M any] struct {
	units  Units[M]
	purger Purger
	log    *zap.SugaredLogger
	now    func() time.Time
}

// New returns an Orchestrator.  purger may be nil.
func New[M any](units Units[M], purger Purger, opts ...Option) *Orchestrator[M] {
	o := options{log: zap.S(), now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return &Orchestrator[M]{units: units, purger: purger, log: o.log, now: o.now}
}

// Publish marks unit id PUBLISHED with snapshot, or with its latest saved
// content when snapshot is empty or JSON null.
func (o *Orchestrator[M]) Publish(ctx context.Context, scope content.Scope, id, authorID uint64, snapshot json.RawMessage) (*content.Unit[M], *revision.Revision, error) {
	var (
		rev      *revision.Revision
		previous string
	)
	u, err := o.units.Mutate(ctx, scope, id, func(m content.Mutation[M]) error {
		previous = m.Unit().PublishedSlug
		snap := snapshot
		if absent(snap) {
			latest, err := m.Latest()
			if err != nil {
				return err
			}
			snap = latest.Snapshot
		}
		var err error
		if rev, err = m.Append(snap, authorID, revision.NotePublished); err != nil {
			return err
		}
		m.MarkPublished(snap, o.now())
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	kind := string(o.units.Kind())
	metrics.PublishTotal.WithLabelValues(kind).Inc()
	o.log.Infow("unit published",
		"kind", kind, "unit", u.ID, "site", u.SiteID, "version", rev.Version, "author", authorID)

	if o.purger != nil {
		o.purger.Purge(u.SiteID, u.PublishedSlug)
		if previous != "" && previous != u.PublishedSlug {
			o.purger.Purge(u.SiteID, previous)
		}
	}
	return u, rev, nil
}

// Rollback appends a copy of revision targetID as the newest revision.  The
// target is never modified and the unit's status is left alone.
func (o *Orchestrator[M]) Rollback(ctx context.Context, scope content.Scope, id, targetID, authorID uint64) (*content.Unit[M], *revision.Revision, error) {
	var rev *revision.Revision
	u, err := o.units.Mutate(ctx, scope, id, func(m content.Mutation[M]) error {
		target, err := m.Revision(targetID)
		if err != nil {
			return err
		}
		rev, err = m.Append(target.Snapshot, authorID, revision.RollbackNote(target.Version))
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	kind := string(o.units.Kind())
	metrics.RollbackTotal.WithLabelValues(kind).Inc()
	o.log.Infow("unit rolled back",
		"kind", kind, "unit", u.ID, "target", targetID, "version", rev.Version, "author", authorID)
	return u, rev, nil
}

func absent(snap json.RawMessage) bool {
	s := bytes.TrimSpace(snap)
	return len(s) == 0 || bytes.Equal(s, []byte("null"))
}
