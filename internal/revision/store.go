// internal/revision/store.go
//
// Append-only per-unit version ledger with bounded retention.
//
// Workflow
// --------
//  1. Append opens a transaction and locks the unit's head row with
//     SELECT … FOR UPDATE.  Concurrent writers on the same unit queue on
//     that lock; writers on different units never contend.
//  2. NextVersion reads MAX(version)+1 under the lock and the row is
//     inserted.  The unique key on (unit_kind, unit_id, version) is the
//     backstop should a caller forget the lock.
//  3. After commit, Prune trims the history to `keep` rows.  Prune errors
//     are logged and counted, never returned to the writer; the next
//     append recomputes the surplus and retries.
//
// Callers that already hold a transaction (content repository, publisher)
// use AppendTx and call PruneQuietly after their own commit.
package revision

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/database"
	"github.com/yanizio/sitepress/internal/metrics"
)

const columns = `id, unit_kind, unit_id, version, content_snapshot, author_id, note, created_at`

// Store persists revisions.  Safe for concurrent use.
type Store struct {
	db   *sqlx.DB
	keep int
	log  *zap.SugaredLogger
	now  func() time.Time
}

// Option customises a Store.
type Option func(*Store)

// WithKeep overrides the retention cap.  Values below 1 are ignored.
func WithKeep(n int) Option {
	return func(s *Store) {
		if n >= 1 {
			s.keep = n
		}
	}
}

// WithLogger sets the logger used for deferred prune failures.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore returns a Store keeping DefaultKeep revisions per unit.
func NewStore(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{
		db:   db,
		keep: DefaultKeep,
		log:  zap.S(),
		now:  time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Keep reports the retention cap.
func (s *Store) Keep() int { return s.keep }

// DB exposes the pool so repositories can share it.
func (s *Store) DB() *sqlx.DB { return s.db }

//
// Writes
//

// Append allocates the next version for ref and persists the revision in
// its own transaction, then prunes.  Appending to a unit that does not
// exist is a ValidationError.
func (s *Store) Append(ctx context.Context, ref Ref, snapshot json.RawMessage, authorID uint64, note *string) (*Revision, error) {
	var rev *Revision
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.lockUnit(ctx, tx, ref); err != nil {
			return err
		}
		var err error
		rev, err = s.insert(ctx, tx, ref, snapshot, authorID, note)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.PruneQuietly(ctx, ref)
	return rev, nil
}

// AppendTx inserts the next revision inside tx.  The caller must already
// hold the unit's head-row lock and is responsible for PruneQuietly after
// commit.
func (s *Store) AppendTx(ctx context.Context, tx *sqlx.Tx, ref Ref, snapshot json.RawMessage, authorID uint64, note *string) (*Revision, error) {
	return s.insert(ctx, tx, ref, snapshot, authorID, note)
}

// NextVersion returns MAX(version)+1 for ref, or 1 when the unit has no
// revisions.  It must run inside the transaction that performs the insert.
func (s *Store) NextVersion(ctx context.Context, tx *sqlx.Tx, ref Ref) (int, error) {
	const q = `
	    SELECT COALESCE(MAX(version), 0) + 1
	    FROM   revision
	    WHERE  unit_kind = ? AND unit_id = ?`
	var next int
	if err := tx.GetContext(ctx, &next, q, string(ref.Kind), ref.UnitID); err != nil {
		return 0, fmt.Errorf("next version %s: %w", ref, err)
	}
	return next, nil
}

func (s *Store) insert(ctx context.Context, tx *sqlx.Tx, ref Ref, snapshot json.RawMessage, authorID uint64, note *string) (*Revision, error) {
	if len(snapshot) == 0 || !json.Valid(snapshot) {
		return nil, apperr.Invalid("content", "snapshot must be a valid JSON document")
	}

	version, err := s.NextVersion(ctx, tx, ref)
	if err != nil {
		return nil, err
	}

	rev := &Revision{
		UnitKind:  ref.Kind,
		UnitID:    ref.UnitID,
		Version:   version,
		Snapshot:  append(json.RawMessage(nil), snapshot...),
		AuthorID:  authorID,
		Note:      note,
		CreatedAt: s.now().UTC(),
	}

	const q = `
	    INSERT INTO revision
	           (unit_kind, unit_id, version, content_snapshot, author_id, note, created_at)
	    VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		string(rev.UnitKind), rev.UnitID, rev.Version, []byte(rev.Snapshot),
		rev.AuthorID, rev.Note, rev.CreatedAt)
	if err != nil {
		if database.IsDuplicate(err) {
			return nil, apperr.Conflict("revision", fmt.Sprintf("%s v%d", ref, version))
		}
		return nil, fmt.Errorf("insert revision %s: %w", ref, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("revision id %s: %w", ref, err)
	}
	rev.ID = uint64(id)

	metrics.RevisionsAppendedTotal.WithLabelValues(string(ref.Kind)).Inc()
	return rev, nil
}

// lockUnit takes the head-row lock that serialises version allocation.
func (s *Store) lockUnit(ctx context.Context, tx *sqlx.Tx, ref Ref) error {
	table, err := ref.Kind.Table()
	if err != nil {
		return apperr.Invalid("kind", "%v", err)
	}
	var id uint64
	err = tx.GetContext(ctx, &id, `SELECT id FROM `+table+` WHERE id = ? FOR UPDATE`, ref.UnitID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Invalid("unit", "%s does not exist", ref)
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", ref, err)
	}
	return nil
}

// Prune deletes the oldest revisions of ref beyond the retention cap.
func (s *Store) Prune(ctx context.Context, ref Ref) error {
	var versions []int
	const list = `
	    SELECT version
	    FROM   revision
	    WHERE  unit_kind = ? AND unit_id = ?
	    ORDER  BY version DESC`
	if err := s.db.SelectContext(ctx, &versions, list, string(ref.Kind), ref.UnitID); err != nil {
		return fmt.Errorf("prune list %s: %w", ref, err)
	}

	drop := Surplus(versions, s.keep)
	if len(drop) == 0 {
		return nil
	}

	// Surplus is always the contiguous low end, so one range delete works.
	cutoff := drop[len(drop)-1]
	const del = `
	    DELETE FROM revision
	    WHERE  unit_kind = ? AND unit_id = ? AND version <= ?`
	res, err := s.db.ExecContext(ctx, del, string(ref.Kind), ref.UnitID, cutoff)
	if err != nil {
		return fmt.Errorf("prune delete %s: %w", ref, err)
	}
	if n, err := res.RowsAffected(); err == nil {
		metrics.RevisionsPrunedTotal.Add(float64(n))
	}
	return nil
}

// PruneQuietly runs Prune and logs a failure instead of returning it.
func (s *Store) PruneQuietly(ctx context.Context, ref Ref) {
	if err := s.Prune(ctx, ref); err != nil {
		metrics.RevisionPruneErrorsTotal.Inc()
		s.log.Warnw("revision prune deferred", "unit", ref.String(), "err", err)
	}
}

// DeleteAllTx removes every revision of ref inside tx.
func (s *Store) DeleteAllTx(ctx context.Context, tx *sqlx.Tx, ref Ref) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM revision WHERE unit_kind = ? AND unit_id = ?`,
		string(ref.Kind), ref.UnitID)
	if err != nil {
		return 0, fmt.Errorf("delete revisions %s: %w", ref, err)
	}
	return res.RowsAffected()
}

//
// Reads
//

// Latest returns the newest revision of ref, or NotFoundError.
func (s *Store) Latest(ctx context.Context, ref Ref) (*Revision, error) {
	return s.LatestTx(ctx, s.db, ref)
}

// LatestTx is Latest against an arbitrary queryer, usually a transaction.
func (s *Store) LatestTx(ctx context.Context, q sqlx.QueryerContext, ref Ref) (*Revision, error) {
	query := `SELECT ` + columns + `
	    FROM   revision
	    WHERE  unit_kind = ? AND unit_id = ?
	    ORDER  BY version DESC
	    LIMIT  1`
	var rev Revision
	err := sqlx.GetContext(ctx, q, &rev, query, string(ref.Kind), ref.UnitID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("revision", ref.String()+"@latest")
	}
	if err != nil {
		return nil, fmt.Errorf("latest revision %s: %w", ref, err)
	}
	return &rev, nil
}

// History returns at most keep revisions of ref, newest first.
func (s *Store) History(ctx context.Context, ref Ref) ([]Revision, error) {
	query := `SELECT ` + columns + `
	    FROM   revision
	    WHERE  unit_kind = ? AND unit_id = ?
	    ORDER  BY version DESC
	    LIMIT  ?`
	revs := make([]Revision, 0, s.keep)
	if err := s.db.SelectContext(ctx, &revs, query, string(ref.Kind), ref.UnitID, s.keep); err != nil {
		return nil, fmt.Errorf("history %s: %w", ref, err)
	}
	return revs, nil
}

// Get returns revision id only when it belongs to ref.
func (s *Store) Get(ctx context.Context, ref Ref, id uint64) (*Revision, error) {
	return s.GetTx(ctx, s.db, ref, id)
}

// GetTx is Get against an arbitrary queryer.
func (s *Store) GetTx(ctx context.Context, q sqlx.QueryerContext, ref Ref, id uint64) (*Revision, error) {
	query := `SELECT ` + columns + `
	    FROM   revision
	    WHERE  id = ? AND unit_kind = ? AND unit_id = ?
	    LIMIT  1`
	var rev Revision
	err := sqlx.GetContext(ctx, q, &rev, query, id, string(ref.Kind), ref.UnitID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("revision", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get revision %d: %w", id, err)
	}
	return &rev, nil
}
