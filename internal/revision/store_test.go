// internal/revision/store_test.go
//
// Unit-tests for the retention rule and the SQL store using sqlmock.
//
// Run: go test ./internal/revision -v

package revision

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/yanizio/sitepress/internal/apperr"
)

func newStore(t *testing.T, opts ...Option) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { raw.Close() })
	opts = append([]Option{WithLogger(zap.NewNop().Sugar())}, opts...)
	return NewStore(sqlx.NewDb(raw, "mysql"), opts...), mock
}

var revCols = []string{"id", "unit_kind", "unit_id", "version", "content_snapshot", "author_id", "note", "created_at"}

func TestSurplus(t *testing.T) {
	seq := func(from, to int) []int {
		var out []int
		for v := from; v <= to; v++ {
			out = append(out, v)
		}
		return out
	}
	cases := []struct {
		name     string
		versions []int
		keep     int
		want     []int
	}{
		{"empty", nil, 10, nil},
		{"under cap", seq(1, 9), 10, nil},
		{"at cap", seq(1, 10), 10, nil},
		{"twelve appends", seq(1, 12), 10, []int{1, 2}},
		{"unordered input", []int{12, 3, 1, 11, 2, 4, 5, 6, 7, 8, 9, 10}, 10, []int{1, 2}},
		{"gaps from earlier prunes", []int{3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13}, 10, []int{3}},
		{"keep one", []int{1, 2, 3}, 1, []int{1, 2}},
		{"keep clamps to one", []int{5, 6}, 0, []int{5}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Surplus(tc.versions, tc.keep)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("Surplus = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestSurplus_NeverDropsNewest(t *testing.T) {
	for n := 1; n <= 30; n++ {
		versions := make([]int, n)
		for i := range versions {
			versions[i] = i + 1
		}
		for _, v := range Surplus(versions, DefaultKeep) {
			if v == n {
				t.Fatalf("n=%d: newest version %d selected for pruning", n, v)
			}
		}
		if kept := n - len(Surplus(versions, DefaultKeep)); kept > DefaultKeep {
			t.Fatalf("n=%d: %d kept, cap is %d", n, kept, DefaultKeep)
		}
	}
}

func TestRollbackNote(t *testing.T) {
	if got := RollbackNote(4); got != "Rollback to v4" {
		t.Fatalf("RollbackNote = %q", got)
	}
}

func TestKindTable(t *testing.T) {
	if tbl, err := KindItem.Table(); err != nil || tbl != "collection_item" {
		t.Fatalf("KindItem.Table() = %q, %v", tbl, err)
	}
	if _, err := Kind("site; DROP TABLE x").Table(); err == nil {
		t.Fatal("unknown kind accepted")
	}
}

func TestAppend_AllocatesNextVersionAndPrunes(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s, mock := newStore(t, WithClock(func() time.Time { return fixed }))
	ref := Ref{Kind: KindPage, UnitID: 7}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM page WHERE id = \? FOR UPDATE`).
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(version\), 0\) \+ 1`).
		WithArgs("page", 7).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(4))
	mock.ExpectExec(`INSERT INTO revision`).
		WithArgs("page", 7, 4, []byte(`{"body":"hi"}`), 3, sqlmock.AnyArg(), fixed).
		WillReturnResult(sqlmock.NewResult(91, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT version\s+FROM\s+revision`).
		WithArgs("page", 7).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(4).AddRow(3).AddRow(2).AddRow(1))

	rev, err := s.Append(context.Background(), ref, json.RawMessage(`{"body":"hi"}`), 3, nil)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if rev.ID != 91 || rev.Version != 4 || rev.UnitKind != KindPage || !rev.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected revision %+v", rev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestAppend_MissingUnitIsValidation(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM collection_item WHERE id = \? FOR UPDATE`).
		WithArgs(404).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := s.Append(context.Background(), Ref{Kind: KindItem, UnitID: 404}, json.RawMessage(`{}`), 1, nil)
	if !apperr.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestAppend_RejectsInvalidSnapshot(t *testing.T) {
	s, mock := newStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectRollback()

	_, err := s.Append(context.Background(), Ref{Kind: KindPage, UnitID: 1}, json.RawMessage(`{"broken"`), 1, nil)
	if !apperr.IsValidation(err) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestPrune_TwelveAppendsKeepsThreeThroughTwelve(t *testing.T) {
	s, mock := newStore(t)
	ref := Ref{Kind: KindPage, UnitID: 5}

	rows := sqlmock.NewRows([]string{"version"})
	for v := 12; v >= 1; v-- {
		rows.AddRow(v)
	}
	mock.ExpectQuery(`SELECT version`).WithArgs("page", 5).WillReturnRows(rows)
	mock.ExpectExec(`DELETE FROM revision\s+WHERE\s+unit_kind = \? AND unit_id = \? AND version <= \?`).
		WithArgs("page", 5, 2).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := s.Prune(context.Background(), ref); err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestPruneQuietly_SwallowsErrors(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery(`SELECT version`).WillReturnError(errors.New("lock wait timeout"))

	// Must not panic or surface the error.
	s.PruneQuietly(context.Background(), Ref{Kind: KindPage, UnitID: 1})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestHistory_NewestFirstWithCap(t *testing.T) {
	s, mock := newStore(t, WithKeep(3))
	now := time.Now()
	mock.ExpectQuery(`ORDER\s+BY version DESC\s+LIMIT\s+\?`).
		WithArgs("page", 9, 3).
		WillReturnRows(sqlmock.NewRows(revCols).
			AddRow(30, "page", 9, 6, []byte(`{"v":6}`), 1, nil, now).
			AddRow(29, "page", 9, 5, []byte(`{"v":5}`), 1, "Published.", now).
			AddRow(28, "page", 9, 4, []byte(`{"v":4}`), 1, nil, now))

	revs, err := s.History(context.Background(), Ref{Kind: KindPage, UnitID: 9})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(revs) != 3 || revs[0].Version != 6 || revs[2].Version != 4 {
		t.Fatalf("unexpected history %+v", revs)
	}
	if revs[1].Note == nil || *revs[1].Note != NotePublished {
		t.Fatalf("note not scanned: %+v", revs[1])
	}
	if string(revs[0].Snapshot) != `{"v":6}` {
		t.Fatalf("snapshot = %s", revs[0].Snapshot)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestGet_ScopedToUnit(t *testing.T) {
	s, mock := newStore(t)
	// Revision 50 exists but belongs to another unit; the scoped query
	// returns no rows.
	mock.ExpectQuery(`WHERE\s+id = \? AND unit_kind = \? AND unit_id = \?`).
		WithArgs(50, "page", 1).
		WillReturnRows(sqlmock.NewRows(revCols))

	_, err := s.Get(context.Background(), Ref{Kind: KindPage, UnitID: 1}, 50)
	if !apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestLatest_NoRevisions(t *testing.T) {
	s, mock := newStore(t)
	mock.ExpectQuery(`LIMIT\s+1`).
		WithArgs("collection_item", 3).
		WillReturnRows(sqlmock.NewRows(revCols))

	if _, err := s.Latest(context.Background(), Ref{Kind: KindItem, UnitID: 3}); !apperr.IsNotFound(err) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}
