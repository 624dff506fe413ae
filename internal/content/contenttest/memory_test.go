package contenttest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/content"
)

var ws = content.Scope{WorkspaceID: 1}

func TestMemory_TwelveRevisionsKeepsNewestTen(t *testing.T) {
	ctx := context.Background()
	pages := NewPages()
	pages.AddSite(10, 1)

	u, _, err := pages.CreateDraft(ctx, ws, 10, content.PageMeta{Title: "Home"}, json.RawMessage(`{"n":1}`), 7)
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	for n := 2; n <= 12; n++ {
		snap := json.RawMessage(fmt.Sprintf(`{"n":%d}`, n))
		if _, _, err := pages.SaveDraft(ctx, ws, u.ID, content.PagePatch{}, snap, 7, ""); err != nil {
			t.Fatalf("SaveDraft %d: %v", n, err)
		}
	}

	hist, err := pages.History(ctx, ws, u.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 10 {
		t.Fatalf("history length = %d, want 10", len(hist))
	}
	if hist[0].Version != 12 || hist[len(hist)-1].Version != 3 {
		t.Fatalf("history spans v%d..v%d, want v12..v3", hist[0].Version, hist[len(hist)-1].Version)
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].Version != hist[i-1].Version-1 {
			t.Fatalf("gap between v%d and v%d", hist[i-1].Version, hist[i].Version)
		}
	}
}

func TestMemory_FailedMutationLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	pages := NewPages()
	pages.AddSite(10, 1)
	u, _, _ := pages.CreateDraft(ctx, ws, 10, content.PageMeta{Title: "Home"}, json.RawMessage(`{}`), 7)

	boom := errors.New("boom")
	_, err := pages.Mutate(ctx, ws, u.ID, func(m content.Mutation[content.PageMeta]) error {
		if _, err := m.Append(json.RawMessage(`{"x":1}`), 7, ""); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	_, latest, _ := pages.Latest(ctx, ws, u.ID)
	if latest.Version != 1 {
		t.Fatalf("latest version = %d after failed mutation, want 1", latest.Version)
	}

	_, rev, err := pages.SaveDraft(ctx, ws, u.ID, content.PagePatch{}, json.RawMessage(`{"x":2}`), 7, "")
	if err != nil || rev.Version != 2 {
		t.Fatalf("next save = %+v, %v; want v2", rev, err)
	}
}

func TestMemory_ScopeAndConflict(t *testing.T) {
	ctx := context.Background()
	pages := NewPages()
	pages.AddSite(10, 1)
	u, _, _ := pages.CreateDraft(ctx, ws, 10, content.PageMeta{Title: "Home"}, json.RawMessage(`{}`), 7)

	if _, err := pages.Get(ctx, content.Scope{WorkspaceID: 2}, u.ID); !apperr.IsNotFound(err) {
		t.Fatalf("cross-tenant Get err = %v", err)
	}
	if _, _, err := pages.CreateDraft(ctx, ws, 10, content.PageMeta{Title: "home"}, json.RawMessage(`{}`), 7); !apperr.IsConflict(err) {
		t.Fatalf("duplicate slug err = %v", err)
	}
	if _, err := pages.Delete(ctx, ws, u.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n := pages.RevisionCount(u.ID); n != 0 {
		t.Fatalf("%d revisions survive delete", n)
	}
}
