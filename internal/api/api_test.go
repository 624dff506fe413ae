package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/auth"
	"github.com/yanizio/sitepress/internal/content"
	"github.com/yanizio/sitepress/internal/content/contenttest"
	"github.com/yanizio/sitepress/internal/menu"
	"github.com/yanizio/sitepress/internal/publish"
	"github.com/yanizio/sitepress/internal/revision"
	"github.com/yanizio/sitepress/internal/site"
)

/*──────────────────────────── fakes ─────────────────────────────────────*/

type purgeRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (p *purgeRecorder) Purge(siteID uint64, slug string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, fmt.Sprintf("%d/%s", siteID, slug))
}

func (p *purgeRecorder) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type fakeMenus struct {
	menu  menu.Menu
	items []menu.Item
}

func (f *fakeMenus) Get(_ context.Context, ws, id uint64) (*menu.Menu, error) {
	if id != f.menu.ID || ws != f.menu.WorkspaceID {
		return nil, apperr.NotFound("menu", id)
	}
	m := f.menu
	return &m, nil
}

func (f *fakeMenus) Items(ctx context.Context, ws, id uint64) ([]menu.Item, error) {
	if _, err := f.Get(ctx, ws, id); err != nil {
		return nil, err
	}
	out := append([]menu.Item(nil), f.items...)
	menu.SortItems(out)
	return out, nil
}

func (f *fakeMenus) Reorder(ctx context.Context, ws, id uint64, nodes []menu.Node) ([]menu.Item, error) {
	if _, err := f.Get(ctx, ws, id); err != nil {
		return nil, err
	}
	if err := menu.Validate(id, f.items, nodes); err != nil {
		return nil, err
	}
	for _, n := range nodes {
		for i := range f.items {
			if f.items[i].ID == n.ID {
				f.items[i].ParentID = n.ParentID
				f.items[i].SortOrder = n.SortOrder
			}
		}
	}
	return f.Items(ctx, ws, id)
}

type fakeDomains struct {
	bound map[string]uint64 // hostname → site
	fail  error
}

func (f *fakeDomains) Bindings(_ context.Context, ws, siteID uint64) ([]site.Binding, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	if siteID != 10 || ws != 1 {
		return nil, apperr.NotFound("site", siteID)
	}
	out := []site.Binding{}
	for h, s := range f.bound {
		if s == siteID {
			out = append(out, site.Binding{SiteID: s, Hostname: h})
		}
	}
	return out, nil
}

func (f *fakeDomains) Bind(_ context.Context, ws, siteID uint64, hostname string) (*site.Binding, error) {
	if siteID != 10 || ws != 1 {
		return nil, apperr.NotFound("site", siteID)
	}
	h := site.CanonicalHost(hostname)
	if _, dup := f.bound[h]; dup {
		return nil, apperr.Conflict("domain binding", h)
	}
	f.bound[h] = siteID
	return &site.Binding{ID: 1, SiteID: siteID, Hostname: h}, nil
}

func (f *fakeDomains) Unbind(_ context.Context, ws, siteID uint64, hostname string) error {
	if siteID != 10 || ws != 1 {
		return apperr.NotFound("site", siteID)
	}
	if _, ok := f.bound[hostname]; !ok {
		return apperr.NotFound("domain binding", hostname)
	}
	delete(f.bound, hostname)
	return nil
}

type fakeHosts struct{ invalidated []string }

func (f *fakeHosts) IsPlatformHost(h string) bool {
	h = site.CanonicalHost(h)
	return h == "sitepress.app" || strings.HasSuffix(h, ".sitepress.app")
}

func (f *fakeHosts) Invalidate(h string) { f.invalidated = append(f.invalidated, h) }

/*──────────────────────────── harness ───────────────────────────────────*/

type harness struct {
	h       http.Handler
	pages   *contenttest.Memory[content.PageMeta, content.PagePatch]
	items   *contenttest.Memory[content.ItemMeta, content.ItemPatch]
	purged  *purgeRecorder
	menus   *fakeMenus
	domains *fakeDomains
	hosts   *fakeHosts
}

func newHarness(t *testing.T, limit func(http.Handler) http.Handler) *harness {
	t.Helper()
	log := zap.NewNop().Sugar()
	hs := &harness{
		pages:  contenttest.NewPages(),
		items:  contenttest.NewItems(),
		purged: &purgeRecorder{},
		menus: &fakeMenus{
			menu: menu.Menu{ID: 5, WorkspaceID: 1, SiteID: 10, Name: "Main"},
			items: []menu.Item{
				{ID: 1, MenuID: 5, Label: "A"},
				{ID: 2, MenuID: 5, Label: "B", SortOrder: 1},
				{ID: 3, MenuID: 5, Label: "C", SortOrder: 2},
			},
		},
		domains: &fakeDomains{bound: map[string]uint64{}},
		hosts:   &fakeHosts{},
	}
	hs.pages.AddSite(10, 1)
	hs.items.AddSite(10, 1)

	a := New(Config{
		Pages:         hs.pages,
		PagePublisher: publish.New[content.PageMeta](hs.pages, hs.purged, publish.WithLogger(log)),
		Items:         hs.items,
		ItemPublisher: publish.New[content.ItemMeta](hs.items, hs.purged, publish.WithLogger(log)),
		Menus:         hs.menus,
		Domains:       hs.domains,
		Hosts:         hs.hosts,
		Purger:        hs.purged,
		Limit:         limit,
		Log:           log,
	})
	hs.h = a.Routes()
	return hs
}

func (hs *harness) do(t *testing.T, ws uint64, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if ws != 0 {
		req.Header.Set(auth.HeaderWorkspace, fmt.Sprint(ws))
		req.Header.Set(auth.HeaderUser, "7")
	}
	rec := httptest.NewRecorder()
	hs.h.ServeHTTP(rec, req)
	return rec
}

type pageEnvelope struct {
	Unit     content.Unit[content.PageMeta] `json:"unit"`
	Revision revision.Revision              `json:"revision"`
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, want, rec.Body.String())
	}
}

const createHome = `{"siteId":10,"title":"Home","content":{"blocks":["hello"]}}`

/*──────────────────────────── tests ─────────────────────────────────────*/

func TestAuthRequiredAndNoStore(t *testing.T) {
	hs := newHarness(t, nil)
	rec := hs.do(t, 0, http.MethodGet, "/pages", "")
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = hs.do(t, 1, http.MethodGet, "/pages", "")
	expectStatus(t, rec, http.StatusOK)
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("Cache-Control = %q, want no-store", cc)
	}
}

func TestCreatePage(t *testing.T) {
	hs := newHarness(t, nil)

	rec := hs.do(t, 1, http.MethodPost, "/pages", createHome)
	expectStatus(t, rec, http.StatusCreated)
	env := decodeBody[pageEnvelope](t, rec)
	if env.Unit.Meta.Slug != "home" || env.Unit.Status != content.StatusDraft {
		t.Fatalf("unexpected unit %+v", env.Unit)
	}
	if env.Revision.Version != 1 || env.Revision.Note == nil || *env.Revision.Note != revision.NoteInitial {
		t.Fatalf("unexpected revision %+v", env.Revision)
	}

	cases := []struct {
		name string
		ws   uint64
		body string
		want int
	}{
		{"duplicate slug", 1, createHome, http.StatusConflict},
		{"malformed json", 1, `{"siteId":`, http.StatusBadRequest},
		{"missing title", 1, `{"siteId":10,"content":{}}`, http.StatusBadRequest},
		{"missing site", 1, `{"title":"About"}`, http.StatusBadRequest},
		{"foreign site", 2, `{"siteId":10,"title":"About"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			expectStatus(t, hs.do(t, tc.ws, http.MethodPost, "/pages", tc.body), tc.want)
		})
	}
}

func TestSaveDraft_PartialPatchKeepsStatus(t *testing.T) {
	hs := newHarness(t, nil)
	env := decodeBody[pageEnvelope](t, hs.do(t, 1, http.MethodPost, "/pages",
		`{"siteId":10,"title":"Home","description":"Welcome","content":{}}`))
	path := fmt.Sprintf("/pages/%d", env.Unit.ID)

	expectStatus(t, hs.do(t, 1, http.MethodPatch, path, `{"title":"Start"}`), http.StatusBadRequest)

	rec := hs.do(t, 1, http.MethodPatch, path, `{"title":"Start","content":{"v":2},"note":"tweak"}`)
	expectStatus(t, rec, http.StatusOK)
	got := decodeBody[pageEnvelope](t, rec)
	if got.Unit.Meta.Title != "Start" || got.Unit.Meta.Description != "Welcome" {
		t.Fatalf("patch clobbered fields: %+v", got.Unit.Meta)
	}
	if got.Unit.Status != content.StatusDraft || got.Revision.Version != 2 || *got.Revision.Note != "tweak" {
		t.Fatalf("unexpected result %+v / %+v", got.Unit, got.Revision)
	}

	expectStatus(t, hs.do(t, 2, http.MethodPatch, path, `{"content":{}}`), http.StatusNotFound)
	expectStatus(t, hs.do(t, 1, http.MethodPatch, "/pages/abc", `{"content":{}}`), http.StatusBadRequest)
}

func TestPublishRollbackAndRevisions(t *testing.T) {
	hs := newHarness(t, nil)
	env := decodeBody[pageEnvelope](t, hs.do(t, 1, http.MethodPost, "/pages", createHome))
	path := fmt.Sprintf("/pages/%d", env.Unit.ID)
	v1 := env.Revision.ID

	for n := 2; n <= 12; n++ {
		expectStatus(t, hs.do(t, 1, http.MethodPatch, path, fmt.Sprintf(`{"content":{"n":%d}}`, n)), http.StatusOK)
	}

	rec := hs.do(t, 1, http.MethodPost, path+"/publish", "")
	expectStatus(t, rec, http.StatusOK)
	pub := decodeBody[pageEnvelope](t, rec)
	if pub.Unit.Status != content.StatusPublished || pub.Unit.PublishedAt == nil {
		t.Fatalf("not published: %+v", pub.Unit)
	}
	if string(pub.Revision.Snapshot) != `{"n":12}` || *pub.Revision.Note != revision.NotePublished {
		t.Fatalf("unexpected publish revision %+v", pub.Revision)
	}
	if calls := hs.purged.snapshot(); len(calls) != 1 || calls[0] != "10/home" {
		t.Fatalf("purge calls = %v", calls)
	}

	rec = hs.do(t, 1, http.MethodGet, path+"/revisions", "")
	expectStatus(t, rec, http.StatusOK)
	hist := decodeBody[struct {
		Revisions []revision.Revision `json:"revisions"`
	}](t, rec).Revisions
	if len(hist) != 10 || hist[0].Version != 13 || hist[9].Version != 4 {
		t.Fatalf("history spans %d entries v%d..v%d", len(hist), hist[0].Version, hist[len(hist)-1].Version)
	}

	// v1 was pruned; rolling back to it is a 404.
	expectStatus(t, hs.do(t, 1, http.MethodPost, fmt.Sprintf("%s/rollback/%d", path, v1), ""), http.StatusNotFound)

	target := hist[5]
	rec = hs.do(t, 1, http.MethodPost, fmt.Sprintf("%s/rollback/%d", path, target.ID), "")
	expectStatus(t, rec, http.StatusOK)
	rb := decodeBody[pageEnvelope](t, rec)
	if rb.Revision.Version != 14 || string(rb.Revision.Snapshot) != string(target.Snapshot) {
		t.Fatalf("unexpected rollback revision %+v", rb.Revision)
	}
	if *rb.Revision.Note != revision.RollbackNote(target.Version) {
		t.Fatalf("note = %q", *rb.Revision.Note)
	}
}

func TestPublish_ExplicitContentAndMalformedBody(t *testing.T) {
	hs := newHarness(t, nil)
	env := decodeBody[pageEnvelope](t, hs.do(t, 1, http.MethodPost, "/pages", createHome))
	path := fmt.Sprintf("/pages/%d/publish", env.Unit.ID)

	expectStatus(t, hs.do(t, 1, http.MethodPost, path, `{"content":`), http.StatusBadRequest)

	rec := hs.do(t, 1, http.MethodPost, path, `{"content":{"hotfix":true}}`)
	expectStatus(t, rec, http.StatusOK)
	if got := decodeBody[pageEnvelope](t, rec).Revision.Snapshot; string(got) != `{"hotfix":true}` {
		t.Fatalf("snapshot = %s", got)
	}
}

func TestDelete_PurgesPublishedPages(t *testing.T) {
	hs := newHarness(t, nil)
	draft := decodeBody[pageEnvelope](t, hs.do(t, 1, http.MethodPost, "/pages", `{"siteId":10,"title":"Draft"}`))
	live := decodeBody[pageEnvelope](t, hs.do(t, 1, http.MethodPost, "/pages", createHome))
	expectStatus(t, hs.do(t, 1, http.MethodPost, fmt.Sprintf("/pages/%d/publish", live.Unit.ID), ""), http.StatusOK)

	expectStatus(t, hs.do(t, 2, http.MethodDelete, fmt.Sprintf("/pages/%d", live.Unit.ID), ""), http.StatusNotFound)

	before := len(hs.purged.snapshot())
	expectStatus(t, hs.do(t, 1, http.MethodDelete, fmt.Sprintf("/pages/%d", draft.Unit.ID), ""), http.StatusNoContent)
	if len(hs.purged.snapshot()) != before {
		t.Fatal("deleting a draft purged the cache")
	}
	expectStatus(t, hs.do(t, 1, http.MethodDelete, fmt.Sprintf("/pages/%d", live.Unit.ID), ""), http.StatusNoContent)
	if calls := hs.purged.snapshot(); len(calls) != before+1 || calls[len(calls)-1] != "10/home" {
		t.Fatalf("purge calls = %v", calls)
	}
	expectStatus(t, hs.do(t, 1, http.MethodGet, fmt.Sprintf("/pages/%d", live.Unit.ID), ""), http.StatusNotFound)
	if n := hs.pages.RevisionCount(live.Unit.ID); n != 0 {
		t.Fatalf("%d revisions survive delete", n)
	}
}

func TestListFilters(t *testing.T) {
	hs := newHarness(t, nil)
	hs.do(t, 1, http.MethodPost, "/pages", createHome)
	hs.do(t, 1, http.MethodPost, "/pages", `{"siteId":10,"title":"About us"}`)

	rec := hs.do(t, 1, http.MethodGet, "/pages?site=10&search=about", "")
	expectStatus(t, rec, http.StatusOK)
	units := decodeBody[struct {
		Units []content.Unit[content.PageMeta] `json:"units"`
	}](t, rec).Units
	if len(units) != 1 || units[0].Meta.Slug != "about-us" {
		t.Fatalf("units = %+v", units)
	}

	expectStatus(t, hs.do(t, 1, http.MethodGet, "/pages?status=live", ""), http.StatusBadRequest)
	expectStatus(t, hs.do(t, 1, http.MethodGet, "/pages?site=x", ""), http.StatusBadRequest)

	rec = hs.do(t, 2, http.MethodGet, "/pages", "")
	if body := strings.TrimSpace(rec.Body.String()); body != `{"units":[]}` {
		t.Fatalf("other workspace sees %s", body)
	}
}

func TestItems(t *testing.T) {
	hs := newHarness(t, nil)
	rec := hs.do(t, 1, http.MethodPost, "/items", `{"siteId":10,"collectionId":3,"title":"Anvil","content":{"price":10}}`)
	expectStatus(t, rec, http.StatusCreated)
	env := decodeBody[struct {
		Unit content.Unit[content.ItemMeta] `json:"unit"`
	}](t, rec)

	expectStatus(t, hs.do(t, 1, http.MethodPost, "/items", `{"siteId":10,"title":"Anvil"}`), http.StatusBadRequest)

	expectStatus(t, hs.do(t, 1, http.MethodPost, fmt.Sprintf("/items/%d/publish", env.Unit.ID), ""), http.StatusOK)
	calls := hs.purged.snapshot()
	if len(calls) != 1 || calls[0] != "10/" {
		t.Fatalf("item purge calls = %v", calls)
	}
}

func TestMenus(t *testing.T) {
	hs := newHarness(t, nil)

	rec := hs.do(t, 1, http.MethodGet, "/menus/5", "")
	expectStatus(t, rec, http.StatusOK)

	rec = hs.do(t, 1, http.MethodPut, "/menus/5/reorder",
		`[{"id":1,"parentId":null,"sortOrder":0},{"id":2,"parentId":1,"sortOrder":0},{"id":3,"parentId":null,"sortOrder":1}]`)
	expectStatus(t, rec, http.StatusOK)
	view := decodeBody[struct {
		Items []menu.Item      `json:"items"`
		Tree  []*menu.TreeNode `json:"tree"`
	}](t, rec)
	if len(view.Tree) != 2 || view.Tree[0].Label != "A" || len(view.Tree[0].Children) != 1 ||
		view.Tree[0].Children[0].Label != "B" || view.Tree[1].Label != "C" {
		t.Fatalf("unexpected tree %s", rec.Body.String())
	}

	cases := []struct {
		name string
		ws   uint64
		path string
		body string
		want int
	}{
		{"cycle", 1, "/menus/5/reorder", `[{"id":1,"parentId":2},{"id":2,"parentId":1}]`, http.StatusBadRequest},
		{"foreign item", 1, "/menus/5/reorder", `[{"id":99}]`, http.StatusBadRequest},
		{"empty", 1, "/menus/5/reorder", `[]`, http.StatusBadRequest},
		{"zero id", 1, "/menus/5/reorder", `[{"id":0}]`, http.StatusBadRequest},
		{"foreign menu", 2, "/menus/5/reorder", `[{"id":1}]`, http.StatusNotFound},
		{"unknown menu", 1, "/menus/6", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			method := http.MethodPut
			if tc.body == "" {
				method = http.MethodGet
			}
			expectStatus(t, hs.do(t, tc.ws, method, tc.path, tc.body), tc.want)
		})
	}
}

func TestDomains(t *testing.T) {
	hs := newHarness(t, nil)

	expectStatus(t, hs.do(t, 1, http.MethodPost, "/sites/10/domains", `{"hostname":"shop.sitepress.app"}`), http.StatusBadRequest)
	expectStatus(t, hs.do(t, 1, http.MethodPost, "/sites/10/domains", `{}`), http.StatusBadRequest)

	rec := hs.do(t, 1, http.MethodPost, "/sites/10/domains", `{"hostname":"WWW.Acme.com"}`)
	expectStatus(t, rec, http.StatusCreated)
	expectStatus(t, hs.do(t, 1, http.MethodPost, "/sites/10/domains", `{"hostname":"www.acme.com"}`), http.StatusConflict)
	expectStatus(t, hs.do(t, 2, http.MethodPost, "/sites/10/domains", `{"hostname":"www.other.com"}`), http.StatusNotFound)

	rec = hs.do(t, 1, http.MethodGet, "/sites/10/domains", "")
	expectStatus(t, rec, http.StatusOK)
	if !strings.Contains(rec.Body.String(), `"hostname":"www.acme.com"`) {
		t.Fatalf("listing = %s", rec.Body.String())
	}

	expectStatus(t, hs.do(t, 1, http.MethodDelete, "/sites/10/domains/www.acme.com", ""), http.StatusNoContent)
	expectStatus(t, hs.do(t, 1, http.MethodDelete, "/sites/10/domains/www.acme.com", ""), http.StatusNotFound)

	want := []string{"www.acme.com", "www.acme.com"}
	if fmt.Sprint(hs.hosts.invalidated) != fmt.Sprint(want) {
		t.Fatalf("invalidated = %v, want %v", hs.hosts.invalidated, want)
	}
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	hs := newHarness(t, nil)
	hs.domains.fail = errors.New("dial tcp 10.0.0.5:3306: connection refused")

	rec := hs.do(t, 1, http.MethodGet, "/sites/10/domains", "")
	expectStatus(t, rec, http.StatusInternalServerError)
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	hs := newHarness(t, deny)

	expectStatus(t, hs.do(t, 1, http.MethodPost, "/pages", createHome), http.StatusTooManyRequests)
	expectStatus(t, hs.do(t, 1, http.MethodPut, "/menus/5/reorder", `[{"id":1}]`), http.StatusTooManyRequests)
	expectStatus(t, hs.do(t, 1, http.MethodGet, "/pages", ""), http.StatusOK)
	expectStatus(t, hs.do(t, 1, http.MethodGet, "/menus/5", ""), http.StatusOK)
}
