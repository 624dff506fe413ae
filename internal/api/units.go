// internal/api/units.go
//
// Editor endpoints shared by every content unit kind.
//
// Context
// -------
// Pages and collection items expose the same contract; only the metadata
// shape differs.  `unitHandler[M, P]` is instantiated once per kind and
// mounted under `/pages` and `/items`.
//
//	GET    /                      list (site, status, search, limit)
//	POST   /                      create draft         → 201 {unit, revision}
//	GET    /{id}                  head + latest        → {unit, revision}
//	PATCH  /{id}                  save draft           → {unit, revision}
//	POST   /{id}/publish          publish              → {unit, revision}
//	POST   /{id}/rollback/{rev}   rollback             → {unit, revision}
//	GET    /{id}/revisions        history, newest first
//	DELETE /{id}                  delete + cascade     → 204
//
// Request bodies are decoded twice: once into a small envelope holding the
// kind-independent fields (siteId, content, note) and once into the kind's
// metadata or patch type.  Both views read the same flat JSON object.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/auth"
	"github.com/yanizio/sitepress/internal/content"
	"github.com/yanizio/sitepress/internal/revision"
)

// Units is the content repository surface the handlers need.
// *content.Repository and contenttest.Memory both satisfy it.
type Units[M, P any] interface {
	Kind() revision.Kind
	List(ctx context.Context, scope content.Scope, f content.Filter) ([]content.Unit[M], error)
	Latest(ctx context.Context, scope content.Scope, id uint64) (*content.Unit[M], *revision.Revision, error)
	History(ctx context.Context, scope content.Scope, id uint64) ([]revision.Revision, error)
	CreateDraft(ctx context.Context, scope content.Scope, siteID uint64, meta M, snapshot json.RawMessage, authorID uint64) (*content.Unit[M], *revision.Revision, error)
	SaveDraft(ctx context.Context, scope content.Scope, id uint64, patch P, snapshot json.RawMessage, authorID uint64, note string) (*content.Unit[M], *revision.Revision, error)
	Delete(ctx context.Context, scope content.Scope, id uint64) (*content.Unit[M], error)
}

// Publisher drives state transitions.  *publish.Orchestrator satisfies it.
type Publisher[M any] interface {
	Publish(ctx context.Context, scope content.Scope, id, authorID uint64, snapshot json.RawMessage) (*content.Unit[M], *revision.Revision, error)
	Rollback(ctx context.Context, scope content.Scope, id, targetID, authorID uint64) (*content.Unit[M], *revision.Revision, error)
}

var errContentRequired = apperr.Invalid("content", "is required")

type unitHandler[M, P any] struct {
	api   *API
	units Units[M, P]
	pub   Publisher[M]
}

type unitEnvelope[M any] struct {
	Unit     *content.Unit[M]   `json:"unit"`
	Revision *revision.Revision `json:"revision"`
}

type createBody struct {
	SiteID  uint64          `json:"siteId" validate:"required"`
	Content json.RawMessage `json:"content"`
}

type saveBody struct {
	Content json.RawMessage `json:"content"`
	Note    string          `json:"note" validate:"max=255"`
}

type publishBody struct {
	Content json.RawMessage `json:"content"`
}

func (h *unitHandler[M, P]) routes(r chi.Router, writes func(http.Handler) http.Handler) {
	r.Get("/", h.list)
	r.With(writes).Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.With(writes).Patch("/", h.save)
		r.With(writes).Delete("/", h.remove)
		r.With(writes).Post("/publish", h.publish)
		r.With(writes).Post("/rollback/{revisionID}", h.rollback)
		r.Get("/revisions", h.revisions)
	})
}

// principal is always present: auth.Gateway runs first.
func principal(r *http.Request) (content.Scope, uint64) {
	p, _ := auth.FromContext(r.Context())
	return content.Scope{WorkspaceID: p.WorkspaceID}, p.UserID
}

func (h *unitHandler[M, P]) list(w http.ResponseWriter, r *http.Request) {
	scope, _ := principal(r)
	f, err := filterFrom(r)
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	units, err := h.units.List(r.Context(), scope, f)
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	if units == nil {
		units = []content.Unit[M]{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": units})
}

func filterFrom(r *http.Request) (content.Filter, error) {
	var f content.Filter
	var err error
	if f.SiteID, err = queryID(r, "site"); err != nil {
		return f, err
	}
	if f.Status, err = content.ParseStatus(r.URL.Query().Get("status")); err != nil {
		return f, err
	}
	limit, err := queryID(r, "limit")
	if err != nil {
		return f, err
	}
	f.Limit = int(limit)
	f.Search = r.URL.Query().Get("search")
	return f, nil
}

func (h *unitHandler[M, P]) create(w http.ResponseWriter, r *http.Request) {
	scope, author := principal(r)
	data, err := readBody(w, r)
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}

	var env createBody
	var meta M
	if err := firstErr(decode(data, &env), decode(data, &meta), check(env), check(meta)); err != nil {
		h.api.writeError(w, r, err)
		return
	}
	snapshot := env.Content
	if absent(snapshot) {
		snapshot = json.RawMessage(`{}`)
	}

	u, rev, err := h.units.CreateDraft(r.Context(), scope, env.SiteID, meta, snapshot, author)
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, unitEnvelope[M]{u, rev})
}

func (h *unitHandler[M, P]) get(w http.ResponseWriter, r *http.Request) {
	scope, _ := principal(r)
	id, err := pathID(r, "id")
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	u, rev, err := h.units.Latest(r.Context(), scope, id)
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unitEnvelope[M]{u, rev})
}

func (h *unitHandler[M, P]) save(w http.ResponseWriter, r *http.Request) {
	scope, author := principal(r)
	id, err := pathID(r, "id")
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}

	var env saveBody
	var patch P
	if err := firstErr(decode(data, &env), decode(data, &patch), check(env), check(patch)); err != nil {
		h.api.writeError(w, r, err)
		return
	}
	if absent(env.Content) {
		h.api.writeError(w, r, errContentRequired)
		return
	}

	u, rev, err := h.units.SaveDraft(r.Context(), scope, id, patch, env.Content, author, env.Note)
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unitEnvelope[M]{u, rev})
}

func (h *unitHandler[M, P]) publish(w http.ResponseWriter, r *http.Request) {
	scope, author := principal(r)
	id, err := pathID(r, "id")
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	var body publishBody
	if len(data) > 0 {
		if err := decode(data, &body); err != nil {
			h.api.writeError(w, r, err)
			return
		}
	}

	u, rev, err := h.pub.Publish(r.Context(), scope, id, author, body.Content)
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unitEnvelope[M]{u, rev})
}

func (h *unitHandler[M, P]) rollback(w http.ResponseWriter, r *http.Request) {
	scope, author := principal(r)
	id, err := pathID(r, "id")
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	target, err := pathID(r, "revisionID")
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}

	u, rev, err := h.pub.Rollback(r.Context(), scope, id, target, author)
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unitEnvelope[M]{u, rev})
}

func (h *unitHandler[M, P]) revisions(w http.ResponseWriter, r *http.Request) {
	scope, _ := principal(r)
	id, err := pathID(r, "id")
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	hist, err := h.units.History(r.Context(), scope, id)
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	if hist == nil {
		hist = []revision.Revision{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"revisions": hist})
}

// remove deletes the unit.  Deleting a published page takes it off the
// public site, so the cache is purged as well.
func (h *unitHandler[M, P]) remove(w http.ResponseWriter, r *http.Request) {
	scope, _ := principal(r)
	id, err := pathID(r, "id")
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}
	u, err := h.units.Delete(r.Context(), scope, id)
	if err != nil {
		h.api.writeError(w, r, err)
		return
	}

	h.api.log.Infow("unit deleted",
		"kind", string(h.units.Kind()), "unit", u.ID, "site", u.SiteID, "status", string(u.Status))
	if u.Status == content.StatusPublished && h.api.purger != nil {
		h.api.purger.Purge(u.SiteID, u.PublishedSlug)
	}
	w.WriteHeader(http.StatusNoContent)
}

func absent(raw json.RawMessage) bool {
	s := string(raw)
	return len(raw) == 0 || s == "null"
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
