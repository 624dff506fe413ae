package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/site"
)

// Domains is the binding store surface.  *site.Store satisfies it.
type Domains interface {
	Bindings(ctx context.Context, workspaceID, siteID uint64) ([]site.Binding, error)
	Bind(ctx context.Context, workspaceID, siteID uint64, hostname string) (*site.Binding, error)
	Unbind(ctx context.Context, workspaceID, siteID uint64, hostname string) error
}

// Hosts is the resolver cache surface.  *host.Resolver satisfies it.
type Hosts interface {
	IsPlatformHost(h string) bool
	Invalidate(hostname string)
}

type bindBody struct {
	Hostname string `json:"hostname" validate:"required,max=253"`
}

func (a *API) domainRoutes(r chi.Router, writes func(http.Handler) http.Handler) {
	r.Get("/{id}/domains", a.listDomains)
	r.With(writes).Post("/{id}/domains", a.bindDomain)
	r.With(writes).Delete("/{id}/domains/{hostname}", a.unbindDomain)
}

func (a *API) listDomains(w http.ResponseWriter, r *http.Request) {
	scope, _ := principal(r)
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	list, err := a.domains.Bindings(r.Context(), scope.WorkspaceID, id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domains": list})
}

// bindDomain attaches a custom hostname.  Hostnames under the platform
// domain are refused: a binding there would outrank another tenant's
// slug subdomain.
func (a *API) bindDomain(w http.ResponseWriter, r *http.Request) {
	scope, _ := principal(r)
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	data, err := readBody(w, r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var body bindBody
	if err := firstErr(decode(data, &body), check(body)); err != nil {
		a.writeError(w, r, err)
		return
	}
	if a.hosts != nil && a.hosts.IsPlatformHost(body.Hostname) {
		a.writeError(w, r, apperr.Invalid("hostname", "%q is under the platform domain", body.Hostname))
		return
	}

	b, err := a.domains.Bind(r.Context(), scope.WorkspaceID, id, body.Hostname)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if a.hosts != nil {
		a.hosts.Invalidate(b.Hostname)
	}
	a.log.Infow("domain bound", "site", id, "hostname", b.Hostname, "workspace", scope.WorkspaceID)
	writeJSON(w, http.StatusCreated, b)
}

func (a *API) unbindDomain(w http.ResponseWriter, r *http.Request) {
	scope, _ := principal(r)
	id, err := pathID(r, "id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	hostname := site.CanonicalHost(chi.URLParam(r, "hostname"))
	if err := a.domains.Unbind(r.Context(), scope.WorkspaceID, id, hostname); err != nil {
		a.writeError(w, r, err)
		return
	}
	if a.hosts != nil {
		a.hosts.Invalidate(hostname)
	}
	a.log.Infow("domain unbound", "site", id, "hostname", hostname, "workspace", scope.WorkspaceID)
	w.WriteHeader(http.StatusNoContent)
}
