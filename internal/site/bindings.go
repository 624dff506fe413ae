// internal/site/bindings.go
//
// Domain binding management.
//
// Hostnames are stored canonical: lower-case, no port, no trailing dot.
// The `hostname` column is UNIQUE, so one hostname can never point at two
// sites; a second bind attempt surfaces as apperr.ConflictError.  Every
// call is scoped by workspace, and a site of another workspace is reported
// as not found.
package site

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/yanizio/sitepress/internal/apperr"
	"github.com/yanizio/sitepress/internal/database"
)

// CanonicalHost lower-cases h and strips any port and trailing dot.
func CanonicalHost(h string) string {
	h = strings.TrimSpace(h)
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	h = strings.Trim(h, "[]")
	return strings.TrimSuffix(strings.ToLower(h), ".")
}

// ValidHostname reports whether h is a canonical DNS name with at least two
// labels.
func ValidHostname(h string) bool {
	if len(h) == 0 || len(h) > 253 || !strings.Contains(h, ".") {
		return false
	}
	for _, label := range strings.Split(h, ".") {
		if len(label) == 0 || len(label) > 63 || label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
	}
	return true
}

// Bindings lists the hostnames bound to site id, oldest first.
func (s *Store) Bindings(ctx context.Context, workspaceID, siteID uint64) ([]Binding, error) {
	if _, err := s.Owned(ctx, workspaceID, siteID); err != nil {
		return nil, err
	}
	const q = `
        SELECT id, site_id, hostname, created_at
        FROM   domain_binding
        WHERE  site_id = ?
        ORDER  BY id`
	out := []Binding{}
	if err := s.db.SelectContext(ctx, &out, q, siteID); err != nil {
		return nil, fmt.Errorf("bindings of site %d: %w", siteID, err)
	}
	return out, nil
}

// Bind attaches hostname to site id.
func (s *Store) Bind(ctx context.Context, workspaceID, siteID uint64, hostname string) (*Binding, error) {
	host := CanonicalHost(hostname)
	if !ValidHostname(host) {
		return nil, apperr.Invalid("hostname", "%q is not a valid hostname", hostname)
	}
	if _, err := s.Owned(ctx, workspaceID, siteID); err != nil {
		return nil, err
	}

	b := &Binding{SiteID: siteID, Hostname: host, CreatedAt: time.Now().UTC()}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO domain_binding (site_id, hostname, created_at) VALUES (?, ?, ?)`,
		b.SiteID, b.Hostname, b.CreatedAt)
	if err != nil {
		if database.IsDuplicate(err) {
			return nil, apperr.Conflict("domain binding", host)
		}
		return nil, fmt.Errorf("bind %s: %w", host, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", host, err)
	}
	b.ID = uint64(id)
	return b, nil
}

// Unbind removes hostname from site id.
func (s *Store) Unbind(ctx context.Context, workspaceID, siteID uint64, hostname string) error {
	host := CanonicalHost(hostname)
	if _, err := s.Owned(ctx, workspaceID, siteID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM domain_binding WHERE site_id = ? AND hostname = ?`, siteID, host)
	if err != nil {
		return fmt.Errorf("unbind %s: %w", host, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("domain binding", host)
	}
	return nil
}
