// internal/config/model.go
//
// Typed configuration model for SitePress.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   - optional `.env`                             – dotenv values,
//   - `conf/global.yaml`                          – primary static file,
//   - `SITEPRESS_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client *before* unmarshalling, so the model never
// stores Vault URIs, only plain strings.
//
// `Default()` seeds every tunable; the loader unmarshals on top of it, so
// YAML only needs to name what differs.  Validation happens immediately
// after unmarshal; the app fails fast if required fields are missing.
//
// Notes
// -----
//   - Struct tags use `koanf:"…"`, not `yaml:"…"`.  Koanf ignores `yaml`
//     tags unless configured otherwise.
//   - The `Paths` block is filled at runtime; YAML must not try to set it.
//   - Oxford commas, two spaces after periods.  No em-dash.
package config

import (
	"time"

	"github.com/yanizio/sitepress/internal/cachectl"
	"github.com/yanizio/sitepress/internal/database"
	"github.com/yanizio/sitepress/internal/host"
)

//
// HTTP section
//

// HTTP holds web-server tunables.  ListenAddr serves tenant sites and the
// editor API; AdminAddr serves /metrics and /healthz only.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	AdminAddr  string `koanf:"admin_addr"  validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`
}

//
// Database section
//

// Database holds the DSN template and its secret.
//
// The *template* (`DSN`) is kept in YAML so operators can tweak host, port,
// or flags without touching Vault.  The *secret* (`Password`) is normally
// a `vault:` reference injected at runtime, keeping credentials out of flat
// files and git history.
type Database struct {
	DSN             string        `koanf:"dsn"               validate:"required"`
	Password        string        `koanf:"password"`
	MaxOpenConns    int           `koanf:"max_open_conns"    validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns"    validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	Retries         int           `koanf:"retries"           validate:"min=0,max=20"`
	RetryBackoff    time.Duration `koanf:"retry_backoff"`
}

// Options converts the section into pool options.
func (d Database) Options() database.Options {
	return database.Options{
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		Retries:         d.Retries,
		RetryBackoff:    d.RetryBackoff,
	}
}

//
// Platform section
//

// Platform names the shared domain whose single-label subdomains map to
// site slugs (`acme.sitepress.app` → site "acme"), and the page slug served
// for "/".
type Platform struct {
	Domain    string `koanf:"domain"     validate:"required,fqdn"`
	IndexSlug string `koanf:"index_slug" validate:"required"`
}

//
// Revisions section
//

// Revisions caps per-unit history.
type Revisions struct {
	Keep int `koanf:"keep" validate:"min=1,max=100"`
}

//
// Cache section
//

// Cache configures public cache headers, the purge queue, the in-process
// page cache, and downstream purge webhooks.
type Cache struct {
	MaxAge               time.Duration            `koanf:"max_age"`
	StaleWhileRevalidate time.Duration            `koanf:"stale_while_revalidate"`
	QueueSize            int                      `koanf:"queue_size"      validate:"min=1"`
	HandlerTimeout       time.Duration            `koanf:"handler_timeout"`
	PageEntries          int                      `koanf:"page_entries"    validate:"min=0"`
	Webhooks             []cachectl.WebhookConfig `koanf:"webhooks"        validate:"dive"`
}

// Policies returns the header policy table.
func (c Cache) Policies() cachectl.Policies {
	return cachectl.Policies{MaxAge: c.MaxAge, StaleWhileRevalidate: c.StaleWhileRevalidate}
}

// InvalidatorOptions returns the purge queue settings.
func (c Cache) InvalidatorOptions() cachectl.Options {
	return cachectl.Options{QueueSize: c.QueueSize, HandlerTimeout: c.HandlerTimeout}
}

//
// Host cache section
//

// HostCache tunes the hostname → site resolver cache.
type HostCache struct {
	TTL           time.Duration `koanf:"ttl"`
	NegativeTTL   time.Duration `koanf:"negative_ttl"`
	IdleTTL       time.Duration `koanf:"idle_ttl"`
	MaxEntries    int           `koanf:"max_entries" validate:"min=0"`
	EvictInterval time.Duration `koanf:"evict_interval"`
}

// Options merges the section with the platform domain.
func (h HostCache) Options(platformDomain string) host.Options {
	return host.Options{
		PlatformDomain: platformDomain,
		TTL:            h.TTL,
		NegativeTTL:    h.NegativeTTL,
		IdleTTL:        h.IdleTTL,
		MaxEntries:     h.MaxEntries,
		EvictInterval:  h.EvictInterval,
	}
}

//
// Rate limit section
//

// RateLimit bounds editor writes per workspace.
type RateLimit struct {
	PerSecond float64       `koanf:"per_second" validate:"gt=0"`
	Burst     int           `koanf:"burst"      validate:"min=1"`
	TTL       time.Duration `koanf:"ttl"`
}

//
// Log section
//

// Log selects level and retention for the rotating JSON log.  Dir is
// relative to the root path unless absolute.
type Log struct {
	Dir        string `koanf:"dir"`
	Level      string `koanf:"level"        validate:"oneof=debug info warn error"`
	MaxSizeMB  int    `koanf:"max_size_mb"  validate:"min=0"`
	MaxBackups int    `koanf:"max_backups"  validate:"min=0"`
	MaxAgeDays int    `koanf:"max_age_days" validate:"min=0"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.  The loader
// discovers `Root` (repo root or SITEPRESS_ROOT override) so later code
// can build absolute file paths.
type Paths struct {
	Root string
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP      HTTP      `koanf:"http"`
	Database  Database  `koanf:"database"`
	Platform  Platform  `koanf:"platform"`
	Revisions Revisions `koanf:"revisions"`
	Cache     Cache     `koanf:"cache"`
	HostCache HostCache `koanf:"host_cache"`
	RateLimit RateLimit `koanf:"rate_limit"`
	Log       Log       `koanf:"log"`
	Paths     Paths     `koanf:"-"` // not loaded from config files
}

// Default returns the baseline every loaded file is merged onto.
func Default() Config {
	db := database.DefaultOptions()
	pol := cachectl.DefaultPolicies()
	return Config{
		HTTP: HTTP{ListenAddr: ":8080", AdminAddr: "127.0.0.1:9090"},
		Database: Database{
			MaxOpenConns:    db.MaxOpenConns,
			MaxIdleConns:    db.MaxIdleConns,
			ConnMaxLifetime: db.ConnMaxLifetime,
			Retries:         db.Retries,
			RetryBackoff:    db.RetryBackoff,
		},
		Platform:  Platform{IndexSlug: "home"},
		Revisions: Revisions{Keep: 10},
		Cache: Cache{
			MaxAge:               pol.MaxAge,
			StaleWhileRevalidate: pol.StaleWhileRevalidate,
			QueueSize:            cachectl.DefaultQueueSize,
			HandlerTimeout:       cachectl.DefaultHandlerTimeout,
			PageEntries:          2048,
		},
		HostCache: HostCache{
			TTL:           host.DefaultTTL,
			NegativeTTL:   host.DefaultNegativeTTL,
			IdleTTL:       host.DefaultIdleTTL,
			MaxEntries:    host.DefaultMaxEntries,
			EvictInterval: host.DefaultEvictInterval,
		},
		RateLimit: RateLimit{PerSecond: 5, Burst: 20, TTL: 10 * time.Minute},
		Log:       Log{Dir: "logs", Level: "info"},
	}
}
