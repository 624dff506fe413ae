// cmd/web/main.go
//
// SitePress – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Console logger for the window before config is loaded.
//
//  2. Vault client when VAULT_ADDR is set, then config (.env → YAML → env
//     overrides, `vault:` values resolved).
//
//  3. Daily rotating JSON logger (tees to console when running in a TTY).
//
//  4. Open MySQL with the injected password.  `-migrate` applies the
//     embedded schema and exits.
//
//  5. Wire stores → repositories → publish orchestrators → purge
//     invalidator → host resolver → render handler → editor API.
//
//  6. Serve two listeners until SIGINT or SIGTERM:
//
//     • public  – tenant sites at "/" and the editor API at /api/v1
//     • admin   – /metrics and /healthz, bound to loopback by default
//
// Background workers (purge queue, resolver evictor, rate-limit cleanup)
// share the signal context and stop with the servers.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yanizio/sitepress/internal/api"
	"github.com/yanizio/sitepress/internal/cachectl"
	"github.com/yanizio/sitepress/internal/config"
	"github.com/yanizio/sitepress/internal/content"
	"github.com/yanizio/sitepress/internal/database"
	"github.com/yanizio/sitepress/internal/host"
	"github.com/yanizio/sitepress/internal/logger"
	"github.com/yanizio/sitepress/internal/menu"
	"github.com/yanizio/sitepress/internal/middleware"
	"github.com/yanizio/sitepress/internal/publish"
	"github.com/yanizio/sitepress/internal/ratelimit"
	"github.com/yanizio/sitepress/internal/render"
	"github.com/yanizio/sitepress/internal/revision"
	"github.com/yanizio/sitepress/internal/server"
	"github.com/yanizio/sitepress/internal/site"
	"github.com/yanizio/sitepress/internal/vault"
)

func main() {
	migrate := flag.Bool("migrate", false, "apply the embedded schema and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	boot := logger.Bootstrap()

	//
	// ── 1.  Secrets and config ──────────────────────────────────────────
	//
	var secrets config.Secrets
	if vault.Enabled() {
		vc, err := vault.New(ctx, boot)
		if err != nil {
			boot.Fatalw("vault unavailable", "error", err)
		}
		secrets = vc
	}
	cfg, err := config.Load(ctx, secrets)
	if err != nil {
		boot.Fatalw("load config", "error", err)
	}

	logDir := cfg.Log.Dir
	if !filepath.IsAbs(logDir) {
		logDir = filepath.Join(cfg.Paths.Root, logDir)
	}
	log, err := logger.New(logger.Options{
		Dir:        logDir,
		Level:      cfg.Log.Level,
		Tee:        logger.RunningInTTY(),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		boot.Fatalw("start logger", "error", err)
	}
	defer func() { _ = log.Sync() }()

	//
	// ── 2.  Database ────────────────────────────────────────────────────
	//
	dsn, err := database.WithPassword(cfg.Database.DSN, cfg.Database.Password)
	if err != nil {
		log.Fatalw("database dsn", "error", err)
	}
	db, err := database.Open(ctx, dsn, cfg.Database.Options())
	if err != nil {
		log.Fatalw("connect database", "error", err)
	}
	defer db.Close()
	log.Infow("database online", "max_open", cfg.Database.MaxOpenConns)

	if *migrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalw("migrate", "error", err)
		}
		log.Infow("schema applied", "statements", len(database.Statements()))
		return
	}

	//
	// ── 3.  Wiring ──────────────────────────────────────────────────────
	//
	revs := revision.NewStore(db, revision.WithKeep(cfg.Revisions.Keep), revision.WithLogger(log))
	pages := content.NewPages(revs)
	items := content.NewItems(revs)
	sites := site.NewStore(db)
	menus := menu.NewStore(db)

	inv := cachectl.NewInvalidator(cfg.Cache.InvalidatorOptions(), log)
	for _, wh := range cfg.Cache.Webhooks {
		inv.Register(cachectl.NewWebhook(wh, log))
	}

	resolver := host.New(sites, cfg.HostCache.Options(cfg.Platform.Domain), log)

	public := render.New(resolver, pages, render.Options{
		IndexSlug:    cfg.Platform.IndexSlug,
		Policies:     cfg.Cache.Policies(),
		CacheEntries: cfg.Cache.PageEntries,
		SEO:          sites,
		Menus:        menus,
		Log:          log,
	})
	inv.Register(public.PurgeHandler())

	limiter := ratelimit.New(ctx,
		ratelimit.WithRate(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
		ratelimit.WithTTL(cfg.RateLimit.TTL),
		ratelimit.WithLogger(log))

	editor := api.New(api.Config{
		Pages:         pages,
		PagePublisher: publish.New[content.PageMeta](pages, inv, publish.WithLogger(log)),
		Items:         items,
		ItemPublisher: publish.New[content.ItemMeta](items, inv, publish.WithLogger(log)),
		Menus:         menus,
		Domains:       sites,
		Hosts:         resolver,
		Purger:        inv,
		Limit:         limiter.Middleware,
		Log:           log,
	})

	//
	// ── 4.  Routers ─────────────────────────────────────────────────────
	//
	root := chi.NewRouter()
	root.Use(chimw.RequestID)
	root.Use(chimw.RealIP)
	root.Use(middleware.RequestLog(log))
	root.Use(chimw.Recoverer)
	root.Use(middleware.Security(middleware.SecurityOptions{HSTS: cfg.HTTP.ForceHTTPS}))
	root.Mount("/api/v1", editor.Routes())
	root.Mount("/", public.Routes())

	var handler http.Handler = root
	if cfg.HTTP.ForceHTTPS {
		handler = middleware.ForceHTTPS(resolver, root)
	}

	admin := chi.NewRouter()
	admin.Handle("/metrics", promhttp.Handler())
	admin.Get("/healthz", healthz(db))

	//
	// ── 5.  Run until signalled ─────────────────────────────────────────
	//
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { inv.Run(gctx); return nil })
	g.Go(func() error { resolver.Run(gctx); return nil })
	g.Go(func() error {
		return server.Serve(gctx, server.New(cfg.HTTP.ListenAddr, handler), "public", log)
	})
	g.Go(func() error {
		return server.Serve(gctx, server.New(cfg.HTTP.AdminAddr, admin), "admin", log)
	})

	if err := g.Wait(); err != nil {
		log.Errorw("server exited", zap.Error(err))
		stop()
		os.Exit(1)
	}
	log.Infow("shutdown complete")
}

// healthz reports 200 while the database answers a ping.
func healthz(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		cachectl.SetNoStore(w)
		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok\n"))
	}
}
