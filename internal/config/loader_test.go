package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type fakeSecrets map[string]string

func (f fakeSecrets) Resolve(_ context.Context, ref string) (string, error) {
	if v, ok := f[ref]; ok {
		return v, nil
	}
	return "", errors.New("no such secret")
}

const minimalYAML = `
http:
  listen_addr: ":8080"
database:
  dsn: "app@tcp(db:3306)/sitepress"
  password: "vault:secret/sitepress/db#password"
platform:
  domain: "sitepress.app"
cache:
  max_age: 30s
  webhooks:
    - name: edge
      url: "https://edge.example.com/purge"
      retries: 2
`

func writeRoot(t *testing.T, yaml string) {
	t.Helper()
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "conf"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "conf", "global.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SITEPRESS_ROOT", root)
}

func TestLoad_LayersDefaultsAndSecrets(t *testing.T) {
	writeRoot(t, minimalYAML)
	t.Setenv("SITEPRESS_HTTP__ADMIN_ADDR", "127.0.0.1:9191")

	cfg, err := Load(context.Background(), fakeSecrets{"secret/sitepress/db#password": "s3cret"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Password != "s3cret" {
		t.Errorf("password = %q, want resolved secret", cfg.Database.Password)
	}
	if cfg.HTTP.AdminAddr != "127.0.0.1:9191" {
		t.Errorf("admin_addr = %q, env override ignored", cfg.HTTP.AdminAddr)
	}
	if cfg.Cache.MaxAge != 30*time.Second {
		t.Errorf("max_age = %v", cfg.Cache.MaxAge)
	}
	if cfg.Revisions.Keep != 10 || cfg.Platform.IndexSlug != "home" {
		t.Errorf("defaults lost: keep=%d index=%q", cfg.Revisions.Keep, cfg.Platform.IndexSlug)
	}
	if len(cfg.Cache.Webhooks) != 1 || cfg.Cache.Webhooks[0].Retries != 2 {
		t.Errorf("webhooks = %+v", cfg.Cache.Webhooks)
	}
	if Get() != cfg {
		t.Error("Get does not return the loaded config")
	}
}

func TestLoad_VaultReferenceWithoutResolverFails(t *testing.T) {
	writeRoot(t, minimalYAML)
	if _, err := Load(context.Background(), nil); err == nil {
		t.Fatal("expected error for unresolvable vault reference")
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := map[string]string{
		"missing dsn": `
platform:
  domain: "sitepress.app"
`,
		"bad platform domain": `
database:
  dsn: "x"
platform:
  domain: "not a domain"
`,
		"admin equals public": `
http:
  listen_addr: ":8080"
  admin_addr: ":8080"
database:
  dsn: "x"
platform:
  domain: "sitepress.app"
`,
		"bad webhook url": `
database:
  dsn: "x"
platform:
  domain: "sitepress.app"
cache:
  webhooks:
    - name: edge
      url: "::nope"
`,
	}
	for name, yaml := range cases {
		t.Run(name, func(t *testing.T) {
			writeRoot(t, yaml)
			if _, err := Load(context.Background(), nil); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateStruct_ReportsConfigKeys(t *testing.T) {
	cfg := Default()
	cfg.Database.DSN = "app@tcp(db:3306)/sitepress"
	cfg.Platform.Domain = "sitepress.app"
	cfg.Cache.QueueSize = 0

	err := validateStruct(&cfg)
	if err == nil || !strings.Contains(err.Error(), "cache.queue_size") {
		t.Fatalf("err = %v, want mention of cache.queue_size", err)
	}

	cfg.Cache.QueueSize = 1
	cfg.HTTP.AdminAddr = cfg.HTTP.ListenAddr
	if err := validateStruct(&cfg); err == nil || !strings.Contains(err.Error(), "admin_addr") {
		t.Fatalf("err = %v, want listener clash", err)
	}
}
