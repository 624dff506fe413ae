// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from three layers (highest
precedence last):

 1. Optional `.env` file at `<root>/conf/.env`.
 2. `conf/global.yaml`.
 3. Environment variables prefixed `SITEPRESS_`, where `__` maps to “.”
    (e.g., `SITEPRESS_HTTP__LISTEN_ADDR → http.listen_addr`).

Between merging and unmarshalling, every string value of the form
`vault:<mount/path>#<key>` is swapped for the secret it names.  The tree
is then unmarshalled on top of `Default()`, validated, enriched with the
runtime root path, and cached in an `atomic.Pointer` for lock-free reads.
`Reload()` calls `Load()` again with the same resolver and swaps the
pointer.

Instrumentation
---------------
  - DEBUG spans: root discovery, YAML read, env overlay.
  - ERROR spans: YAML parse, env overlay, secret lookup, unmarshal,
    validation failures.
  - INFO span: final “config loaded” with key highlights.
  - Logs use the global *sugared* logger (`zap.S()`) so early boot issues
    surface even before the file logger is installed.

Notes
-----
  - `rootDir()` climbs the cwd tree until it finds `conf/global.yaml`;
    this lets `go run ./cmd/web` work from any sub-directory.
  - Secret values are never logged, only their config keys.
  - Oxford commas, two spaces after periods.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

const (
	envPrefix   = "SITEPRESS_"
	vaultPrefix = "vault:"
)

// Secrets resolves `vault:` references.  *vault.Client satisfies it.
type Secrets interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

var (
	current atomic.Pointer[Config]
	lastRes atomic.Pointer[Secrets]
)

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves SITEPRESS_ROOT or climbs directories until
// conf/global.yaml is found.  Falls back to executable heuristic for
// production layout.
func rootDir() string {
	if r := os.Getenv(envPrefix + "ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", "global.yaml")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads .env, YAML, env overrides, resolves secrets, validates, and
// caches Config.  secrets may be nil when no value uses the vault: prefix.
func Load(ctx context.Context, secrets Secrets) (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")

	yamlPath := filepath.Join(root, "conf", "global.yaml")
	if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
		zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
		return nil, err
	}
	zap.S().Debugw("config yaml loaded", "file", yamlPath)

	// Env overrides: SITEPRESS_HTTP__LISTEN_ADDR → http.listen_addr
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ToLower(strings.ReplaceAll(s, "__", "."))
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k, secrets); err != nil {
		zap.S().Errorw("config secret lookup failed", "err", err)
		return nil, err
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	lastRes.Store(&secrets)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"admin_addr", cfg.HTTP.AdminAddr,
		"platform", cfg.Platform.Domain,
		"force_https", cfg.HTTP.ForceHTTPS,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// resolveSecrets replaces every vault: string in k, in key order.
func resolveSecrets(ctx context.Context, k *koanf.Koanf, secrets Secrets) error {
	all := k.All()
	keys := make([]string, 0, len(all))
	for key, val := range all {
		if s, ok := val.(string); ok && strings.HasPrefix(s, vaultPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		if secrets == nil {
			return fmt.Errorf("config %s: vault reference but no secret store configured", key)
		}
		ref := strings.TrimPrefix(all[key].(string), vaultPrefix)
		val, err := secrets.Resolve(ctx, ref)
		if err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("config %s: %w", key, err)
		}
		zap.S().Debugw("config secret resolved", "key", key)
	}
	return nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func Get() *Config { return current.Load() }

// Reload re-runs Load with the secret resolver of the previous call.
func Reload(ctx context.Context) error {
	var secrets Secrets
	if p := lastRes.Load(); p != nil {
		secrets = *p
	}
	_, err := Load(ctx, secrets)
	return err
}
