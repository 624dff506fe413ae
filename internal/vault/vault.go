// internal/vault/vault.go
//
// Secret resolution for `vault:` configuration values.
//
// Context
// -------
// SitePress keeps credentials (the MySQL password, purge webhook tokens)
// out of YAML.  Operators write `vault:<mount>/<path>#<key>` instead and
// config.Load asks this package for the plain value before unmarshalling.
//
// Workflow
// --------
//  1. vault.Enabled() checks VAULT_ADDR; without it the binary boots with
//     plain config only.
//  2. vault.New reads VAULT_ADDR and VAULT_TOKEN, then starts a lifetime
//     watcher that keeps a renewable token alive until ctx ends.
//  3. Resolve(ref) splits the reference, reads the KV-v2 secret, and keeps
//     the value for ResolveTTL.  Concurrent reads of one reference share a
//     single round trip.
//
// Notes
// -----
//   - Secret values are never logged, only their references.
//   - Oxford commas, two spaces after periods.
package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ResolveTTL is how long Resolve keeps a secret.
const ResolveTTL = 5 * time.Minute

// Errors returned for references Vault cannot satisfy.
var (
	ErrBadReference = errors.New("vault reference must look like <mount>/<path>#<key>")
	ErrMissingKey   = errors.New("key not present in secret")
	ErrNotString    = errors.New("secret value is not a string")
)

// Client resolves secrets.  Safe for concurrent use.
type Client struct {
	api *vault.Client
	log *zap.SugaredLogger
	now func() time.Time

	sfg   singleflight.Group
	mu    sync.RWMutex
	cache map[string]cached // "<path>#<key>" → value
}

type cached struct {
	val string
	exp time.Time
}

// Enabled reports whether the environment names a Vault server.
func Enabled() bool { return os.Getenv("VAULT_ADDR") != "" }

// New builds a Client from the standard VAULT_* environment and starts
// token renewal, which stops with ctx.
func New(ctx context.Context, log *zap.SugaredLogger) (*Client, error) {
	if log == nil {
		log = zap.S()
	}
	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault environment: %w", err)
	}
	api, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		api.SetToken(tok)
	}

	c := newClient(api, log)
	go c.keepAlive(ctx)
	log.Infow("vault client ready", "addr", cfg.Address)
	return c, nil
}

func newClient(api *vault.Client, log *zap.SugaredLogger) *Client {
	return &Client{api: api, log: log, now: time.Now, cache: make(map[string]cached)}
}

// Resolve returns the string stored at `<mount>/<path>#<key>`.
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	path, key, ok := strings.Cut(ref, "#")
	mount, rel := splitMount(path)
	if !ok || key == "" || mount == "" || rel == "" {
		return "", fmt.Errorf("%q: %w", ref, ErrBadReference)
	}

	if v, ok := c.cached(ref); ok {
		return v, nil
	}
	v, err, _ := c.sfg.Do(ref, func() (any, error) {
		val, err := c.read(ctx, mount, rel, key)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.cache[ref] = cached{val: val, exp: c.now().Add(ResolveTTL)}
		c.mu.Unlock()
		return val, nil
	})
	if err != nil {
		return "", fmt.Errorf("vault %s: %w", ref, err)
	}
	return v.(string), nil
}

func (c *Client) cached(ref string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cv, ok := c.cache[ref]
	if !ok || !c.now().Before(cv.exp) {
		return "", false
	}
	return cv.val, true
}

func (c *Client) read(ctx context.Context, mount, rel, key string) (string, error) {
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", err
	}
	raw, ok := sec.Data[key]
	if !ok {
		return "", ErrMissingKey
	}
	s, ok := raw.(string)
	if !ok {
		return "", ErrNotString
	}
	return s, nil
}

// keepAlive renews the client token for as long as Vault allows, then
// probes again after a pause.  A non-renewable token is checked hourly.
func (c *Client) keepAlive(ctx context.Context) {
	for ctx.Err() == nil {
		sec, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
		switch {
		case err != nil:
			c.log.Warnw("vault token renew failed", "error", err)
			pause(ctx, 30*time.Second)
		case sec == nil || sec.Auth == nil || !sec.Auth.Renewable:
			c.log.Infow("vault token is not renewable")
			pause(ctx, time.Hour)
		default:
			c.watch(ctx, sec)
			pause(ctx, 15*time.Second)
		}
	}
}

// watch runs one lifetime watcher until it gives up or ctx ends.
func (c *Client) watch(ctx context.Context, sec *vault.Secret) {
	w, err := c.api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{Secret: sec})
	if err != nil {
		c.log.Warnw("vault lifetime watcher", "error", err)
		return
	}
	go w.Start()
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-w.DoneCh():
			if err != nil {
				c.log.Warnw("vault token renewal stopped", "error", err)
			}
			return
		case ev := <-w.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				c.log.Debugw("vault token renewed", "ttl_seconds", ev.Secret.Auth.LeaseDuration)
			}
		}
	}
}

// splitMount separates the KV mount from the secret path.
func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(p, "/")
	return mount, rel
}

func pause(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
