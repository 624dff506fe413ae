// internal/cachectl/webhook.go
//
// Edge-cache purge over HTTP.
//
// A WebhookHandler POSTs each Event as JSON to one endpoint (a CDN purge
// API, a reverse-proxy sidecar, …).  Transport errors and 5xx responses
// are retried with backoff by go-retryablehttp; any other non-2xx status
// fails immediately.  The invalidator's per-handler timeout bounds the
// whole exchange, retries included.
package cachectl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// WebhookConfig describes one purge endpoint.
type WebhookConfig struct {
	Name    string            `koanf:"name"    validate:"required"`
	URL     string            `koanf:"url"     validate:"required,url"`
	Headers map[string]string `koanf:"headers"`
	Retries int               `koanf:"retries" validate:"min=0,max=10"`
}

// WebhookHandler implements Handler for one endpoint.
type WebhookHandler struct {
	cfg    WebhookConfig
	client *retryablehttp.Client
}

// NewWebhook builds a handler.  log receives retry chatter at debug level.
func NewWebhook(cfg WebhookConfig, log *zap.SugaredLogger) *WebhookHandler {
	if log == nil {
		log = zap.S()
	}
	c := retryablehttp.NewClient()
	c.RetryMax = cfg.Retries
	c.RetryWaitMin = 200 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.Logger = leveled{log.With("webhook", cfg.Name)}
	return &WebhookHandler{cfg: cfg, client: c}
}

func (h *WebhookHandler) Name() string { return "webhook:" + h.cfg.Name }

// Purge delivers ev.
func (h *WebhookHandler) Purge(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, h.cfg.URL, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Purge-Event", ev.ID)
	for k, v := range h.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s responded %d", h.cfg.URL, resp.StatusCode)
	}
	return nil
}

// leveled adapts a SugaredLogger to retryablehttp.LeveledLogger.
type leveled struct{ s *zap.SugaredLogger }

func (l leveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
