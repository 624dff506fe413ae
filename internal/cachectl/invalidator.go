// internal/cachectl/invalidator.go
//
// Best-effort purge fan-out.
//
// Context
// -------
// Publishing must never wait on, or fail because of, a downstream cache.
// Purge therefore only enqueues an Event on a buffered channel and returns.
// A single worker (Run) drains the queue and hands each event to every
// registered Handler.
//
// Workflow
// --------
//  1. Purge(site, slug) → non-blocking send.  A full queue drops the event,
//     logs a warning, and bumps cache_purge_dropped_total.  The public
//     Cache-Control window still bounds staleness.
//  2. Run receives the event and starts one goroutine per handler, each
//     with its own timeout and panic recovery.
//  3. Failures are logged and counted per handler; the others still run.
//
// Notes
// -----
//   - No ordering or completion guarantee relative to the publish response.
//   - The worker waits at most HandlerTimeout per event.  A handler still
//     running past its deadline is counted as "timeout" and abandoned; its
//     goroutine finishes on its own.
package cachectl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanizio/sitepress/internal/metrics"
)

// Event describes one purge request.  Slug is empty for site-wide purges.
type Event struct {
	ID     string    `json:"id"`
	SiteID uint64    `json:"siteId"`
	Slug   string    `json:"slug,omitempty"`
	At     time.Time `json:"at"`
}

// Handler receives purge events.
type Handler interface {
	Name() string
	Purge(ctx context.Context, ev Event) error
}

type funcHandler struct {
	name string
	fn   func(context.Context, Event) error
}

func (h funcHandler) Name() string                              { return h.name }
func (h funcHandler) Purge(ctx context.Context, ev Event) error { return h.fn(ctx, ev) }

// HandlerFunc adapts fn to a named Handler.
func HandlerFunc(name string, fn func(context.Context, Event) error) Handler {
	return funcHandler{name: name, fn: fn}
}

// Defaults for Options.
const (
	DefaultQueueSize      = 256
	DefaultHandlerTimeout = 5 * time.Second
)

// Options tunes the Invalidator.
type Options struct {
	QueueSize      int
	HandlerTimeout time.Duration
}

// Invalidator fans purge events out to handlers.  Safe for concurrent use.
type Invalidator struct {
	queue   chan Event
	timeout time.Duration
	log     *zap.SugaredLogger
	now     func() time.Time

	mu       sync.RWMutex
	handlers []Handler
}

// NewInvalidator returns an Invalidator.  Call Run to start delivery.
func NewInvalidator(opts Options, log *zap.SugaredLogger) *Invalidator {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = DefaultHandlerTimeout
	}
	if log == nil {
		log = zap.S()
	}
	return &Invalidator{
		queue:   make(chan Event, opts.QueueSize),
		timeout: opts.HandlerTimeout,
		log:     log,
		now:     time.Now,
	}
}

// Register adds h.  Handlers registered after Run starts receive
// subsequent events.
func (inv *Invalidator) Register(h Handler) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.handlers = append(inv.handlers, h)
}

// Purge enqueues a purge for siteID (and slug, when non-empty).  It never
// blocks and never fails.
func (inv *Invalidator) Purge(siteID uint64, slug string) {
	ev := Event{ID: uuid.NewString(), SiteID: siteID, Slug: slug, At: inv.now().UTC()}
	select {
	case inv.queue <- ev:
	default:
		metrics.PurgeDroppedTotal.Inc()
		inv.log.Warnw("purge queue full, event dropped", "event", ev.ID, "site", siteID, "slug", slug)
	}
}

// Run delivers queued events until ctx is cancelled.
func (inv *Invalidator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := len(inv.queue); n > 0 {
				inv.log.Infow("purge worker stopping with queued events", "pending", n)
			}
			return
		case ev := <-inv.queue:
			inv.deliver(ctx, ev)
		}
	}
}

func (inv *Invalidator) deliver(ctx context.Context, ev Event) {
	inv.mu.RLock()
	hs := append([]Handler(nil), inv.handlers...)
	inv.mu.RUnlock()

	var wg sync.WaitGroup
	for _, h := range hs {
		wg.Add(1)
		go func(h Handler) {
			defer wg.Done()
			inv.invoke(ctx, h, ev)
		}(h)
	}
	wg.Wait()
}

type outcome struct {
	result string
	err    error
}

func (inv *Invalidator) invoke(ctx context.Context, h Handler, ev Event) {
	hctx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{"panic", fmt.Errorf("panic: %v", p)}
			}
		}()
		if err := h.Purge(hctx, ev); err != nil {
			done <- outcome{"error", err}
			return
		}
		done <- outcome{"ok", nil}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-hctx.Done():
		out = outcome{"timeout", hctx.Err()}
	}
	result, err := out.result, out.err
	metrics.PurgeTotal.WithLabelValues(h.Name(), result).Inc()

	if err != nil {
		inv.log.Errorw("purge handler failed",
			"handler", h.Name(), "event", ev.ID, "site", ev.SiteID, "slug", ev.Slug, "err", err)
	}
}
