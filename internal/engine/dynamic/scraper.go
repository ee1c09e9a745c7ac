// internal/engine/dynamic/scraper.go
package dynamic

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/law-makers/linkmeta/internal/auth"
	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/law-makers/linkmeta/internal/engine/metadata"
	"github.com/law-makers/linkmeta/internal/ratelimit"
	urlutil "github.com/law-makers/linkmeta/internal/utils/url"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultSettle is how long a page may keep running scripts after load
const DefaultSettle = 500 * time.Millisecond

// SessionSource finds saved cookies for a URL
type SessionSource interface {
	ForURL(rawURL string) (*auth.Session, error)
}

// Scraper renders pages in headless Chrome and parses the resulting DOM.
// Chrome is launched on the first Fetch.
type Scraper struct {
	opts     BrowserOptions
	limiter  ratelimit.RateLimiter
	sessions SessionSource
	timeout  time.Duration
	settle   time.Duration

	mu   sync.Mutex
	pool *BrowserPool
}

// New creates a browser fetcher; limiter may be nil
func New(opts BrowserOptions, lim ratelimit.RateLimiter, timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	opts.Headless = true
	return &Scraper{
		opts:    opts,
		limiter: lim,
		timeout: timeout,
		settle:  DefaultSettle,
	}
}

// WithSessions seeds tabs with cookies from saved sessions
func (d *Scraper) WithSessions(src SessionSource) *Scraper {
	d.sessions = src
	return d
}

// WithSettle sets the post-load wait before the DOM is read
func (d *Scraper) WithSettle(settle time.Duration) *Scraper {
	d.settle = settle
	return d
}

// Name returns the name of this scraper
func (d *Scraper) Name() string {
	return "DynamicScraper"
}

// Close shuts Chrome down if it was started
func (d *Scraper) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool == nil {
		return nil
	}
	err := d.pool.Close()
	d.pool = nil
	return err
}

func (d *Scraper) browserPool() (*BrowserPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pool != nil {
		return d.pool, nil
	}
	pool, err := NewBrowserPool(d.opts)
	if err != nil {
		return nil, err
	}
	d.pool = pool
	return pool, nil
}

// Fetch navigates a pooled tab to the URL and reads the rendered document
func (d *Scraper) Fetch(ctx context.Context, pageURL string) (*models.Page, error) {
	start := time.Now()

	if err := urlutil.ValidateURL(pageURL); err != nil {
		return nil, engine.NewEngineError(engine.ErrCodeValidation, "invalid URL", err).WithDetail("url", pageURL)
	}

	log.Debug().
		Str("url", pageURL).
		Str("scraper", d.Name()).
		Msg("Starting fetch")

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, pageURL); err != nil {
			return nil, fetchError(pageURL, "rate limiter wait aborted", err)
		}
	}

	pool, err := d.browserPool()
	if err != nil {
		return nil, engine.NewEngineError(engine.ErrCodeBrowserCrash, "failed to start browser", err)
	}

	bc, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fetchError(pageURL, "failed to acquire browser tab", err)
	}
	defer pool.Release(bc)
	log.Debug().Int("tabs_free", pool.Available()).Int("pool_size", pool.Size()).Msg("Browser tab acquired")

	tabCtx, cancel := context.WithTimeout(bc.Ctx, d.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var (
		statusMu sync.Mutex
		status   int
	)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if ev, ok := ev.(*network.EventResponseReceived); ok && ev.Type == network.ResourceTypeDocument {
			statusMu.Lock()
			if status == 0 {
				status = int(ev.Response.Status)
			}
			statusMu.Unlock()
		}
	})

	actions := []chromedp.Action{network.Enable()}
	actions = append(actions, d.sessionActions(pageURL)...)
	actions = append(actions,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(d.settle),
	)

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if bc.Ctx.Err() != nil {
			return nil, engine.NewEngineError(engine.ErrCodeBrowserCrash, "browser tab closed", err).WithDetail("url", pageURL)
		}
		return nil, fetchError(pageURL, "navigation failed", err)
	}

	finalURL, html, err := readDocument(tabCtx)
	if err != nil {
		return nil, fetchError(pageURL, "failed to read rendered document", err)
	}

	statusMu.Lock()
	code := status
	statusMu.Unlock()

	page, err := metadata.NewPage(pageURL, finalURL, code, []byte(html), models.ModeBrowser)
	if err != nil {
		return nil, fetchError(pageURL, "failed to parse rendered HTML", err)
	}
	page.ResponseTime = time.Since(start).Milliseconds()

	log.Debug().
		Str("url", pageURL).
		Str("final_url", finalURL).
		Int("status", code).
		Int64("response_time_ms", page.ResponseTime).
		Msg("Fetch completed")

	return page, nil
}

// sessionActions seeds cookies and headers of the session saved for pageURL
func (d *Scraper) sessionActions(pageURL string) []chromedp.Action {
	if d.sessions == nil {
		return nil
	}
	session, err := d.sessions.ForURL(pageURL)
	if err != nil {
		log.Warn().Err(err).Str("url", pageURL).Msg("Failed to look up session")
		return nil
	}
	if session == nil {
		return nil
	}

	var actions []chromedp.Action
	if len(session.Cookies) > 0 {
		params := make([]*network.CookieParam, 0, len(session.Cookies))
		for _, c := range session.Cookies {
			p := c.Param()
			if p.Domain == "" {
				p.URL = pageURL
			}
			params = append(params, p)
		}
		actions = append(actions, network.SetCookies(params))
	}
	if len(session.Headers) > 0 {
		h := make(network.Headers, len(session.Headers))
		for k, v := range session.Headers {
			h[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(h))
	}

	log.Debug().Str("session", session.Name).Int("cookies", len(session.Cookies)).Msg("Session seeded into browser tab")
	return actions
}

// readDocument returns the tab's current location and serialized DOM
func readDocument(ctx context.Context) (string, string, error) {
	var location, html string
	err := chromedp.Run(ctx,
		chromedp.Location(&location),
		chromedp.Evaluate(`document.documentElement.outerHTML`, &html),
	)
	return location, html, err
}

func fetchError(pageURL, msg string, err error) error {
	return engine.NewEngineError(engine.ErrCodeFetch, msg, err).WithDetail("url", pageURL)
}

var _ engine.Fetcher = (*Scraper)(nil)
