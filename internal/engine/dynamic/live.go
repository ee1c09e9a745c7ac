// internal/engine/dynamic/live.go
package dynamic

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/law-makers/linkmeta/internal/auth"
	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/law-makers/linkmeta/internal/engine/metadata"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrNoDisplay is returned when a visible browser cannot be shown
var ErrNoDisplay = errors.New("interactive browsing requires a display server (DISPLAY not set)")

// LiveTab is a visible Chrome window the user drives by hand.
// Extraction reads whatever document the tab currently shows.
type LiveTab struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// OpenLive launches a visible browser, seeds cookies and opens startURL
func OpenLive(opts BrowserOptions, startURL string, cookies []auth.Cookie) (*LiveTab, error) {
	if runtime.GOOS == "linux" && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		return nil, ErrNoDisplay
	}
	if opts.ChromePath == "" {
		path, err := FindChrome()
		if err != nil {
			return nil, err
		}
		opts.ChromePath = path
	}
	opts.Headless = false

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	actions := []chromedp.Action{network.Enable()}
	if len(cookies) > 0 {
		params := make([]*network.CookieParam, 0, len(cookies))
		for _, c := range cookies {
			params = append(params, c.Param())
		}
		actions = append(actions, network.SetCookies(params))
	}
	if startURL != "" {
		actions = append(actions, chromedp.Navigate(startURL))
	}

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		tabCancel()
		allocCancel()
		return nil, engine.NewEngineError(engine.ErrCodeBrowserCrash, "failed to open browser", err)
	}

	log.Info().Str("url", startURL).Str("chrome", opts.ChromePath).Msg("Live browser opened")

	return &LiveTab{ctx: tabCtx, cancel: tabCancel, allocCancel: allocCancel}, nil
}

// Navigate points the live tab at a new URL
func (l *LiveTab) Navigate(ctx context.Context, pageURL string) error {
	runCtx, cancel := l.bind(ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, chromedp.Navigate(pageURL)); err != nil {
		return l.wrap("navigation failed", err)
	}
	return nil
}

// Snapshot parses the document the tab is currently showing
func (l *LiveTab) Snapshot(ctx context.Context) (*models.Page, error) {
	start := time.Now()
	runCtx, cancel := l.bind(ctx)
	defer cancel()

	location, html, err := readDocument(runCtx)
	if err != nil {
		return nil, l.wrap("failed to read live document", err)
	}

	page, err := metadata.NewPage(location, location, 0, []byte(html), models.ModeBrowser)
	if err != nil {
		return nil, engine.NewEngineError(engine.ErrCodeFetch, "failed to parse live document", err).WithDetail("url", location)
	}
	page.ResponseTime = time.Since(start).Milliseconds()
	return page, nil
}

// Cookies returns every cookie the browser currently holds for the open page
func (l *LiveTab) Cookies(ctx context.Context) ([]auth.Cookie, error) {
	runCtx, cancel := l.bind(ctx)
	defer cancel()

	var cookies []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, l.wrap("failed to read cookies", err)
	}
	return auth.FromNetwork(cookies), nil
}

// Done is closed when the browser window goes away
func (l *LiveTab) Done() <-chan struct{} {
	return l.ctx.Done()
}

// Close shuts the browser down
func (l *LiveTab) Close() {
	l.cancel()
	l.allocCancel()
	log.Debug().Msg("Live browser closed")
}

// bind derives a context that ends with either the tab or the caller's ctx
func (l *LiveTab) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(l.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (l *LiveTab) wrap(msg string, err error) error {
	if l.ctx.Err() != nil {
		return engine.NewEngineError(engine.ErrCodeBrowserCrash, "browser window closed", err)
	}
	return engine.NewEngineError(engine.ErrCodeFetch, fmt.Sprintf("live tab: %s", msg), err)
}
