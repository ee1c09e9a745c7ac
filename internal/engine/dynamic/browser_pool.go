// internal/engine/dynamic/browser_pool.go
package dynamic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/rs/zerolog/log"
)

// ErrPoolClosed is returned by Acquire after Close
var ErrPoolClosed = errors.New("browser pool is closed")

// BrowserPool keeps warm tabs on one Chrome process
type BrowserPool struct {
	size        int
	contexts    chan *BrowserContext
	allocCtx    context.Context
	allocCancel context.CancelFunc
	mu          sync.Mutex
	closed      bool
}

// BrowserContext wraps a chromedp tab context with its cancel function
type BrowserContext struct {
	Ctx    context.Context
	Cancel context.CancelFunc
}

// BrowserOptions configures how Chrome is launched
type BrowserOptions struct {
	Size       int
	Headless   bool
	UserAgent  string
	ChromePath string
	ExtraArgs  []chromedp.ExecAllocatorOption
}

// allocatorOptions builds the launch flags shared by the pool and live sessions
func allocatorOptions(opts BrowserOptions) []chromedp.ExecAllocatorOption {
	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-breakpad", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-hang-monitor", true),
		chromedp.Flag("disable-prompt-on-repost", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("log-level", "3"),
		chromedp.Flag("window-size", "1280,900"),
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ChromePath != "" {
		allocOpts = append([]chromedp.ExecAllocatorOption{chromedp.ExecPath(opts.ChromePath)}, allocOpts...)
	}
	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	return append(allocOpts, opts.ExtraArgs...)
}

// NewBrowserPool launches Chrome and pre-creates Size tabs
func NewBrowserPool(opts BrowserOptions) (*BrowserPool, error) {
	if opts.Size <= 0 {
		opts.Size = 2
	}
	if opts.Size > 8 {
		opts.Size = 8
	}
	if opts.ChromePath == "" {
		path, err := FindChrome()
		if err != nil {
			return nil, err
		}
		opts.ChromePath = path
	}

	log.Debug().Int("size", opts.Size).Str("chrome", opts.ChromePath).Msg("Creating browser pool")

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)

	pool := &BrowserPool{
		size:        opts.Size,
		contexts:    make(chan *BrowserContext, opts.Size),
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
	}

	for i := 0; i < opts.Size; i++ {
		tabCtx, tabCancel := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(tabCtx, chromedp.Navigate("about:blank")); err != nil {
			tabCancel()
			pool.Close()
			return nil, engine.NewEngineError(engine.ErrCodeBrowserCrash,
				fmt.Sprintf("failed to warm up browser tab %d", i), err)
		}
		pool.contexts <- &BrowserContext{Ctx: tabCtx, Cancel: tabCancel}
	}

	log.Info().Int("pool_size", opts.Size).Msg("Browser pool ready")
	return pool, nil
}

// Acquire takes a tab from the pool, blocking until one is free or ctx ends
func (bp *BrowserPool) Acquire(ctx context.Context) (*BrowserContext, error) {
	select {
	case bc, ok := <-bp.contexts:
		if !ok {
			return nil, ErrPoolClosed
		}
		bp.mu.Lock()
		defer bp.mu.Unlock()
		if bp.closed {
			bc.Cancel()
			return nil, ErrPoolClosed
		}
		return bc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release navigates the tab back to about:blank and returns it to the pool.
// A tab whose target died is replaced with a fresh one.
func (bp *BrowserPool) Release(bc *BrowserContext) {
	if err := chromedp.Run(bc.Ctx, chromedp.Navigate("about:blank")); err != nil {
		log.Warn().Err(err).Msg("Browser tab unusable, replacing it")
		bc.Cancel()
		tabCtx, tabCancel := chromedp.NewContext(bp.allocCtx)
		bc = &BrowserContext{Ctx: tabCtx, Cancel: tabCancel}
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()
	if bp.closed {
		bc.Cancel()
		return
	}
	select {
	case bp.contexts <- bc:
	default:
		bc.Cancel()
		log.Warn().Msg("Browser pool full, discarding tab")
	}
}

// Close shuts down all tabs and the browser process
func (bp *BrowserPool) Close() error {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if bp.closed {
		return nil
	}
	bp.closed = true

	close(bp.contexts)
	for bc := range bp.contexts {
		bc.Cancel()
	}
	bp.allocCancel()

	log.Debug().Msg("Browser pool closed")
	return nil
}

// Size returns the pool size
func (bp *BrowserPool) Size() int {
	return bp.size
}

// Available returns the number of idle tabs
func (bp *BrowserPool) Available() int {
	return len(bp.contexts)
}
