// Package app provides the core application initialization and lifecycle management.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/law-makers/linkmeta/internal/assets"
	"github.com/law-makers/linkmeta/internal/auth"
	"github.com/law-makers/linkmeta/internal/cache"
	"github.com/law-makers/linkmeta/internal/config"
	"github.com/law-makers/linkmeta/internal/downloader"
	"github.com/law-makers/linkmeta/internal/engine/dynamic"
	"github.com/law-makers/linkmeta/internal/engine/static"
	"github.com/law-makers/linkmeta/internal/host"
	"github.com/law-makers/linkmeta/internal/host/memory"
	"github.com/law-makers/linkmeta/internal/host/sqlite"
	"github.com/law-makers/linkmeta/internal/importer"
	"github.com/law-makers/linkmeta/internal/monitoring"
	"github.com/law-makers/linkmeta/internal/pipeline"
	"github.com/law-makers/linkmeta/internal/proxy"
	"github.com/law-makers/linkmeta/internal/ratelimit"
	"github.com/law-makers/linkmeta/internal/rules"
	"github.com/law-makers/linkmeta/internal/script"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Host is a pipeline host that owns resources
type Host interface {
	pipeline.Host
	Close() error
}

// Application holds all application dependencies and manages their lifecycle.
//
// It is created once at startup and shared across all CLI commands.
// Use Close() to ensure proper resource cleanup on shutdown.
type Application struct {
	Config         *config.Config
	Logger         *zerolog.Logger
	Cache          *cache.MemoryCache
	RateLimiter    ratelimit.RateLimiter
	HTTPClient     *http.Client
	Sessions       *auth.Store
	Rules          *rules.Store
	Host           Host
	Assets         host.AssetStore
	Metrics        *monitoring.Metrics
	StaticScraper  *static.Scraper
	DynamicScraper *dynamic.Scraper
	Pipeline       *pipeline.Pipeline
	startTime      time.Time
}

// New creates and initializes a new Application with all dependencies.
//
// It performs the following initialization steps:
//   - Configures logging based on the provided config
//   - Opens the host store and loads the rule set
//   - Creates the cache, rate limiters and the proxy-aware HTTP client
//   - Creates the static and browser fetchers (Chrome starts on first use)
//   - Wires the asset store, importer and metrics into the pipeline
//
// If any step fails, an error is returned and resources opened so far are released.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := setupLogging(cfg, os.Stderr)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	h, err := openHost(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("host", cfg.Host).Str("db", cfg.DBPath).Msg("Host store opened")

	ruleStore, err := LoadRules(cfg.RulesFile)
	if err != nil {
		h.Close()
		return nil, err
	}

	sessions, err := auth.NewStore(cfg.SessionsDir)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("open session store: %w", err)
	}

	memCache := cache.NewMemoryCache(cfg.CacheMaxSizeBytes)
	logger.Debug().
		Int64("max_size_bytes", cfg.CacheMaxSizeBytes).
		Msg("Memory cache initialized")

	rateLimiter := ratelimit.NewDomainLimiter(cfg.StaticRateLimitRPS, cfg.StaticRateLimitBurst)
	browserLimiter := ratelimit.NewDomainLimiter(cfg.DynamicRateLimitRPS, cfg.DynamicRateLimitBurst)
	logger.Debug().
		Float64("static_rps", cfg.StaticRateLimitRPS).
		Float64("browser_rps", cfg.DynamicRateLimitRPS).
		Msg("Rate limiters initialized")

	proxies, err := proxy.Parse(cfg.Proxies)
	if err != nil {
		memCache.Close()
		h.Close()
		return nil, err
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: proxy.NewTransport(proxies, &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		}),
	}
	logger.Debug().
		Dur("timeout", cfg.HTTPTimeout).
		Int("proxies", proxies.Len()).
		Msg("HTTP client initialized")

	staticScraper := static.New(memCache, rateLimiter, httpClient, cfg.UserAgent).
		WithSessions(sessions).
		WithCacheTTL(cfg.CacheTTL)
	if len(cfg.Headers) > 0 {
		staticScraper.WithHeaders(cfg.Headers)
	}

	browserOpts := dynamic.BrowserOptions{
		Size:       cfg.BrowserPoolSize,
		UserAgent:  cfg.UserAgent,
		ChromePath: cfg.ChromePath,
	}
	if proxies.Len() > 0 {
		browserOpts.ExtraArgs = append(browserOpts.ExtraArgs, chromedp.ProxyServer(proxies.GetNext()))
	}
	dynamicScraper := dynamic.New(browserOpts, browserLimiter, cfg.HTTPTimeout).
		WithSessions(sessions).
		WithSettle(cfg.BrowserSettle)

	assetStore, err := openAssets(cfg, h)
	if err != nil {
		memCache.Close()
		h.Close()
		return nil, err
	}

	metrics := monitoring.NewMetrics(monitoring.MetricsConfig{EnableGoMetrics: true})

	fetcher := downloader.NewDownloader(cfg.HTTPTimeout, cfg.UserAgent).
		WithClient(httpClient).
		WithMaxBytes(cfg.AssetMaxBytes)

	p := pipeline.New(ruleStore, h, staticScraper).
		WithBrowser(dynamicScraper).
		WithExecutor(script.New(cfg.ScriptTimeout)).
		WithMaterializer(assets.NewMaterializer(fetcher, assetStore)).
		WithImporter(importer.New(h)).
		WithMetrics(metrics)
	logger.Debug().Int("rules", ruleStore.Len()).Str("assets", cfg.AssetBackend).Msg("Pipeline initialized")

	application := &Application{
		Config:         cfg,
		Logger:         logger,
		Cache:          memCache,
		RateLimiter:    rateLimiter,
		HTTPClient:     httpClient,
		Sessions:       sessions,
		Rules:          ruleStore,
		Host:           h,
		Assets:         assetStore,
		Metrics:        metrics,
		StaticScraper:  staticScraper,
		DynamicScraper: dynamicScraper,
		Pipeline:       p,
		startTime:      time.Now(),
	}

	logger.Info().Msg("Application initialized successfully")
	return application, nil
}

// setupLogging configures the global zerolog logger and returns it
func setupLogging(cfg *config.Config, out io.Writer) *zerolog.Logger {
	// info stays quiet unless -v is used; warnings still show
	logLevel := zerolog.WarnLevel
	switch cfg.LogLevel {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	logWriter := out
	if !cfg.JSONLog {
		logWriter = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	logger := zerolog.New(logWriter).With().Timestamp().Logger()
	log.Logger = logger

	logger.Debug().
		Str("level", cfg.LogLevel).
		Bool("json", cfg.JSONLog).
		Msg("Logger initialized")
	return &logger
}

func openHost(cfg *config.Config) (Host, error) {
	switch cfg.Host {
	case config.HostMemory:
		return memory.New(), nil
	default:
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open host database: %w", err)
		}
		return store, nil
	}
}

func openAssets(cfg *config.Config, h Host) (host.AssetStore, error) {
	switch cfg.AssetBackend {
	case config.AssetsFS:
		return assets.NewFSStore(cfg.AssetDir, "")
	case config.AssetsS3:
		return assets.NewS3Store(assets.S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			Secure:    cfg.S3.UseSSL,
			Prefix:    cfg.S3.Prefix,
			PublicURL: cfg.S3.PublicURL,
		})
	default:
		return h, nil
	}
}

// LoadRules reads the rule file, falling back to the built-in set when no
// path is configured or the file does not exist
func LoadRules(path string) (*rules.Store, error) {
	if path == "" {
		return rules.NewStore(rules.Builtin()...)
	}
	store, err := rules.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return store, nil
}

// Close gracefully shuts down the application and all its resources.
//
// It performs the following cleanup steps in order:
//   - Closes the browser, if it was started
//   - Closes the cache
//   - Closes idle HTTP connections
//   - Closes the host store
//
// Any errors during shutdown are logged but do not prevent other shutdown steps.
func (a *Application) Close(ctx context.Context) error {
	a.Logger.Debug().Msg("Shutting down application")

	if a.DynamicScraper != nil {
		if err := a.DynamicScraper.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing browser")
		}
	}

	if a.Cache != nil {
		a.Logger.Debug().Fields(a.Cache.Stats()).Msg("Cache statistics")
		a.Cache.Close()
	}

	if a.HTTPClient != nil {
		a.HTTPClient.CloseIdleConnections()
	}

	var err error
	if a.Host != nil {
		if err = a.Host.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Error closing host store")
		}
	}

	a.Logger.Debug().Dur("uptime", a.Uptime()).Msg("Application shutdown complete")
	return err
}

// Uptime returns how long the application has been running.
func (a *Application) Uptime() time.Duration {
	return time.Since(a.startTime)
}
