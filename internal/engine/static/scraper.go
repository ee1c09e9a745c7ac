// internal/engine/static/scraper.go
package static

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"github.com/law-makers/linkmeta/internal/auth"
	"github.com/law-makers/linkmeta/internal/cache"
	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/law-makers/linkmeta/internal/engine/metadata"
	"github.com/law-makers/linkmeta/internal/ratelimit"
	"github.com/law-makers/linkmeta/internal/utils/headers"
	urlutil "github.com/law-makers/linkmeta/internal/utils/url"
	"github.com/law-makers/linkmeta/pkg/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html/charset"
)

// DefaultMaxBody caps how much of a response body is read
const DefaultMaxBody = 8 << 20

// SessionSource finds saved cookies for a URL
type SessionSource interface {
	ForURL(rawURL string) (*auth.Session, error)
}

// Scraper fetches pages with plain HTTP GETs and parses them with goquery
type Scraper struct {
	cache     cache.Cache
	limiter   ratelimit.RateLimiter
	client    *http.Client
	sessions  SessionSource
	userAgent string
	headers   map[string]string
	cacheTTL  time.Duration
	maxBody   int64
}

// New creates a new static Scraper with dependency injection.
// Cache, limiter and sessions may be nil.
func New(c cache.Cache, lim ratelimit.RateLimiter, client *http.Client, ua string) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Scraper{
		cache:     c,
		limiter:   lim,
		client:    client,
		userAgent: ua,
		cacheTTL:  5 * time.Minute,
		maxBody:   DefaultMaxBody,
	}
}

// WithSessions enables cookie inclusion from saved sessions
func (s *Scraper) WithSessions(src SessionSource) *Scraper {
	s.sessions = src
	return s
}

// WithHeaders adds headers sent with every request, overriding the defaults
func (s *Scraper) WithHeaders(h map[string]string) *Scraper {
	s.headers = h
	return s
}

// WithCacheTTL sets how long successful responses are cached
func (s *Scraper) WithCacheTTL(ttl time.Duration) *Scraper {
	s.cacheTTL = ttl
	return s
}

// Name returns the name of this scraper
func (s *Scraper) Name() string {
	return "StaticScraper"
}

// Fetch GETs the URL and parses the body whatever the status code.
// Only a request that cannot complete fails, with FETCH_ERROR.
func (s *Scraper) Fetch(ctx context.Context, pageURL string) (*models.Page, error) {
	start := time.Now()

	if err := urlutil.ValidateURL(pageURL); err != nil {
		return nil, engine.NewEngineError(engine.ErrCodeValidation, "invalid URL", err).WithDetail("url", pageURL)
	}

	log.Debug().
		Str("url", pageURL).
		Str("scraper", s.Name()).
		Msg("Starting fetch")

	if s.cache != nil {
		if cached, ok := s.cache.Get(pageURL); ok {
			page, err := metadata.NewPage(cached.URL, cached.FinalURL, cached.StatusCode, cached.Body, models.ModeStatic)
			if err == nil {
				page.ResponseTime = time.Since(start).Milliseconds()
				return page, nil
			}
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx, pageURL); err != nil {
			return nil, fetchError(pageURL, "rate limiter wait aborted", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fetchError(pageURL, "failed to create request", err)
	}

	extra := make(map[string]string, len(s.headers))
	for k, v := range s.headers {
		extra[k] = v
	}

	client := s.client
	if session := s.session(pageURL); session != nil {
		jar, err := cookiejar.New(nil)
		if err == nil {
			u, _ := url.Parse(pageURL)
			cookies := make([]*http.Cookie, 0, len(session.Cookies))
			for _, c := range session.Cookies {
				cookies = append(cookies, c.HTTP())
			}
			jar.SetCookies(u, cookies)

			withJar := *s.client
			withJar.Jar = jar
			client = &withJar
			log.Debug().Str("session", session.Name).Int("cookies", len(cookies)).Msg("Session cookies attached")
		}
		for k, v := range session.Headers {
			if _, set := extra[k]; !set {
				extra[k] = v
			}
		}
	}
	req.Header = headers.Browser(s.userAgent, pageURL, extra)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fetchError(pageURL, "failed to fetch URL", err)
	}
	defer resp.Body.Close()

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		reader = resp.Body
	}
	body, err := io.ReadAll(io.LimitReader(reader, s.maxBody))
	if err != nil {
		return nil, fetchError(pageURL, "failed to read response body", err)
	}

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode >= 400 {
		log.Warn().
			Str("url", pageURL).
			Int("status", resp.StatusCode).
			Msg("Non-success status, parsing body anyway")
	}

	page, err := metadata.NewPage(pageURL, finalURL, resp.StatusCode, body, models.ModeStatic)
	if err != nil {
		return nil, fetchError(pageURL, "failed to parse HTML", err)
	}
	page.ResponseTime = time.Since(start).Milliseconds()

	if s.cache != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_ = s.cache.Set(pageURL, &cache.Response{
			URL:        pageURL,
			FinalURL:   finalURL,
			StatusCode: resp.StatusCode,
			Body:       body,
		}, s.cacheTTL)
	}

	log.Debug().
		Str("url", pageURL).
		Str("final_url", finalURL).
		Int("status", resp.StatusCode).
		Int64("response_time_ms", page.ResponseTime).
		Msg("Fetch completed")

	return page, nil
}

func (s *Scraper) session(pageURL string) *auth.Session {
	if s.sessions == nil {
		return nil
	}
	session, err := s.sessions.ForURL(pageURL)
	if err != nil {
		log.Warn().Err(err).Str("url", pageURL).Msg("Failed to look up session")
		return nil
	}
	return session
}

func fetchError(pageURL, msg string, err error) error {
	return engine.NewEngineError(engine.ErrCodeFetch, msg, err).WithDetail("url", pageURL)
}

var _ engine.Fetcher = (*Scraper)(nil)
