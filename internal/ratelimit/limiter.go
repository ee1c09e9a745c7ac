// internal/ratelimit/limiter.go
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outbound requests per host
type RateLimiter interface {
	// Wait blocks until a request for the given URL can proceed.
	// If the context is cancelled first, its error is returned.
	Wait(ctx context.Context, urlStr string) error

	// Allow reports whether a request for the URL can proceed immediately.
	Allow(urlStr string) bool
}

type limit struct {
	rps   rate.Limit
	burst int
}

// DomainLimiter provides per-host token buckets. Overrides registered for a
// domain apply to that domain and all of its subdomains.
type DomainLimiter struct {
	limiters  map[string]*rate.Limiter
	overrides map[string]limit
	mu        sync.Mutex
	perHost   rate.Limit
	burst     int
}

// NewDomainLimiter creates a new rate limiter with the specified per-host rate
func NewDomainLimiter(requestsPerSecond float64, burst int) *DomainLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2.0 // Default: 2 requests/sec per host
	}
	if burst <= 0 {
		burst = 4
	}

	return &DomainLimiter{
		limiters:  make(map[string]*rate.Limiter),
		overrides: make(map[string]limit),
		perHost:   rate.Limit(requestsPerSecond),
		burst:     burst,
	}
}

// Wait blocks until the request for the given URL can proceed according to rate limits
func (dl *DomainLimiter) Wait(ctx context.Context, urlStr string) error {
	host := hostOf(urlStr)
	if host == "" {
		// Invalid URL, let it proceed (will fail elsewhere)
		return nil
	}
	return dl.getLimiter(host).Wait(ctx)
}

// Allow checks if a request can proceed immediately without blocking
func (dl *DomainLimiter) Allow(urlStr string) bool {
	host := hostOf(urlStr)
	if host == "" {
		return true
	}
	return dl.getLimiter(host).Allow()
}

// SetLimit overrides the rate for a domain and its subdomains.
// Hosts that already have a bucket are updated in place.
func (dl *DomainLimiter) SetLimit(domain string, requestsPerSecond float64, burst int) {
	domain = strings.ToLower(strings.TrimPrefix(domain, "."))
	if burst <= 0 {
		burst = 1
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()

	l := limit{rps: rate.Limit(requestsPerSecond), burst: burst}
	dl.overrides[domain] = l
	for host, limiter := range dl.limiters {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			limiter.SetLimit(l.rps)
			limiter.SetBurst(l.burst)
		}
	}
}

// getLimiter returns or creates the bucket for host
func (dl *DomainLimiter) getLimiter(host string) *rate.Limiter {
	dl.mu.Lock()
	defer dl.mu.Unlock()

	if limiter, exists := dl.limiters[host]; exists {
		return limiter
	}

	l := dl.limitFor(host)
	limiter := rate.NewLimiter(l.rps, l.burst)
	dl.limiters[host] = limiter
	return limiter
}

// limitFor walks from host up through its parent domains looking for an override
func (dl *DomainLimiter) limitFor(host string) limit {
	for h := host; h != ""; {
		if l, ok := dl.overrides[h]; ok {
			return l
		}
		i := strings.IndexByte(h, '.')
		if i < 0 {
			break
		}
		h = h[i+1:]
	}
	return limit{rps: dl.perHost, burst: dl.burst}
}

func hostOf(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
