// Package proxy rotates outgoing requests across a list of proxies.
package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FailureCooldown is how long a failed proxy is skipped
const FailureCooldown = 5 * time.Minute

// ProxyPool manages a list of proxies with rotation and health checking
type ProxyPool struct {
	proxies []string
	index   int
	mu      sync.Mutex
	failed  map[string]time.Time
}

// NewProxyPool creates a new ProxyPool
func NewProxyPool(proxies []string) *ProxyPool {
	return &ProxyPool{
		proxies: proxies,
		failed:  make(map[string]time.Time),
	}
}

// Parse validates proxy URLs (http, https or socks5) and builds a pool
func Parse(raw []string) (*ProxyPool, error) {
	var proxies []string
	for _, p := range raw {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		u, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy %q: %w", p, err)
		}
		switch u.Scheme {
		case "http", "https", "socks5", "socks5h":
		default:
			return nil, fmt.Errorf("invalid proxy %q: unsupported scheme %q", p, u.Scheme)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("invalid proxy %q: missing host", p)
		}
		proxies = append(proxies, p)
	}
	return NewProxyPool(proxies), nil
}

// Len returns the number of configured proxies
func (p *ProxyPool) Len() int {
	return len(p.proxies)
}

// GetNext returns the next healthy proxy from the pool
func (p *ProxyPool) GetNext() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.proxies) == 0 {
		return ""
	}

	start := p.index
	for {
		proxy := p.proxies[p.index]
		p.index = (p.index + 1) % len(p.proxies)

		if failTime, ok := p.failed[proxy]; ok {
			if time.Since(failTime) < FailureCooldown {
				if p.index == start {
					// every proxy is cooling down
					return proxy
				}
				continue
			}
			delete(p.failed, proxy)
		}

		return proxy
	}
}

// MarkFailed marks a proxy as failed so it will be skipped for a while
func (p *ProxyPool) MarkFailed(proxy string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed[proxy] = time.Now()
}

// MarkHealthy clears the failure status of a proxy
func (p *ProxyPool) MarkHealthy(proxy string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.failed, proxy)
}

// Transport sends each request through the next healthy proxy. A proxy whose
// request fails at the transport level is benched for FailureCooldown.
type Transport struct {
	pool *ProxyPool
	base *http.Transport

	mu         sync.Mutex
	transports map[string]*http.Transport
}

// NewTransport wraps base; with an empty pool requests go out through base
func NewTransport(pool *ProxyPool, base *http.Transport) *Transport {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	return &Transport{pool: pool, base: base, transports: make(map[string]*http.Transport)}
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.pool == nil || t.pool.Len() == 0 {
		return t.base.RoundTrip(req)
	}

	proxy := t.pool.GetNext()
	rt, err := t.transportFor(proxy)
	if err != nil {
		return nil, err
	}

	resp, err := rt.RoundTrip(req)
	if err != nil {
		if req.Context().Err() == nil {
			log.Warn().Err(err).Str("proxy", proxy).Msg("Proxy failed, benching it")
			t.pool.MarkFailed(proxy)
		}
		return nil, err
	}
	t.pool.MarkHealthy(proxy)
	return resp, nil
}

// CloseIdleConnections closes idle connections of every proxy transport
func (t *Transport) CloseIdleConnections() {
	t.base.CloseIdleConnections()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rt := range t.transports {
		rt.CloseIdleConnections()
	}
}

func (t *Transport) transportFor(proxy string) (*http.Transport, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rt, ok := t.transports[proxy]; ok {
		return rt, nil
	}
	u, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", proxy, err)
	}
	rt := t.base.Clone()
	rt.Proxy = http.ProxyURL(u)
	t.transports[proxy] = rt
	return rt, nil
}
