package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestProxyPool(t *testing.T) {
	proxies := []string{"p1", "p2", "p3"}
	pool := NewProxyPool(proxies)

	// Test rotation
	if p := pool.GetNext(); p != "p1" {
		t.Errorf("Expected p1, got %s", p)
	}
	if p := pool.GetNext(); p != "p2" {
		t.Errorf("Expected p2, got %s", p)
	}
	if p := pool.GetNext(); p != "p3" {
		t.Errorf("Expected p3, got %s", p)
	}
	if p := pool.GetNext(); p != "p1" {
		t.Errorf("Expected p1, got %s", p)
	}

	// Test failure
	pool.MarkFailed("p2")

	// Should skip p2
	// Current index is at p2 (after returning p1)
	if p := pool.GetNext(); p != "p3" {
		t.Errorf("Expected p3 (skipping p2), got %s", p)
	}

	// Next should be p1
	if p := pool.GetNext(); p != "p1" {
		t.Errorf("Expected p1, got %s", p)
	}

	// Next should be p3 (skipping p2)
	if p := pool.GetNext(); p != "p3" {
		t.Errorf("Expected p3, got %s", p)
	}

	// Mark healthy
	pool.MarkHealthy("p2")

	// Should include p2 again
	// Current index is at p1 (after returning p3)
	if p := pool.GetNext(); p != "p1" {
		t.Errorf("Expected p1, got %s", p)
	}
	if p := pool.GetNext(); p != "p2" {
		t.Errorf("Expected p2, got %s", p)
	}
}

func TestParse(t *testing.T) {
	pool, err := Parse([]string{" http://127.0.0.1:8080 ", "", "socks5://127.0.0.1:1080"})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if pool.Len() != 2 {
		t.Errorf("Expected 2 proxies, got %d", pool.Len())
	}

	for _, bad := range []string{"ftp://x:1", "http://", "::bad"} {
		if _, err := Parse([]string{bad}); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestTransport_RoutesThroughProxy(t *testing.T) {
	var seen int32
	proxyServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&seen, 1)
		if r.URL.Host != "origin.test" {
			t.Errorf("Expected absolute-form request for origin.test, got %s", r.URL)
		}
		w.Write([]byte("via proxy"))
	}))
	defer proxyServer.Close()

	pool := NewProxyPool([]string{proxyServer.URL})
	client := &http.Client{Transport: NewTransport(pool, nil)}

	resp, err := client.Get("http://origin.test/page")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if string(body) != "via proxy" || atomic.LoadInt32(&seen) != 1 {
		t.Errorf("Expected request to go through proxy, got %q", body)
	}
}

func TestTransport_BenchesFailedProxy(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	pool := NewProxyPool([]string{deadURL})
	client := &http.Client{Transport: NewTransport(pool, nil)}

	if _, err := client.Get("http://origin.test/"); err == nil {
		t.Fatal("Expected error through dead proxy")
	}
	pool.mu.Lock()
	_, benched := pool.failed[deadURL]
	pool.mu.Unlock()
	if !benched {
		t.Error("Expected dead proxy to be marked failed")
	}
}

func TestTransport_NoProxies(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("direct"))
	}))
	defer origin.Close()

	client := &http.Client{Transport: NewTransport(NewProxyPool(nil), nil)}
	resp, err := client.Get(origin.URL)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "direct" {
		t.Errorf("Expected direct response, got %q", body)
	}
}
