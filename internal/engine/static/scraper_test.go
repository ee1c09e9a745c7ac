package static

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/law-makers/linkmeta/internal/auth"
	"github.com/law-makers/linkmeta/internal/cache"
	"github.com/law-makers/linkmeta/internal/engine"
	"github.com/law-makers/linkmeta/internal/ratelimit"
	"golang.org/x/text/encoding/simplifiedchinese"
)

type fixedSessions struct {
	session *auth.Session
}

func (f fixedSessions) ForURL(string) (*auth.Session, error) {
	return f.session, nil
}

func newTestScraper(c cache.Cache) *Scraper {
	return New(c, ratelimit.NewDomainLimiter(100, 100), &http.Client{Timeout: 5 * time.Second}, "TestScraper/1.0")
}

func TestFetch_BasicHTML(t *testing.T) {
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
	<title>Hello World</title>
	<meta property="og:title" content="OG Hello">
	<meta name="description" content="Test page">
	<link rel="icon" href="/favicon.ico">
</head>
<body><h1>Hello World</h1></body>
</html>`))
	}))
	defer server.Close()

	page, err := newTestScraper(nil).Fetch(context.Background(), server.URL+"/page")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if page.StatusCode != 200 {
		t.Errorf("Expected status code 200, got %d", page.StatusCode)
	}
	if page.Base.Title != "OG Hello" {
		t.Errorf("Expected title 'OG Hello', got '%s'", page.Base.Title)
	}
	if page.Base.Description != "Test page" {
		t.Errorf("Expected description 'Test page', got '%s'", page.Base.Description)
	}
	if page.Base.Thumbnail != server.URL+"/favicon.ico" {
		t.Errorf("Expected absolute icon URL, got '%s'", page.Base.Thumbnail)
	}
	if page.Document.Find("h1").Text() != "Hello World" {
		t.Error("Expected parsed document")
	}

	if gotHeaders.Get("User-Agent") != "TestScraper/1.0" {
		t.Errorf("Unexpected User-Agent %q", gotHeaders.Get("User-Agent"))
	}
	if gotHeaders.Get("Accept-Language") == "" {
		t.Error("Expected Accept-Language header")
	}
	if gotHeaders.Get("Referer") != server.URL+"/" {
		t.Errorf("Expected same-origin referer, got %q", gotHeaders.Get("Referer"))
	}
}

func TestFetch_ErrorStatusStillParsed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`<html><head><meta property="og:title" content="Gone but titled"></head></html>`))
	}))
	defer server.Close()

	page, err := newTestScraper(nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Expected no error for 404, got %v", err)
	}
	if page.StatusCode != 404 {
		t.Errorf("Expected status 404, got %d", page.StatusCode)
	}
	if page.Base.Title != "Gone but titled" {
		t.Errorf("Expected metadata from error page, got '%s'", page.Base.Title)
	}
}

func TestFetch_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	_, err := newTestScraper(nil).Fetch(context.Background(), addr)
	if err == nil {
		t.Fatal("Expected error for closed server")
	}
	if !errors.Is(err, engine.ErrFetchFailed) {
		t.Errorf("Expected FETCH_ERROR, got %v", err)
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	_, err := newTestScraper(nil).Fetch(context.Background(), "ftp://example.com/x")
	if engine.CodeOf(err) != engine.ErrCodeValidation {
		t.Errorf("Expected VALIDATION error, got %v", err)
	}
}

func TestFetch_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new/", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><link rel="icon" href="icon.png"></head></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	page, err := newTestScraper(nil).Fetch(context.Background(), server.URL+"/old")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if page.FinalURL != server.URL+"/new/" {
		t.Errorf("Expected final URL after redirect, got %s", page.FinalURL)
	}
	if page.URL != server.URL+"/old" {
		t.Errorf("Expected requested URL kept, got %s", page.URL)
	}
	if page.Base.Thumbnail != server.URL+"/new/icon.png" {
		t.Errorf("Expected icon resolved against final URL, got %s", page.Base.Thumbnail)
	}
}

func TestFetch_SessionCookies(t *testing.T) {
	var gotCookie, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("sid"); err == nil {
			gotCookie = c.Value
		}
		gotHeader = r.Header.Get("X-Token")
		w.Write([]byte(`<html></html>`))
	}))
	defer server.Close()

	s := newTestScraper(nil).WithSessions(fixedSessions{session: &auth.Session{
		Name:    "local",
		Domain:  "127.0.0.1",
		Cookies: []auth.Cookie{{Name: "sid", Value: "abc"}},
		Headers: map[string]string{"X-Token": "t"},
	}})

	if _, err := s.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if gotCookie != "abc" {
		t.Errorf("Expected session cookie to be sent, got %q", gotCookie)
	}
	if gotHeader != "t" {
		t.Errorf("Expected session header to be sent, got %q", gotHeader)
	}
}

func TestFetch_CachesSuccessfulResponses(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`<html><head><title>Cached</title></head></html>`))
	}))
	defer server.Close()

	c := cache.NewMemoryCache(1 << 20)
	defer c.Close()
	s := newTestScraper(c)

	for i := 0; i < 3; i++ {
		page, err := s.Fetch(context.Background(), server.URL)
		if err != nil {
			t.Fatalf("Fetch %d failed: %v", i, err)
		}
		if page.Base.Title != "Cached" {
			t.Errorf("Unexpected title %q", page.Base.Title)
		}
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("Expected a single request, server saw %d", n)
	}
}

func TestFetch_DecodesDeclaredCharset(t *testing.T) {
	body, err := simplifiedchinese.GBK.NewEncoder().String(`<html><head><title>三体</title></head></html>`)
	if err != nil {
		t.Fatal(err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=gbk")
		w.Write([]byte(body))
	}))
	defer server.Close()

	page, err := newTestScraper(nil).Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if page.Base.Title != "三体" {
		t.Errorf("Expected decoded title, got %q", page.Base.Title)
	}
}

func TestFetch_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestScraper(nil).Fetch(ctx, server.URL)
	if !errors.Is(err, engine.ErrFetchFailed) {
		t.Errorf("Expected FETCH_ERROR on cancellation, got %v", err)
	}
}
