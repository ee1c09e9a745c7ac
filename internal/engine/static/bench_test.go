package static

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/law-makers/linkmeta/internal/cache"
)

const benchPage = `<!DOCTYPE html>
<html>
<head>
	<title>Test Page</title>
	<meta property="og:title" content="Main Article Title">
	<meta property="og:image" content="/cover.jpg">
	<meta name="description" content="A paragraph with some content.">
</head>
<body>
	<nav>Navigation</nav>
	<main>
		<article>
			<h1>Main Article Title</h1>
			<p>This is a paragraph with some content.</p>
			<div class="content"><p>More content in nested divs.</p></div>
		</article>
	</main>
	<script>console.log('test');</script>
</body>
</html>`

func benchServer(b *testing.B) *httptest.Server {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(benchPage))
	}))
	b.Cleanup(ts.Close)
	return ts
}

// BenchmarkFetch measures fetch plus parse plus base metadata
func BenchmarkFetch(b *testing.B) {
	ts := benchServer(b)
	s := newTestScraper(nil)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := s.Fetch(context.Background(), ts.URL); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkFetch_Cached measures the cache hit path
func BenchmarkFetch_Cached(b *testing.B) {
	ts := benchServer(b)
	c := cache.NewMemoryCache(1 << 20)
	b.Cleanup(c.Close)
	s := newTestScraper(c)

	b.ResetTimer()
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := s.Fetch(context.Background(), ts.URL); err != nil {
				b.Error(err)
			}
		}
	})
}
