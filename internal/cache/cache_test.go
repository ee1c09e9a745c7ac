package cache

import (
	"testing"
	"time"
)

func TestMemoryCache_SetGet(t *testing.T) {
	c := NewMemoryCache(1 << 20)
	defer c.Close()

	resp := &Response{URL: "https://example.com", StatusCode: 200, Body: []byte("<html></html>")}
	if err := c.Set("k", resp, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := c.Get("k")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got.Body) != "<html></html>" {
		t.Errorf("unexpected body %q", got.Body)
	}

	if _, ok := c.Get("missing"); ok {
		t.Error("expected miss for unknown key")
	}

	stats := c.Stats()
	if stats["hits"].(uint64) != 1 || stats["misses"].(uint64) != 1 {
		t.Errorf("unexpected stats %v", stats)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(1 << 20)
	defer c.Close()

	_ = c.Set("k", &Response{Body: []byte("x")}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
	if n := c.Stats()["entries"].(int); n != 0 {
		t.Errorf("expected expired entry removed, %d left", n)
	}
}

func TestMemoryCache_EvictsLRU(t *testing.T) {
	// room for two ~1.5KB entries
	c := NewMemoryCache(3500)
	defer c.Close()

	body := make([]byte, 512)
	_ = c.Set("a", &Response{Body: body}, time.Minute)
	_ = c.Set("b", &Response{Body: body}, time.Minute)
	c.Get("a")
	_ = c.Set("c", &Response{Body: body}, time.Minute)

	if _, ok := c.Get("b"); ok {
		t.Error("expected least recently used entry to be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("expected recently used entry to survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("expected newest entry to be present")
	}
}

func TestMemoryCache_ReplaceKeepsSize(t *testing.T) {
	c := NewMemoryCache(1 << 20)
	defer c.Close()

	_ = c.Set("k", &Response{Body: make([]byte, 100)}, time.Minute)
	_ = c.Set("k", &Response{Body: make([]byte, 100)}, time.Minute)

	if size := c.Stats()["size_bytes"].(int64); size != 1124 {
		t.Errorf("expected size 1124 after replace, got %d", size)
	}

	_ = c.Delete("k")
	if size := c.Stats()["size_bytes"].(int64); size != 0 {
		t.Errorf("expected size 0 after delete, got %d", size)
	}
}
