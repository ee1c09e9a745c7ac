package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestDomainLimiter_BurstPerHost(t *testing.T) {
	dl := NewDomainLimiter(0.001, 2)

	if !dl.Allow("https://a.com/1") || !dl.Allow("https://a.com/2") {
		t.Fatal("expected burst of 2 to be allowed")
	}
	if dl.Allow("https://a.com/3") {
		t.Error("expected third request to be throttled")
	}
	if !dl.Allow("https://b.com/") {
		t.Error("expected separate bucket for another host")
	}
}

func TestDomainLimiter_OverrideAppliesToSubdomains(t *testing.T) {
	dl := NewDomainLimiter(0.001, 1)
	dl.SetLimit("douban.com", 1000, 5)

	for i := 0; i < 5; i++ {
		if !dl.Allow("https://book.douban.com/subject/1/") {
			t.Fatalf("request %d should be allowed by override", i)
		}
	}

	if !dl.Allow("https://example.com/") {
		t.Fatal("first request to other host should pass")
	}
	if dl.Allow("https://example.com/") {
		t.Error("default limit should still apply elsewhere")
	}
}

func TestDomainLimiter_WaitRespectsContext(t *testing.T) {
	dl := NewDomainLimiter(0.001, 1)
	dl.Allow("https://a.com/")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := dl.Wait(ctx, "https://a.com/"); err == nil {
		t.Error("expected Wait to fail when the context ends first")
	}
	if err := dl.Wait(context.Background(), "::bad"); err != nil {
		t.Errorf("invalid URLs should pass through, got %v", err)
	}
}
