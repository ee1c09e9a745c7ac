package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func TestWithRetry_SucceedsAfterTransientStatus(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return NewHTTPError(http.StatusServiceUnavailable, "503 Service Unavailable", "")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_NonRetryableStatus(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(), func() error {
		calls++
		return fmt.Errorf("download: %w", NewHTTPError(http.StatusNotFound, "404 Not Found", ""))
	})
	if err == nil || calls != 1 {
		t.Errorf("Expected a single failed call, got calls=%d err=%v", calls, err)
	}
}

func TestWithRetry_CustomClassifier(t *testing.T) {
	conflict := errors.New("conflict")
	other := errors.New("other")

	calls := 0
	cfg := ConflictConfig(func(err error) bool { return errors.Is(err, conflict) })
	cfg.InitialBackoff = time.Millisecond
	err := WithRetry(context.Background(), cfg, func() error {
		calls++
		if calls == 1 {
			return conflict
		}
		return other
	})
	if !errors.Is(err, other) {
		t.Errorf("Expected the non-conflict error to stop retries, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestWithRetry_ExhaustsAttempts(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxAttempts = 2
	boom := errors.New("boom")

	calls := 0
	err := WithRetry(context.Background(), cfg, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped last error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	cfg := fastConfig()
	cfg.InitialBackoff = time.Second
	cfg.MaxBackoff = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := WithRetry(ctx, cfg, func() error { return errors.New("flaky") })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected context error, got %v", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := Config{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, Multiplier: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}
	for attempt, w := range want {
		if got := calculateBackoff(attempt, cfg); got != w {
			t.Errorf("attempt %d: got %v, want %v", attempt, got, w)
		}
	}
}
