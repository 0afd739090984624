package util

import (
	"context"
	"testing"
	"time"
)

func TestNewHostLimiter_Defaults(t *testing.T) {
	limiter := NewHostLimiter(10, -1)
	if limiter.defaultBurst != 1 {
		t.Errorf("expected default burst 1 for negative input, got %d", limiter.defaultBurst)
	}

	unlimited := NewHostLimiter(0, 1)
	for i := 0; i < 5; i++ {
		if !unlimited.Allow("http://example.com") {
			t.Fatalf("request %d should pass with limiting disabled", i)
		}
	}
}

func TestHostLimiter_Wait(t *testing.T) {
	limiter := NewHostLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "http://example.com/foo"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
	if err := limiter.Wait(ctx, "http://other.com"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestHostLimiter_WaitHonoursContext(t *testing.T) {
	limiter := NewHostLimiter(0.01, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_ = limiter.Wait(ctx, "http://example.com")
	if err := limiter.Wait(ctx, "http://example.com"); err == nil {
		t.Error("expected second wait to fail on the context deadline")
	}
}

func TestHostLimiter_PerHost(t *testing.T) {
	limiter := NewHostLimiter(1, 1)
	url := "http://example.com"

	if !limiter.Allow(url) {
		t.Fatal("first request should pass")
	}
	if limiter.Allow(url) {
		t.Error("expected allow to fail (exhausted tokens)")
	}
	if !limiter.Allow("http://EXAMPLE.org/page") {
		t.Error("expected allow for other host")
	}
}

func TestHostLimiter_SetCrawlDelay(t *testing.T) {
	limiter := NewHostLimiter(10, 10)
	limiter.SetCrawlDelay("Slow.com", 10*time.Second)

	if !limiter.Allow("http://slow.com") {
		t.Error("first request should pass")
	}
	if limiter.Allow("http://slow.com") {
		t.Error("second request should wait for the crawl delay")
	}
	if !limiter.Allow("http://fast.com") {
		t.Error("other host should pass")
	}

	// A shorter delay does not loosen the limit
	limiter.SetCrawlDelay("slow.com", time.Millisecond)
	if limiter.Allow("http://slow.com") {
		t.Error("crawl delay should not be loosened")
	}
}

func TestHostOf(t *testing.T) {
	host, err := hostOf("http://Example.com:8080/foo")
	if err != nil {
		t.Fatalf("hostOf failed: %v", err)
	}
	if host != "example.com:8080" {
		t.Errorf("expected example.com:8080, got %s", host)
	}

	if _, err := hostOf("::invalid"); err == nil {
		t.Error("expected error for invalid URL")
	}
	if _, err := hostOf("/relative/path"); err == nil {
		t.Error("expected error for URL without host")
	}
}
