package config

import (
	"os"
	"testing"
	"time"
)

func TestParseFeedsFromEnv(t *testing.T) {
	t.Setenv("FEEDS__0__NAME", "example")
	t.Setenv("FEEDS__0__URL", "https://example.com/feed")
	t.Setenv("FEEDS__0__POLL_INTERVAL", "30m")
	t.Setenv("FEEDS__0__MAX_POSTS", "5")
	t.Setenv("FEEDS__0__ENABLED", "true")
	t.Setenv("FEEDS__0__HINTS", "prefers-browser,medium")
	t.Setenv("FEEDS__2__NAME", "other")
	t.Setenv("FEEDS__2__URL", "https://other.test/blog")

	feeds, err := parseFeedsFromEnv()
	if err != nil {
		t.Fatalf("parseFeedsFromEnv failed: %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("expected 2 feeds, got %d", len(feeds))
	}

	first := feeds[0]
	if first.Name != "example" || first.URL != "https://example.com/feed" {
		t.Errorf("unexpected first feed: %+v", first)
	}
	if first.PollInterval != 30*time.Minute {
		t.Errorf("expected 30m poll interval, got %v", first.PollInterval)
	}
	if first.MaxPostsPerTick != 5 {
		t.Errorf("expected max posts 5, got %d", first.MaxPostsPerTick)
	}
	if !first.Hints.PrefersBrowser {
		t.Error("expected PrefersBrowser hint")
	}

	second := feeds[1]
	if second.Name != "other" {
		t.Errorf("unexpected second feed: %+v", second)
	}
	if second.PollInterval != time.Hour {
		t.Errorf("expected default 1h poll interval, got %v", second.PollInterval)
	}
}

func TestParseFeedsFromEnv_MissingURLErrors(t *testing.T) {
	t.Setenv("FEEDS__0__NAME", "incomplete")
	if _, err := parseFeedsFromEnv(); err == nil {
		t.Error("expected error when URL is missing")
	}
}

func TestLoad_DefaultsWithoutFeeds(t *testing.T) {
	for _, key := range os.Environ() {
		_ = key
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cache.Backend != "memory" {
		t.Errorf("expected default cache backend memory, got %q", cfg.Cache.Backend)
	}
	if cfg.Browser.MaxConcurrentBrowsers != 3 {
		t.Errorf("expected default max browsers 3, got %d", cfg.Browser.MaxConcurrentBrowsers)
	}
}
