package adapters

import (
	"testing"
	"time"

	"blogwatch/internal/core"
	"blogwatch/internal/resilientfetch"
)

func TestSelect_OrderedRules(t *testing.T) {
	deps := Deps{Fetcher: resilientfetch.New(resilientfetch.Options{BotGatedHosts: []string{"gated.test"}})}

	cases := []struct {
		name string
		cfg  core.SourceConfig
		want string
	}{
		{
			name: "nextjs hint wins even on an unrelated host",
			cfg:  core.SourceConfig{URL: "https://eng.example.com/blog", Hints: core.SourceHints{DomainFamily: "nextjs-spa"}},
			want: "spa",
		},
		{
			name: "vercel host without a hint still selects SPA",
			cfg:  core.SourceConfig{URL: "https://my-blog.vercel.app/"},
			want: "spa",
		},
		{
			name: "bot-gated host selects the browser fallback adapter",
			cfg:  core.SourceConfig{URL: "https://gated.test/feed"},
			want: "browser_fallback",
		},
		{
			name: "medium hint selects the medium adapter",
			cfg:  core.SourceConfig{URL: "https://blog.example.com/feed", Hints: core.SourceHints{DomainFamily: "medium"}},
			want: "medium",
		},
		{
			name: "medium.com host selects the medium adapter without a hint",
			cfg:  core.SourceConfig{URL: "https://medium.com/@example/feed"},
			want: "medium",
		},
		{
			name: "plain host falls through to generic",
			cfg:  core.SourceConfig{URL: "https://eng.example.com/feed"},
			want: "generic",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Select(tc.cfg, deps).Name()
			if got != tc.want {
				t.Errorf("Select(%q) = %q, want %q", tc.cfg.URL, got, tc.want)
			}
		})
	}
}

func TestBoundAndOrder_SortsByPublishedDescAndTruncates(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	posts := []core.CandidatePost{
		{URL: "https://x.test/old", PublishedAt: now.Add(-48 * time.Hour)},
		{URL: "https://x.test/new", PublishedAt: now},
		{URL: "https://x.test/mid", PublishedAt: now.Add(-24 * time.Hour)},
		{URL: "https://x.test/undated-a"},
		{URL: "https://x.test/undated-b"},
	}

	ordered := boundAndOrder(posts, 3)
	if len(ordered) != 3 {
		t.Fatalf("expected truncation to 3, got %d", len(ordered))
	}
	want := []string{"https://x.test/new", "https://x.test/mid", "https://x.test/old"}
	for i, w := range want {
		if ordered[i].URL != w {
			t.Errorf("position %d: got %s, want %s", i, ordered[i].URL, w)
		}
	}
}

func TestBoundAndOrder_UndatedPostsPreserveRelativeOrderAfterDated(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	posts := []core.CandidatePost{
		{URL: "https://x.test/undated-a"},
		{URL: "https://x.test/dated", PublishedAt: now},
		{URL: "https://x.test/undated-b"},
	}

	ordered := boundAndOrder(posts, 0)
	if len(ordered) != 3 {
		t.Fatalf("expected no truncation with max=0, got %d", len(ordered))
	}
	if ordered[0].URL != "https://x.test/dated" {
		t.Errorf("expected the dated post first, got %s", ordered[0].URL)
	}
	if ordered[1].URL != "https://x.test/undated-a" || ordered[2].URL != "https://x.test/undated-b" {
		t.Errorf("expected undated posts to keep their relative order, got %+v", ordered)
	}
}

func TestFinalizeFingerprints_DerivesStableFingerprint(t *testing.T) {
	posts := []core.CandidatePost{
		{SourceName: "example", URL: "https://x.test/a?utm_source=foo"},
	}
	finalizeFingerprints(posts)

	want := core.Fingerprint("example", "https://x.test/a")
	if posts[0].Fingerprint != want {
		t.Errorf("got fingerprint %q, want %q", posts[0].Fingerprint, want)
	}
}
