package htmlfeed

import "testing"

func TestExtract_EmptyInputYieldsNoPosts(t *testing.T) {
	posts, err := Extract(nil, "example", "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("expected 0 posts for empty input, got %d", len(posts))
	}
}

func TestExtract_Tier1ArticleLinks(t *testing.T) {
	html := `
<html><body>
<article>
  <span>Home</span>
  <a href="/blog/scaling-to-1m-qps">How We Scaled to 1M QPS</a>
</article>
<article>
  <a href="/about">About</a>
  <a href="/blog/rewrote-our-queue">Why We Rewrote Our Queue</a>
</article>
</body></html>`

	posts, err := Extract([]byte(html), "example", "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts, got %d: %+v", len(posts), posts)
	}
	if posts[0].URL != "https://example.com/blog/scaling-to-1m-qps" {
		t.Errorf("unexpected URL: %s", posts[0].URL)
	}
	if posts[0].Title != "How We Scaled to 1M QPS" {
		t.Errorf("unexpected title: %s", posts[0].Title)
	}
}

func TestExtract_ExcludesNonArticlePaths(t *testing.T) {
	html := `
<html><body>
<article><a href="/categories/golang">Golang posts</a></article>
<article><a href="/pricing">Pricing</a></article>
</body></html>`

	posts, err := Extract([]byte(html), "example", "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("expected excluded paths to yield no posts, got %d: %+v", len(posts), posts)
	}
}

func TestExtract_FallsThroughToTier2WhenNoArticleTags(t *testing.T) {
	html := `
<html><body>
<div class="post-list">
  <div class="post-card">
    <h2><a href="/blog/post-one">Post One</a></h2>
  </div>
  <div class="post-card">
    <h3><a href="/blog/post-two">Post Two</a></h3>
  </div>
</div>
</body></html>`

	posts, err := Extract([]byte(html), "example", "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("expected 2 posts from tier 2, got %d: %+v", len(posts), posts)
	}
}

func TestExtract_Tier3URLScanDedupesByCanonicalURL(t *testing.T) {
	html := `
<html><body>
<a href="/2024/03/launch-day">Launch Day</a>
<a href="/2024/03/launch-day?utm_source=newsletter">Launch Day (again)</a>
</body></html>`

	posts, err := Extract([]byte(html), "example", "https://example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected tracking-param duplicate to be deduped, got %d: %+v", len(posts), posts)
	}
}
