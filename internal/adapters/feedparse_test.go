package adapters

import "testing"

const testRSS = `<?xml version="1.0"?>
<rss version="2.0">
<channel>
<title>Example Engineering</title>
<item>
  <title>Post One</title>
  <link>https://x.test/one</link>
  <pubDate>Mon, 02 Jan 2006 15:04:05 MST</pubDate>
  <dc:creator xmlns:dc="http://purl.org/dc/elements/1.1/">Dana Author</dc:creator>
  <category>golang</category>
  <category>systems</category>
</item>
<item>
  <title>Post Missing Link</title>
</item>
</channel>
</rss>`

const testAtom = `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
<title>Example Engineering</title>
<entry>
  <title>Atom Post</title>
  <link href="https://x.test/atom-one" rel="alternate"/>
  <published>2024-01-02T15:04:05Z</published>
  <author><name>Atom Author</name></author>
  <summary>An atom summary</summary>
</entry>
</feed>`

const testJSONFeed = `{
  "version": "https://jsonfeed.org/version/1.1",
  "title": "Example Engineering",
  "items": [
    {"id": "1", "url": "https://x.test/json-one", "title": "JSON Post", "summary": "A summary", "author": {"name": "JSON Author"}}
  ]
}`

func TestParseStrictFeed_RSS(t *testing.T) {
	posts, err := parseStrictFeed([]byte(testRSS), "example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post (the item missing a link should be skipped), got %d", len(posts))
	}
	p := posts[0]
	if p.URL != "https://x.test/one" || p.Title != "Post One" {
		t.Errorf("unexpected post: %+v", p)
	}
	if p.Author != "Dana Author" {
		t.Errorf("expected dc:creator to win over author/creator, got %q", p.Author)
	}
	if p.PublishedAt.IsZero() {
		t.Error("expected pubDate to parse")
	}
	if len(p.Tags) != 2 {
		t.Errorf("expected 2 categories, got %d", len(p.Tags))
	}
}

func TestParseStrictFeed_Atom(t *testing.T) {
	posts, err := parseStrictFeed([]byte(testAtom), "example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	p := posts[0]
	if p.URL != "https://x.test/atom-one" || p.Author != "Atom Author" {
		t.Errorf("unexpected post: %+v", p)
	}
}

func TestParseStrictFeed_JSONFeed(t *testing.T) {
	posts, err := parseStrictFeed([]byte(testJSONFeed), "example")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(posts))
	}
	if posts[0].Author != "JSON Author" {
		t.Errorf("unexpected author: %q", posts[0].Author)
	}
}

func TestParseStrictFeed_UnrecognizedDocumentReturnsError(t *testing.T) {
	_, err := parseStrictFeed([]byte(`<html><body>not a feed</body></html>`), "example")
	if err == nil {
		t.Error("expected an error for a document none of RSS/Atom/JSON Feed recognize")
	}
}
