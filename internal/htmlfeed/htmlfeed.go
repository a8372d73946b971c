// Package htmlfeed implements three-tier HTML-as-feed extraction: given
// raw HTML bytes and no feed document to parse, produce CandidatePosts by
// locating article-shaped links. Tier
// ordering is fixed; the first tier to yield a non-empty, validated set
// wins. GenericAdapter falls back here when feed parsing fails or yields
// zero items; MediumAdapter uses it directly after a browser render.
package htmlfeed

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"blogwatch/internal/core"
)

// publicationSegments are the path fragments that read as "publication-like"
// — present in a validated Tier 1 link or a Tier 3 scan match.
var publicationSegments = []string{"/blog/", "/news/", "/post/", "/articles/", "/engineering/"}

// yearMonthPattern matches a /YYYY/MM/ path segment, the other
// publication-like shape worth treating as an article URL.
var yearMonthPattern = regexp.MustCompile(`/\d{4}/\d{2}/`)

// excludedPathPrefixes are skipped regardless of tier.
var excludedPathPrefixes = []string{
	"/categories/", "/tags/", "/authors/", "/platform", "/solutions/", "/pricing", "/about",
}

// postListMarkers identify a Tier 2 container by class or id substring.
var postListMarkers = []string{"post", "entry", "card", "article"}

// Extract runs the three-tier strategy over htmlBytes, resolving relative
// links against origin (the source's base URL) and tagging every
// resulting post with sourceName. Zero bytes in yields zero posts, not an
// error.
func Extract(htmlBytes []byte, sourceName, origin string) ([]core.CandidatePost, error) {
	if len(htmlBytes) == 0 {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(htmlBytes)))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(origin)
	if err != nil {
		base = nil
	}

	if posts := tier1Articles(doc, base, sourceName); len(posts) > 0 {
		return posts, nil
	}
	if posts := tier2Headings(doc, base, sourceName); len(posts) > 0 {
		return posts, nil
	}
	return tier3URLScan(doc, base, sourceName), nil
}

// tier1Articles locates each <article> subtree and, within it, picks the
// <a href> whose visible text is longest (avoiding breadcrumbs), then
// validates the link looks like a publication path.
func tier1Articles(doc *goquery.Document, base *url.URL, sourceName string) []core.CandidatePost {
	var posts []core.CandidatePost
	seen := map[string]bool{}

	doc.Find("article").Each(func(_ int, article *goquery.Selection) {
		var bestHref, bestText string
		article.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			text := collapseWhitespace(a.Text())
			if href == "" || len(text) <= len(bestText) {
				return
			}
			bestHref, bestText = href, text
		})
		if bestHref == "" || excluded(bestHref) || !looksLikePublicationPath(bestHref) {
			return
		}
		absolute := resolve(base, bestHref)
		if seen[absolute] {
			return
		}
		seen[absolute] = true

		post := core.CandidatePost{
			SourceName: sourceName,
			URL:        absolute,
			Title:      bestText,
		}
		enrichFromSiblings(article, &post)
		posts = append(posts, post)
	})
	return posts
}

// tier2Headings finds links nested under <h2>/<h3> inside elements whose
// class or id carries a post-list marker.
func tier2Headings(doc *goquery.Document, base *url.URL, sourceName string) []core.CandidatePost {
	var posts []core.CandidatePost
	seen := map[string]bool{}

	doc.Find("*").Each(func(_ int, container *goquery.Selection) {
		class, _ := container.Attr("class")
		id, _ := container.Attr("id")
		if !hasMarker(class) && !hasMarker(id) {
			return
		}

		container.Find("h2 a[href], h3 a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			text := collapseWhitespace(a.Text())
			if href == "" || text == "" || excluded(href) {
				return
			}
			absolute := resolve(base, href)
			if seen[absolute] {
				return
			}
			seen[absolute] = true

			post := core.CandidatePost{
				SourceName: sourceName,
				URL:        absolute,
				Title:      text,
			}
			enrichFromSiblings(a.Parent(), &post)
			posts = append(posts, post)
		})
	})
	return posts
}

// tier3URLScan scans every anchor whose href matches an article-shaped
// path, deduplicating by canonical URL.
func tier3URLScan(doc *goquery.Document, base *url.URL, sourceName string) []core.CandidatePost {
	var posts []core.CandidatePost
	seen := map[string]bool{}

	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" || excluded(href) || !looksLikePublicationPath(href) {
			return
		}
		absolute := resolve(base, href)
		canonical := core.CanonicalizeURL(absolute)
		if seen[canonical] {
			return
		}
		seen[canonical] = true

		text := collapseWhitespace(a.Text())
		if text == "" {
			return
		}
		post := core.CandidatePost{
			SourceName: sourceName,
			URL:        absolute,
			Title:      text,
		}
		enrichFromSiblings(a, &post)
		posts = append(posts, post)
	})
	return posts
}

func hasMarker(s string) bool {
	lower := strings.ToLower(s)
	for _, m := range postListMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func looksLikePublicationPath(href string) bool {
	lower := strings.ToLower(href)
	for _, seg := range publicationSegments {
		if strings.Contains(lower, seg) {
			return true
		}
	}
	return yearMonthPattern.MatchString(lower)
}

// excluded reports whether href is one of the skip-listed paths, the
// root anchor, or a mailto link, per spec.md §4.C.5.
func excluded(href string) bool {
	if href == "#" || strings.HasPrefix(href, "mailto:") {
		return true
	}
	lower := strings.ToLower(href)
	for _, p := range excludedPathPrefixes {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil || ref.IsAbs() {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// enrichFromSiblings attempts byline and timestamp extraction from
// sibling nodes with a class attribute containing "author", rel="author", Schema.org
// itemprop="author", or a <time datetime> element, scoped to the
// surrounding container scope passed in.
func enrichFromSiblings(scope *goquery.Selection, post *core.CandidatePost) {
	if author := findAuthor(scope); author != "" {
		post.Author = author
	}
	if ts, ok := findTimestamp(scope); ok {
		post.PublishedAt = ts
	}
}
