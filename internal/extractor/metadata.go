package extractor

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

type articleMetadata struct {
	author      string
	publishedAt time.Time
	heroImage   string
}

// jsonLDArticle is the minimal subset of Schema.org Article this parser
// recognizes; author may be a bare string or a nested Person/Organization
// object, both of which occur in the wild.
type jsonLDArticle struct {
	Type          string      `json:"@type"`
	Author        jsonLDAuthor `json:"author"`
	DatePublished string      `json:"datePublished"`
	Image         jsonLDImage `json:"image"`
}

type jsonLDAuthor struct {
	Name string
}

func (a *jsonLDAuthor) UnmarshalJSON(b []byte) error {
	var asString string
	if err := json.Unmarshal(b, &asString); err == nil {
		a.Name = asString
		return nil
	}
	var asObject struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &asObject); err == nil {
		a.Name = asObject.Name
		return nil
	}
	// Some publishers emit an array of authors; take the first.
	var asArray []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &asArray); err == nil && len(asArray) > 0 {
		a.Name = asArray[0].Name
	}
	return nil
}

type jsonLDImage struct {
	URL string
}

func (i *jsonLDImage) UnmarshalJSON(b []byte) error {
	var asString string
	if err := json.Unmarshal(b, &asString); err == nil {
		i.URL = asString
		return nil
	}
	var asObject struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(b, &asObject); err == nil {
		i.URL = asObject.URL
	}
	return nil
}

// extractMetadata resolves author, publish timestamp, and hero image by
// the precedence spec.md §9's open question leaves to the implementer:
// JSON-LD Article first (most structurally explicit), then OpenGraph,
// then bare HTML meta tags. Hero image follows its own documented
// precedence: og:image, then Schema.org image, then twitter:image, then
// the largest in-article <img> with explicit dimensions.
func extractMetadata(doc *goquery.Document) articleMetadata {
	var meta articleMetadata

	ld := findJSONLDArticle(doc)
	if ld != nil {
		if ld.Author.Name != "" {
			meta.author = ld.Author.Name
		}
		if ld.DatePublished != "" {
			meta.publishedAt = parseAnyTimestamp(ld.DatePublished)
		}
	}

	if meta.author == "" {
		if og, ok := doc.Find(`meta[property="article:author"]`).Attr("content"); ok && og != "" {
			meta.author = og
		}
	}
	if meta.author == "" {
		if name, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok && name != "" {
			meta.author = name
		}
	}

	if meta.publishedAt.IsZero() {
		if dt, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
			meta.publishedAt = parseAnyTimestamp(dt)
		}
	}

	if meta.heroImage == "" {
		if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && og != "" {
			meta.heroImage = og
		}
	}
	if meta.heroImage == "" && ld != nil && ld.Image.URL != "" {
		meta.heroImage = ld.Image.URL
	}
	if meta.heroImage == "" {
		if tw, ok := doc.Find(`meta[name="twitter:image"]`).Attr("content"); ok && tw != "" {
			meta.heroImage = tw
		}
	}
	if meta.heroImage == "" {
		meta.heroImage = largestSizedImage(doc)
	}

	return meta
}

// findJSONLDArticle scans every <script type="application/ld+json">
// block for one whose @type is Article (or a subtype ending in
// "Article", e.g. NewsArticle, BlogPosting doesn't match that suffix so
// it's listed explicitly).
func findJSONLDArticle(doc *goquery.Document) *jsonLDArticle {
	var found *jsonLDArticle
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var article jsonLDArticle
		if err := json.Unmarshal([]byte(s.Text()), &article); err != nil {
			return true // keep scanning; this block wasn't a single object
		}
		if isArticleType(article.Type) {
			found = &article
			return false
		}
		return true
	})
	return found
}

func isArticleType(t string) bool {
	switch t {
	case "Article", "NewsArticle", "BlogPosting", "TechArticle":
		return true
	default:
		return strings.HasSuffix(t, "Article")
	}
}

func parseAnyTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// largestSizedImage picks the largest in-article <img> with explicit
// width/height attributes, the last-resort hero-image source per
// spec.md §4.D.
func largestSizedImage(doc *goquery.Document) string {
	var bestURL string
	var bestArea int

	doc.Find("article img, .content img, #content img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || src == "" {
			return
		}
		w := intAttr(img, "width")
		h := intAttr(img, "height")
		if w == 0 || h == 0 {
			return
		}
		if area := w * h; area > bestArea {
			bestArea = area
			bestURL = src
		}
	})
	return bestURL
}

func intAttr(s *goquery.Selection, name string) int {
	v, ok := s.Attr(name)
	if !ok {
		return 0
	}
	n := 0
	for _, r := range v {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
