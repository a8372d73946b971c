package htmlfeed

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// authorSelectors are tried in order against scope and its ancestors up
// a small number of levels: a class attribute containing "author" as a
// substring (so "post-author" and "authors" match too), rel="author", or
// Schema.org itemprop="author".
var authorSelectors = []string{
	`[class*="author"]`,
	`[rel="author"]`,
	`[itemprop="author"]`,
}

func findAuthor(scope *goquery.Selection) string {
	for level := 0; level < 3 && scope.Length() > 0; level++ {
		for _, sel := range authorSelectors {
			if text := collapseWhitespace(scope.Find(sel).First().Text()); text != "" {
				return text
			}
		}
		scope = scope.Parent()
	}
	return ""
}

func findTimestamp(scope *goquery.Selection) (time.Time, bool) {
	for level := 0; level < 3 && scope.Length() > 0; level++ {
		t := scope.Find("time[datetime]").First()
		if t.Length() > 0 {
			if dt, ok := t.Attr("datetime"); ok {
				if parsed, err := parseTimestamp(dt); err == nil {
					return parsed, true
				}
			}
		}
		scope = scope.Parent()
	}
	return time.Time{}, false
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errParseTimestamp
}

var errParseTimestamp = timestampParseError{}

type timestampParseError struct{}

func (timestampParseError) Error() string { return "htmlfeed: unrecognized timestamp format" }
