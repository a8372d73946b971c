// Package extractor implements component D: turning raw article HTML
// into cleaned plain text, body HTML, byline, timestamp, and hero image
// (spec.md §4.D). It generalizes the teacher's internal/fetch
// ParseArticleContent (a single main-content-selector sweep) into the
// full readability-heuristic + metadata-precedence pipeline the spec
// requires, reusing goquery as the teacher does throughout.
package extractor

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"blogwatch/internal/core"
)

// decorativeSelector lists the subtrees spec.md §4.D says to remove
// before deriving text: scripts, styles, navigation, footers, forms.
// HTML comment nodes are removed separately in Extract.
const decorativeSelector = "script, style, nav, footer, header, aside, form, iframe, noscript, " +
	".sidebar, #sidebar, .ad, .advertisement, .popup, .modal, .cookie-banner, .comments, #comments"

// contentCandidateSelectors are all matched and every match is scored by
// link-density (scoreNode); the highest score wins, and on a tie the match
// from the earlier selector is kept. This is the teacher's main-content
// sweep generalized so the winner is chosen by measured density rather
// than selector order alone.
var contentCandidateSelectors = []string{
	"article", "main", ".post-content", ".post-body", ".article-body",
	".entry-content", "[role='main']", ".content", "#content",
}

// Extract implements the extract(html) -> ArticleContent contract of
// spec.md §4.D. An empty document yields an ArticleContent with zero
// WordCount rather than an error; callers (internal/enrich) treat that as
// ErrExtractionEmpty and degrade gracefully. A parser failure is returned
// as an error.
func Extract(html string) (core.ArticleContent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return core.ArticleContent{}, err
	}

	meta := extractMetadata(doc)

	doc.Find(decorativeSelector).Remove()
	doc.Find("*").Contents().FilterFunction(func(_ int, s *goquery.Selection) bool {
		return goquery.NodeName(s) == "#comment"
	}).Remove()

	body := pickPrimaryContent(doc)
	cleanedHTML, _ := body.Html()
	text := normalizeWhitespace(extractText(body))

	content := core.ArticleContent{
		Text:         text,
		HTML:         strings.TrimSpace(cleanedHTML),
		Author:       meta.author,
		PublishedAt:  meta.publishedAt,
		WordCount:    wordCount(text),
		HeroImageURL: meta.heroImage,
	}
	return content, nil
}

// pickPrimaryContent identifies the primary content subtree via a
// link-density heuristic (spec.md §4.D: "link density, paragraph
// density, text-to-tag ratio"): among the candidate selectors, the one
// with the lowest link-text ratio and the most paragraph text wins.
// Falls back to <body> when no candidate selector matches anything.
func pickPrimaryContent(doc *goquery.Document) *goquery.Selection {
	var best *goquery.Selection
	bestScore := -1.0

	for _, sel := range contentCandidateSelectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			score := scoreNode(s)
			if score > bestScore {
				bestScore = score
				best = s
			}
		})
	}

	if best == nil || bestScore <= 0 {
		return doc.Find("body")
	}
	return best
}

// scoreNode approximates readability scoring: paragraph text length
// minus a penalty proportional to link density, so a node dominated by
// navigation links (high link-text ratio) loses to one with substantive
// prose even if the nav node has more raw text.
func scoreNode(s *goquery.Selection) float64 {
	totalText := len(s.Text())
	if totalText == 0 {
		return 0
	}
	linkText := 0
	s.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkText += len(a.Text())
	})
	linkDensity := float64(linkText) / float64(totalText)

	paragraphText := 0
	s.Find("p").Each(func(_ int, p *goquery.Selection) {
		paragraphText += len(strings.TrimSpace(p.Text()))
	})

	return float64(paragraphText) * (1 - linkDensity)
}

func extractText(s *goquery.Selection) string {
	var b strings.Builder
	s.Find("p, h1, h2, h3, h4, h5, h6, li, blockquote, pre").Each(func(_ int, item *goquery.Selection) {
		t := strings.TrimSpace(item.Text())
		if t == "" {
			return
		}
		b.WriteString(t)
		b.WriteString("\n\n")
	})
	if b.Len() == 0 {
		return strings.TrimSpace(s.Text())
	}
	return b.String()
}

var blankLineRun = regexp.MustCompile(`\n{3,}`)
var whitespaceRun = regexp.MustCompile(`[ \t]+`)

// normalizeWhitespace collapses runs of blank lines to one and runs of
// horizontal whitespace to a single space, per spec.md §4.D.
func normalizeWhitespace(s string) string {
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = blankLineRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// wordCount is the count of whitespace-separated tokens in text, per
// spec.md §3's invariant on ArticleContent.WordCount.
func wordCount(text string) int {
	return len(strings.Fields(text))
}
