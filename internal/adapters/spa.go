package adapters

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"blogwatch/internal/core"
)

// spaArticlePath matches the canonical article URL template spec.md
// §4.C.3 names for Next.js-style engineering blogs: /YYYY/MM/slug(/).
var spaArticlePath = regexp.MustCompile(`^/\d{4}/\d{2}/[a-z0-9-]+/?$`)

// SPAAdapter handles JavaScript-only single-page sites whose initial
// HTML lacks content: it renders via the browser capability, then scans
// anchors matching the article URL template directly (spec.md §4.C.3),
// bypassing htmlfeed's article/heading heuristics since a SPA's DOM
// rarely carries semantic <article> markup.
type SPAAdapter struct {
	deps Deps
}

func (a *SPAAdapter) Name() string { return "spa" }

func (a *SPAAdapter) Discover(ctx context.Context, cfg core.SourceConfig) ([]core.CandidatePost, error) {
	if a.deps.Renderer == nil {
		return nil, ErrBrowserRequired
	}

	html, _, _, err := a.deps.Renderer.RenderPage(ctx, cfg.URL)
	if err != nil {
		return nil, wrapFetchErr("spa.render", err)
	}

	posts, err := parseSPAAnchors(html, cfg)
	if err != nil {
		return nil, err
	}

	finalizeFingerprints(posts)
	return boundAndOrder(posts, cfg.MaxPostsPerTick), nil
}

func parseSPAAnchors(html string, cfg core.SourceConfig) ([]core.CandidatePost, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(cfg.URL)
	if err != nil {
		base = nil
	}

	seen := map[string]bool{}
	var posts []core.CandidatePost

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		if !spaArticlePath.MatchString(ref.Path) {
			return
		}

		absolute := href
		if base != nil && !ref.IsAbs() {
			absolute = base.ResolveReference(ref).String()
		}
		canonical := core.CanonicalizeURL(absolute)
		if seen[canonical] {
			return
		}
		seen[canonical] = true

		title := strings.TrimSpace(sel.Text())
		if title == "" {
			title = ref.Path
		}
		posts = append(posts, core.CandidatePost{
			SourceName: cfg.Name,
			URL:        absolute,
			Title:      title,
		})
	})

	return posts, nil
}
