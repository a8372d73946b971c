package adapters

import (
	"context"

	"blogwatch/internal/core"
	"blogwatch/internal/htmlfeed"
)

// MediumAdapter fetches Medium-hosted blogs via the browser capability
// (Medium's logged-out HTML requires a real browser to acquire) and
// parses the result with the generic three-tier HTML-as-feed extraction
// (htmlfeed.Extract). No Medium-specific article-list selectors are
// applied.
type MediumAdapter struct {
	deps Deps
}

func (a *MediumAdapter) Name() string { return "medium" }

func (a *MediumAdapter) Discover(ctx context.Context, cfg core.SourceConfig) ([]core.CandidatePost, error) {
	if a.deps.Renderer == nil {
		return nil, ErrBrowserRequired
	}

	html, _, _, err := a.deps.Renderer.RenderPage(ctx, cfg.URL)
	if err != nil {
		return nil, wrapFetchErr("medium.render", err)
	}

	posts, err := htmlfeed.Extract([]byte(html), cfg.Name, cfg.URL)
	if err != nil {
		return nil, err
	}

	finalizeFingerprints(posts)
	return boundAndOrder(posts, cfg.MaxPostsPerTick), nil
}
