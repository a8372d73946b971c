package adapters

import (
	"context"

	"blogwatch/internal/core"
	"blogwatch/internal/engineerr"
	"blogwatch/internal/htmlfeed"
)

// GenericAdapter auto-detects between a strict feed document and raw
// HTML at fetch time (spec.md §4.C.1), falling back to HTML-as-feed
// extraction when strict parsing fails or yields zero items.
type GenericAdapter struct {
	deps Deps
}

func (a *GenericAdapter) Name() string { return "generic" }

func (a *GenericAdapter) Discover(ctx context.Context, cfg core.SourceConfig) ([]core.CandidatePost, error) {
	raw, err := a.deps.Fetcher.Fetch(ctx, cfg.URL)
	if err != nil {
		return nil, wrapFetchErr("generic.fetch", err)
	}
	return parseGeneric(raw, cfg)
}

// parseGeneric is shared with BrowserFallbackAdapter, which differs only
// in how it obtains raw bytes, not in how it interprets them.
func parseGeneric(raw []byte, cfg core.SourceConfig) ([]core.CandidatePost, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	posts, err := parseStrictFeed(raw, cfg.Name)
	if err != nil || len(posts) == 0 {
		posts, err = htmlfeed.Extract(raw, cfg.Name, cfg.URL)
		if err != nil {
			return nil, engineerr.New(engineerr.KindParseFormat, "generic.parse", err)
		}
	}

	finalizeFingerprints(posts)
	return boundAndOrder(posts, cfg.MaxPostsPerTick), nil
}
