package adapters

import (
	"context"

	"blogwatch/internal/core"
)

// BrowserFallbackAdapter has the same fetch+parse contract as
// GenericAdapter but prefers the browser capability whenever it's
// available, falling back to plain HTTP only as a last resort (spec.md
// §4.C.4) — used for hosts on the bot-gated list where a plain HTTP GET
// is likely to be challenged.
type BrowserFallbackAdapter struct {
	deps Deps
}

func (a *BrowserFallbackAdapter) Name() string { return "browser_fallback" }

func (a *BrowserFallbackAdapter) Discover(ctx context.Context, cfg core.SourceConfig) ([]core.CandidatePost, error) {
	var raw []byte

	if a.deps.Renderer != nil {
		html, _, _, err := a.deps.Renderer.RenderPage(ctx, cfg.URL)
		if err == nil {
			raw = []byte(html)
		} else {
			log.Warn().Str("source", cfg.Name).Err(err).Msg("browser render failed, falling back to plain HTTP")
		}
	}

	if raw == nil {
		fetched, err := a.deps.Fetcher.Fetch(ctx, cfg.URL)
		if err != nil {
			return nil, wrapFetchErr("browser_fallback.fetch", err)
		}
		raw = fetched
	}

	return parseGeneric(raw, cfg)
}
