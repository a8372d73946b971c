// Package capability defines the three external collaborator interfaces
// spec.md §6 treats as out of scope for this core: embedding, optional
// summarization, and optional browser rendering. The engine depends only on
// these interfaces; concrete implementations (genai, chromedp) live in this
// package but are wired in by cmd/engine, never required by internal/enrich
// or internal/adapters directly.
package capability

import "context"

// Embedder produces a dense vector over text. N is the model's native
// dimension; callers truncate to the collection's configured D' per
// spec.md §4.B.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Summarizer produces a short text aimed at surfacing unique technical
// contributions (spec.md §4.E step 5). Optional: callers gate use of this
// capability on ARTICLE__GENERATE_SUMMARY.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Renderer executes a headless-browser navigation and returns the rendered
// HTML, final status, and response headers. Optional: its absence
// degrades MediumAdapter and SPAAdapter to ErrBrowserRequired and
// BrowserFallbackAdapter to HTTP-only per spec.md §4.C.
type Renderer interface {
	RenderPage(ctx context.Context, url string) (html string, status int, headers map[string]string, err error)
}
