// Package enrich implements component E: the seven-step per-post pipeline
// that turns a CandidatePost into a persisted EmbeddingRecord — fingerprint,
// dedupe, full-text fetch, extract, optional summarize, embed, persist
// (spec.md §4.E). Steps run strictly sequentially for a given candidate;
// concurrency across candidates is the orchestrator's concern.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"blogwatch/internal/capability"
	"blogwatch/internal/core"
	"blogwatch/internal/engineerr"
	"blogwatch/internal/entrystore"
	"blogwatch/internal/extractor"
	"blogwatch/internal/logger"
	"blogwatch/internal/resilientfetch"
	"blogwatch/internal/vectorstore"
)

var log = logger.Component("enrich")

// Deps bundles every collaborator a Pipeline composes over. Summarizer may
// be nil (capability not configured or ARTICLE__GENERATE_SUMMARY off).
type Deps struct {
	Entries  entrystore.Store
	Vectors  vectorstore.Store
	Fetcher  *resilientfetch.Client
	Embedder capability.Embedder
	Summarizer capability.Summarizer
}

// Config gates the optional steps and bounds text/vector sizes.
type Config struct {
	FullContentCapture bool
	GenerateSummary    bool
	ContentTTL         time.Duration // TTL for the cached full-article fetch, default 7 days
	TargetVectorDim    int           // D'; 0 means "use the embedder's native width unmodified"
	EmbedInputMaxChars int           // truncation budget before calling the embedder
}

// Pipeline runs the enrichment sequence for candidates from one source.
type Pipeline struct {
	deps Deps
	cfg  Config
}

func New(deps Deps, cfg Config) *Pipeline {
	if cfg.ContentTTL <= 0 {
		cfg.ContentTTL = 7 * 24 * time.Hour
	}
	if cfg.EmbedInputMaxChars <= 0 {
		cfg.EmbedInputMaxChars = 20_000
	}
	return &Pipeline{deps: deps, cfg: cfg}
}

// Result records the outcome of enriching one candidate, for the
// orchestrator's per-tick counters and structured log events (spec.md §7:
// "a structured log event per failure (kind, source, url, attempt count)").
type Result struct {
	Fingerprint string
	Skipped     bool // deduped (Err nil), or embedding failed after its retry (Err set)
	Err         error
}

// Enrich runs steps 1-7 of spec.md §4.E against a single candidate.
func (p *Pipeline) Enrich(ctx context.Context, post core.CandidatePost) Result {
	// Step 1: fingerprint. Adapters already populate this via
	// finalizeFingerprints, but recomputing here keeps the pipeline correct
	// even for candidates built outside the adapter layer (e.g. tests).
	fingerprint := post.Fingerprint
	if fingerprint == "" {
		fingerprint = core.Fingerprint(post.SourceName, post.URL)
	}

	// Step 2: dedupe.
	has, err := p.deps.Entries.Has(ctx, entrystore.FingerprintKey(fingerprint))
	if err != nil {
		return p.fail(fingerprint, post, engineerr.New(engineerr.KindStoreUnavailable, "enrich.dedupe", err))
	}
	if has {
		return Result{Fingerprint: fingerprint, Skipped: true}
	}

	text := post.Summary
	var author string = post.Author
	var publishedAt = post.PublishedAt
	var heroImage string

	if p.cfg.FullContentCapture {
		article, extractErr := p.fetchAndExtract(ctx, post)
		switch {
		case extractErr != nil && engineerr.Is(extractErr, engineerr.KindExtractionEmpty):
			log.Warn().Str("source", post.SourceName).Str("url", post.URL).Msg("extraction yielded empty text, degrading to feed summary")
		case extractErr != nil:
			return p.fail(fingerprint, post, extractErr)
		default:
			if article.Text != "" {
				text = article.Text
			}
			if article.Author != "" {
				author = article.Author
			}
			if !article.PublishedAt.IsZero() {
				publishedAt = article.PublishedAt
			}
			heroImage = article.HeroImageURL
		}
	}

	// Step 5: optional summarization.
	summary := post.Summary
	if p.cfg.GenerateSummary && p.deps.Summarizer != nil && text != "" {
		s, err := p.deps.Summarizer.Summarize(ctx, text)
		if err != nil {
			log.Warn().Str("source", post.SourceName).Str("url", post.URL).Err(err).Msg("summarization failed, proceeding without summary")
		} else {
			summary = s
		}
	}

	// Step 6: embed.
	embedInput := canonicalEmbedInput(post.Title, summary, text, p.cfg.EmbedInputMaxChars)
	vector, err := p.embedWithRetry(ctx, embedInput)
	if err != nil {
		// spec.md §7: ErrEmbeddingFailed -> retry once, then skip without
		// marking the fingerprint so the next tick retries it.
		return Result{Fingerprint: fingerprint, Skipped: true, Err: err}
	}
	if p.cfg.TargetVectorDim > 0 && len(vector) != p.cfg.TargetVectorDim {
		vector, err = core.TruncatePrefix(vector, p.cfg.TargetVectorDim)
		if err != nil {
			return p.fail(fingerprint, post, engineerr.New(engineerr.KindEmbeddingFailed, "enrich.truncate", err))
		}
	}
	if !core.AllFinite(vector) {
		return p.fail(fingerprint, post, engineerr.New(engineerr.KindEmbeddingFailed, "enrich.embed", fmt.Errorf("embedding contains non-finite components")))
	}

	// Step 7: persist. The fingerprint mark happens only after a successful
	// upsert (spec.md §4.E's at-most-once ordering, §8 invariant 2).
	now := time.Now().UTC()
	record := core.EmbeddingRecord{
		ID:          fingerprint,
		URL:         post.URL,
		Title:       post.Title,
		SourceName:  post.SourceName,
		Author:      author,
		PublishedAt: publishedAt,
		Summary:     summary,
		Vector:      vector,
		Metadata:    heroImageMetadata(heroImage),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.deps.Vectors.Upsert(ctx, record); err != nil {
		return p.fail(fingerprint, post, engineerr.New(engineerr.KindStoreUnavailable, "enrich.upsert", err))
	}
	if err := p.deps.Entries.Set(ctx, entrystore.FingerprintKey(fingerprint), []byte("1"), 0); err != nil {
		// The record is already durably upserted; a missed mark only costs
		// one redundant retry next tick (idempotent upsert), not a
		// duplicate record. Log rather than fail the candidate.
		log.Error().Str("fingerprint", fingerprint).Err(err).Msg("failed to mark fingerprint after successful upsert")
	}

	return Result{Fingerprint: fingerprint}
}

func (p *Pipeline) fail(fingerprint string, post core.CandidatePost, err error) Result {
	log.Error().Str("source", post.SourceName).Str("url", post.URL).Err(err).Msg("enrichment failed")
	return Result{Fingerprint: fingerprint, Err: err}
}

// fetchAndExtract implements steps 3-4: a cached resilient fetch of the
// full article, then content extraction.
func (p *Pipeline) fetchAndExtract(ctx context.Context, post core.CandidatePost) (core.ArticleContent, error) {
	canonical := core.CanonicalizeURL(post.URL)
	cacheKey := entrystore.ArticleKey(canonical)

	if cached, ok, err := p.deps.Entries.Get(ctx, cacheKey); err == nil && ok {
		return extractor.Extract(string(cached))
	}

	raw, err := p.deps.Fetcher.Fetch(ctx, post.URL)
	if err != nil {
		return core.ArticleContent{}, err
	}
	if err := p.deps.Entries.Set(ctx, cacheKey, raw, p.cfg.ContentTTL); err != nil {
		log.Warn().Str("url", post.URL).Err(err).Msg("failed to cache fetched article")
	}

	content, err := extractor.Extract(string(raw))
	if err != nil {
		return core.ArticleContent{}, engineerr.New(engineerr.KindParseFormat, "enrich.extract", err)
	}
	if content.WordCount == 0 {
		return content, engineerr.New(engineerr.KindExtractionEmpty, "enrich.extract", fmt.Errorf("extracted zero words from %s", post.URL))
	}
	return content, nil
}

// embedWithRetry implements the ErrEmbeddingFailed policy of spec.md §7:
// retry once, then give up.
func (p *Pipeline) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	vector, err := p.deps.Embedder.EmbedText(ctx, text)
	if err == nil {
		return vector, nil
	}
	log.Warn().Err(err).Msg("embedding failed, retrying once")
	vector, err = p.deps.Embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, engineerr.New(engineerr.KindEmbeddingFailed, "enrich.embed", err)
	}
	return vector, nil
}

// canonicalEmbedInput builds the title+summary+text input spec.md §4.E step
// 6 specifies, truncated to maxChars so the embedding capability's input
// budget is never exceeded.
func canonicalEmbedInput(title, summary, text string, maxChars int) string {
	var b strings.Builder
	b.WriteString(title)
	if summary != "" {
		b.WriteString("\n\n")
		b.WriteString(summary)
	}
	if text != "" {
		b.WriteString("\n\n")
		b.WriteString(text)
	}
	out := b.String()
	if len(out) > maxChars {
		out = out[:maxChars]
	}
	return out
}

func heroImageMetadata(heroImage string) map[string]any {
	if heroImage == "" {
		return nil
	}
	return map[string]any{"hero_image_url": heroImage}
}
