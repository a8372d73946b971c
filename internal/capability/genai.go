package capability

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GenaiCapability implements Embedder and Summarizer against Google's
// google.golang.org/genai client, the successor to the teacher's
// generative-ai-go internal/llm backend. A single
// client serves both capabilities since both are just different model
// calls against the same *genai.Client.
type GenaiCapability struct {
	client          *genai.Client
	embeddingModel  string
	summarizeModel  string
	embeddingDims   int32
	summaryMaxChars int
}

// NewGenaiCapability wires a genai client for use as the embedding and
// summarization capabilities. embeddingDims is the output dimension
// requested from the embedding model via Matryoshka truncation
// (genai.EmbedContentConfig.OutputDimensionality), matching the teacher's
// GenerateEmbedding.
func NewGenaiCapability(ctx context.Context, apiKey, embeddingModel, summarizeModel string, embeddingDims int32, summaryMaxChars int) (*GenaiCapability, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("capability: genai API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("capability: create genai client: %w", err)
	}
	return &GenaiCapability{
		client:          client,
		embeddingModel:  embeddingModel,
		summarizeModel:  summarizeModel,
		embeddingDims:   embeddingDims,
		summaryMaxChars: summaryMaxChars,
	}, nil
}

// EmbedText implements Embedder.
func (g *GenaiCapability) EmbedText(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: text}},
		Role:  "user",
	}}

	dims := g.embeddingDims
	config := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("capability: embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("capability: no embedding values returned")
	}
	return resp.Embeddings[0].Values, nil
}

// Summarize implements Summarizer, prompting for unique technical
// contributions and capping the response to the configured character
// budget (a cheap proxy for the token budget spec.md §4.E step 5 names).
func (g *GenaiCapability) Summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the unique technical contribution of the following article in 2-3 sentences. Focus on what's novel or specific, not generic background.\n\n---\n%s\n---",
		text,
	)
	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	resp, err := g.client.Models.GenerateContent(ctx, g.summarizeModel, contents, nil)
	if err != nil {
		return "", fmt.Errorf("capability: generate summary: %w", err)
	}
	out := resp.Text()
	if out == "" {
		return "", fmt.Errorf("capability: empty summary response")
	}
	if g.summaryMaxChars > 0 && len(out) > g.summaryMaxChars {
		out = out[:g.summaryMaxChars]
	}
	return out, nil
}

// Close releases the underlying client's resources.
func (g *GenaiCapability) Close() error { return nil }
