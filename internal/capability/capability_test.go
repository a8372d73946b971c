package capability

import (
	"context"
	"testing"
	"time"
)

// These tests exercise only the parts of the genai/chromedp capability
// implementations that don't require a live API key or a local Chrome
// binary: construction-time validation and config defaulting. Actual
// EmbedContent/GenerateContent/RenderPage calls need live infrastructure,
// the same reason internal/vectorstore/pgvector_test.go skips without
// DATABASE_URL.

func TestNewGenaiCapability_RejectsEmptyAPIKey(t *testing.T) {
	_, err := NewGenaiCapability(context.Background(), "", "embedding-model", "summarize-model", 768, 500)
	if err == nil {
		t.Fatal("expected an error when no API key is configured")
	}
}

func TestNewChromeDPRenderer_FillsInDefaults(t *testing.T) {
	r, err := NewChromeDPRenderer(ChromeDPConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	if r.timeout != 45*time.Second {
		t.Errorf("expected default timeout of 45s, got %v", r.timeout)
	}
	if cap(r.sem) != 3 {
		t.Errorf("expected default MaxConcurrentTabs of 3, got %d", cap(r.sem))
	}
}

func TestNewChromeDPRenderer_HonorsExplicitConfig(t *testing.T) {
	r, err := NewChromeDPRenderer(ChromeDPConfig{Timeout: 10 * time.Second, MaxConcurrentTabs: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer r.Close()

	if r.timeout != 10*time.Second {
		t.Errorf("expected the configured timeout to be honored, got %v", r.timeout)
	}
	if cap(r.sem) != 1 {
		t.Errorf("expected the configured tab limit to be honored, got %d", cap(r.sem))
	}
}

func TestCapabilityInterfaces_AreSatisfied(t *testing.T) {
	var _ Embedder = (*GenaiCapability)(nil)
	var _ Summarizer = (*GenaiCapability)(nil)
	var _ Renderer = (*ChromeDPRenderer)(nil)
}
