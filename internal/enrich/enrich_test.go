package enrich

import (
	"context"
	"fmt"
	"testing"

	"blogwatch/internal/core"
	"blogwatch/internal/entrystore"
	"blogwatch/internal/resilientfetch"
	"blogwatch/internal/vectorstore"
)

// fakeVectorStore is a minimal in-memory vectorstore.Store so enrich tests
// never need a live postgres/pgvector connection.
type fakeVectorStore struct {
	records     map[string]core.EmbeddingRecord
	upsertCalls int
	upsertErr   error
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{records: map[string]core.EmbeddingRecord{}}
}

func (f *fakeVectorStore) Upsert(_ context.Context, r core.EmbeddingRecord) error {
	f.upsertCalls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.records[r.ID] = r
	return nil
}
func (f *fakeVectorStore) UpsertBatch(ctx context.Context, rs []core.EmbeddingRecord) error {
	for _, r := range rs {
		if err := f.Upsert(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
func (f *fakeVectorStore) Get(_ context.Context, id string) (core.EmbeddingRecord, bool, error) {
	r, ok := f.records[id]
	return r, ok, nil
}
func (f *fakeVectorStore) Delete(_ context.Context, id string) error {
	delete(f.records, id)
	return nil
}
func (f *fakeVectorStore) Search(context.Context, []float32, int, vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	return nil, nil
}
func (f *fakeVectorStore) Count(context.Context, vectorstore.Filter) (int64, error) {
	return int64(len(f.records)), nil
}
func (f *fakeVectorStore) CreateIndex(context.Context) error { return nil }
func (f *fakeVectorStore) Close() error                      { return nil }

type fakeEmbedder struct {
	dim       int
	failTimes int
	calls     int
}

func (e *fakeEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	e.calls++
	if e.calls <= e.failTimes {
		return nil, fmt.Errorf("embedding backend unavailable")
	}
	v := make([]float32, e.dim)
	for i := range v {
		v[i] = 0.5
	}
	return v, nil
}

type fakeSummarizer struct{ summary string }

func (s fakeSummarizer) Summarize(context.Context, string) (string, error) {
	return s.summary, nil
}

func newTestPipeline(t *testing.T, embedder *fakeEmbedder, vectors *fakeVectorStore, cfg Config) (*Pipeline, entrystore.Store) {
	t.Helper()
	entries, err := entrystore.NewMemoryStore(1000)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	p := New(Deps{
		Entries:  entries,
		Vectors:  vectors,
		Fetcher:  resilientfetch.New(resilientfetch.Options{}),
		Embedder: embedder,
	}, cfg)
	return p, entries
}

func samplePost() core.CandidatePost {
	return core.CandidatePost{
		SourceName: "example",
		URL:        "https://x.test/a",
		Title:      "A Post",
		Summary:    "A summary of the post.",
	}
}

func TestEnrich_PersistsAndMarksFingerprint(t *testing.T) {
	vectors := newFakeVectorStore()
	p, entries := newTestPipeline(t, &fakeEmbedder{dim: 4}, vectors, Config{})

	post := samplePost()
	result := p.Enrich(context.Background(), post)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Skipped {
		t.Fatal("expected the first enrichment of a new post not to be skipped")
	}

	want := core.Fingerprint(post.SourceName, post.URL)
	if result.Fingerprint != want {
		t.Errorf("got fingerprint %q, want %q", result.Fingerprint, want)
	}
	if _, ok := vectors.records[want]; !ok {
		t.Error("expected a record to be upserted")
	}
	if has, _ := entries.Has(context.Background(), entrystore.FingerprintKey(want)); !has {
		t.Error("expected the fingerprint to be marked after a successful upsert")
	}
}

func TestEnrich_DedupesAlreadyMarkedFingerprint(t *testing.T) {
	vectors := newFakeVectorStore()
	p, entries := newTestPipeline(t, &fakeEmbedder{dim: 4}, vectors, Config{})

	post := samplePost()
	fp := core.Fingerprint(post.SourceName, post.URL)
	if err := entries.Set(context.Background(), entrystore.FingerprintKey(fp), []byte("1"), 0); err != nil {
		t.Fatalf("seed fingerprint: %v", err)
	}

	result := p.Enrich(context.Background(), post)
	if !result.Skipped || result.Err != nil {
		t.Fatalf("expected a deduped skip, got %+v", result)
	}
	if len(vectors.records) != 0 {
		t.Error("expected no upsert for an already-seen fingerprint")
	}
}

func TestEnrich_EmbeddingFailureTwiceSkipsWithoutMarking(t *testing.T) {
	vectors := newFakeVectorStore()
	embedder := &fakeEmbedder{dim: 4, failTimes: 2}
	p, entries := newTestPipeline(t, embedder, vectors, Config{})

	post := samplePost()
	result := p.Enrich(context.Background(), post)
	if result.Err == nil {
		t.Fatal("expected an embedding error after both attempts fail")
	}
	if !result.Skipped {
		t.Error("an embedding failure should be reported as skipped, not a hard failure, so the next tick retries it")
	}

	fp := core.Fingerprint(post.SourceName, post.URL)
	if has, _ := entries.Has(context.Background(), entrystore.FingerprintKey(fp)); has {
		t.Error("fingerprint must not be marked when embedding fails, so a retry is possible next tick")
	}
	if len(vectors.records) != 0 {
		t.Error("expected no upsert when embedding fails")
	}
}

func TestEnrich_EmbeddingRetriesOnceThenSucceeds(t *testing.T) {
	vectors := newFakeVectorStore()
	embedder := &fakeEmbedder{dim: 4, failTimes: 1}
	p, _ := newTestPipeline(t, embedder, vectors, Config{})

	result := p.Enrich(context.Background(), samplePost())
	if result.Err != nil {
		t.Fatalf("expected the retry to succeed, got %v", result.Err)
	}
	if embedder.calls != 2 {
		t.Errorf("expected exactly 2 embed attempts, got %d", embedder.calls)
	}
}

func TestEnrich_TruncatesVectorToTargetDimension(t *testing.T) {
	vectors := newFakeVectorStore()
	p, _ := newTestPipeline(t, &fakeEmbedder{dim: 16}, vectors, Config{TargetVectorDim: 4})

	post := samplePost()
	result := p.Enrich(context.Background(), post)
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	rec := vectors.records[result.Fingerprint]
	if len(rec.Vector) != 4 {
		t.Errorf("expected vector truncated to 4 dims, got %d", len(rec.Vector))
	}
}

func TestEnrich_UpsertFailureDoesNotMarkFingerprint(t *testing.T) {
	vectors := newFakeVectorStore()
	vectors.upsertErr = fmt.Errorf("database is unreachable")
	p, entries := newTestPipeline(t, &fakeEmbedder{dim: 4}, vectors, Config{})

	post := samplePost()
	result := p.Enrich(context.Background(), post)
	if result.Err == nil {
		t.Fatal("expected an error when the upsert fails")
	}

	fp := core.Fingerprint(post.SourceName, post.URL)
	if has, _ := entries.Has(context.Background(), entrystore.FingerprintKey(fp)); has {
		t.Error("at-most-once ordering requires the fingerprint is marked only after a successful upsert")
	}
}

func TestEnrich_GeneratesSummaryWhenConfigured(t *testing.T) {
	vectors := newFakeVectorStore()
	entries, err := entrystore.NewMemoryStore(1000)
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	p := New(Deps{
		Entries:    entries,
		Vectors:    vectors,
		Fetcher:    resilientfetch.New(resilientfetch.Options{}),
		Embedder:   &fakeEmbedder{dim: 4},
		Summarizer: fakeSummarizer{summary: "a generated summary"},
	}, Config{GenerateSummary: true})

	result := p.Enrich(context.Background(), samplePost())
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	rec := vectors.records[result.Fingerprint]
	if rec.Summary != "a generated summary" {
		t.Errorf("expected the generated summary to be persisted, got %q", rec.Summary)
	}
}
