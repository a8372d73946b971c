package vectorstore

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"blogwatch/internal/core"
)

func TestFormatParseVector_RoundTrip(t *testing.T) {
	in := []float32{0.1, -0.25, 3, 0}
	s := formatVector(in)
	out := parseVector(s)
	if len(out) != len(in) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(in))
	}
	for i := range in {
		if diff := float64(out[i] - in[i]); diff > 1e-6 || diff < -1e-6 {
			t.Errorf("component %d: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestSanitizeCollectionName(t *testing.T) {
	cases := map[string]string{
		"Default":      "default",
		"tech blog-v2": "tech_blog_v2",
		"":             "default",
	}
	for in, want := range cases {
		if got := sanitizeCollectionName(in); got != want {
			t.Errorf("sanitizeCollectionName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPgVectorStore_UpsertRejectsWrongDimension(t *testing.T) {
	db := openTestPostgres(t)
	store, err := NewPgVectorStore(db, "testcol", 4, DistanceCosine)
	if err != nil {
		t.Fatalf("NewPgVectorStore failed: %v", err)
	}
	defer store.Close()

	err = store.Upsert(context.Background(), core.EmbeddingRecord{
		ID: "abc", URL: "https://x.test/a", Title: "t", SourceName: "s",
		Vector: []float32{1, 2}, // wrong dimension
	})
	if err == nil {
		t.Error("expected dimension mismatch error")
	}
}

// TestPgVectorStore_UpsertGetSearch is an integration test exercising a
// real postgres+pgvector instance, mirroring the teacher's DATABASE_URL
// skip pattern for tests that need live infrastructure.
func TestPgVectorStore_UpsertGetSearch(t *testing.T) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	defer db.Close()

	store, err := NewPgVectorStore(db, "integration_test", 3, DistanceCosine)
	if err != nil {
		t.Fatalf("NewPgVectorStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	rec := core.EmbeddingRecord{
		ID: "fp-1", URL: "https://x.test/a", Title: "Article A", SourceName: "example",
		Vector: []float32{1, 0, 0},
	}
	if err := store.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, ok, err := store.Get(ctx, "fp-1")
	if err != nil || !ok {
		t.Fatalf("Get failed: ok=%v err=%v", ok, err)
	}
	if got.Title != rec.Title {
		t.Errorf("got title %q, want %q", got.Title, rec.Title)
	}

	results, err := store.Search(ctx, []float32{1, 0, 0}, 5, Filter{})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 || results[0].Record.ID != "fp-1" {
		t.Errorf("expected fp-1 as closest match, got %+v", results)
	}
}

func openTestPostgres(t *testing.T) *sql.DB {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping test requiring postgres")
	}
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("sql.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
