// Package vectorstore implements component B: upsert and approximate
// nearest-neighbor search over fixed-dimension EmbeddingRecords, sharing a
// connection pool with the entry store (component A).
package vectorstore

import (
	"context"

	"blogwatch/internal/core"
)

// Store is the contract enrichment (component E) and callers use.
type Store interface {
	// Upsert inserts or replaces record by ID. All vectors in a collection
	// share the same dimension D'.
	Upsert(ctx context.Context, record core.EmbeddingRecord) error
	// UpsertBatch upserts many records; equivalent to Upsert called in a
	// loop but given a concrete batch hook per spec.md §4.B.
	UpsertBatch(ctx context.Context, records []core.EmbeddingRecord) error
	// Get returns a record by id, or ok=false on a miss.
	Get(ctx context.Context, id string) (record core.EmbeddingRecord, ok bool, err error)
	// Delete removes a record by id.
	Delete(ctx context.Context, id string) error
	// Search returns the k nearest records to queryVector, ordered by
	// ascending distance, ties broken by id ascending.
	Search(ctx context.Context, queryVector []float32, k int, filter Filter) ([]SearchResult, error)
	// Count returns the number of records matching filter (a zero Filter
	// matches everything).
	Count(ctx context.Context, filter Filter) (int64, error)
	// CreateIndex creates the collection's HNSW similarity index,
	// idempotently.
	CreateIndex(ctx context.Context) error
	Close() error
}

// Filter narrows Search/Count to a subset of the collection.
type Filter struct {
	SourceName string // empty matches any source
}

// SearchResult pairs a stored record with its distance from the query
// vector (smaller is more similar).
type SearchResult struct {
	Record   core.EmbeddingRecord
	Distance float64
}

// Distance selects the metric a collection is created with; documented
// once per deployment per spec.md §4.B.
type Distance int

const (
	DistanceCosine Distance = iota
	DistanceInnerProduct
)

func (d Distance) pgOperator() string {
	if d == DistanceInnerProduct {
		return "<#>"
	}
	return "<=>"
}
