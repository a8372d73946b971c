package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"blogwatch/internal/core"
)

// PgVectorStore implements Store against a posts_<collection> table with a
// pgvector VECTOR(D') column, per spec.md §6.
type PgVectorStore struct {
	db         *sql.DB
	table      string // "posts_<collection>"
	dim        int
	distance   Distance
}

// NewPgVectorStore wraps an already-open pool (optionally shared with the
// entry store) and ensures posts_<collection> exists with a VECTOR(dim)
// column.
func NewPgVectorStore(db *sql.DB, collection string, dim int, distance Distance) (*PgVectorStore, error) {
	table := "posts_" + sanitizeCollectionName(collection)
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		source TEXT NOT NULL,
		author TEXT NULL,
		published_at TIMESTAMPTZ NULL,
		summary TEXT NULL,
		vector VECTOR(%d) NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`, table, dim)

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("vectorstore: initialize schema: %w", err)
	}

	return &PgVectorStore{db: db, table: table, dim: dim, distance: distance}, nil
}

func sanitizeCollectionName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}

func (s *PgVectorStore) Upsert(ctx context.Context, record core.EmbeddingRecord) error {
	if len(record.Vector) != s.dim {
		return fmt.Errorf("vectorstore: record %q has vector length %d, collection dimension is %d", record.ID, len(record.Vector), s.dim)
	}
	if !core.AllFinite(record.Vector) {
		return fmt.Errorf("vectorstore: record %q has a non-finite vector component", record.ID)
	}

	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("vectorstore: marshal metadata: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, url, title, source, author, published_at, summary, vector, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector, $9, now(), now())
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			source = EXCLUDED.source,
			author = EXCLUDED.author,
			published_at = EXCLUDED.published_at,
			summary = EXCLUDED.summary,
			vector = EXCLUDED.vector,
			metadata = EXCLUDED.metadata,
			updated_at = now()
	`, s.table)

	_, err = s.db.ExecContext(ctx, query,
		record.ID, record.URL, record.Title, record.SourceName,
		nullIfEmpty(record.Author), nullIfZeroTime(record.PublishedAt), nullIfEmpty(record.Summary),
		formatVector(record.Vector), metadata,
	)
	if err != nil {
		return fmt.Errorf("vectorstore: upsert %q: %w", record.ID, err)
	}
	return nil
}

func (s *PgVectorStore) UpsertBatch(ctx context.Context, records []core.EmbeddingRecord) error {
	for _, r := range records {
		if err := s.Upsert(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *PgVectorStore) Get(ctx context.Context, id string) (core.EmbeddingRecord, bool, error) {
	query := fmt.Sprintf(`
		SELECT id, url, title, source, author, published_at, summary, vector, metadata, created_at, updated_at
		FROM %s WHERE id = $1
	`, s.table)

	row := s.db.QueryRowContext(ctx, query, id)
	record, err := scanRecord(row, s.dim)
	if err == sql.ErrNoRows {
		return core.EmbeddingRecord{}, false, nil
	}
	if err != nil {
		return core.EmbeddingRecord{}, false, fmt.Errorf("vectorstore: get %q: %w", id, err)
	}
	return record, true, nil
}

func (s *PgVectorStore) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("vectorstore: delete %q: %w", id, err)
	}
	return nil
}

func (s *PgVectorStore) Search(ctx context.Context, queryVector []float32, k int, filter Filter) ([]SearchResult, error) {
	if k <= 0 {
		k = 10
	}
	op := s.distance.pgOperator()

	where := ""
	args := []any{formatVector(queryVector)}
	if filter.SourceName != "" {
		args = append(args, filter.SourceName)
		where = fmt.Sprintf("WHERE source = $%d", len(args))
	}
	args = append(args, k)

	query := fmt.Sprintf(`
		SELECT id, url, title, source, author, published_at, summary, vector, metadata, created_at, updated_at,
		       vector %s $1::vector AS distance
		FROM %s
		%s
		ORDER BY distance ASC, id ASC
		LIMIT $%d
	`, op, s.table, where, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r core.EmbeddingRecord
		var vectorStr string
		var metadata []byte
		var author, summary sql.NullString
		var publishedAt sql.NullTime
		var distance float64

		if err := rows.Scan(&r.ID, &r.URL, &r.Title, &r.SourceName, &author, &publishedAt, &summary,
			&vectorStr, &metadata, &r.CreatedAt, &r.UpdatedAt, &distance); err != nil {
			return nil, fmt.Errorf("vectorstore: scan search row: %w", err)
		}
		r.Author = author.String
		r.Summary = summary.String
		if publishedAt.Valid {
			r.PublishedAt = publishedAt.Time
		}
		r.Vector = parseVector(vectorStr)
		_ = json.Unmarshal(metadata, &r.Metadata)

		results = append(results, SearchResult{Record: r, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vectorstore: search row iteration: %w", err)
	}

	// Belt-and-braces: the SQL ORDER BY already gives ascending distance with
	// id as a tiebreaker, but re-sort here so the invariant holds even if a
	// caller swaps in a backend without a matching ORDER BY guarantee.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Record.ID < results[j].Record.ID
	})

	return results, nil
}

func (s *PgVectorStore) Count(ctx context.Context, filter Filter) (int64, error) {
	where := ""
	args := []any{}
	if filter.SourceName != "" {
		args = append(args, filter.SourceName)
		where = "WHERE source = $1"
	}
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s %s`, s.table, where)

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("vectorstore: count: %w", err)
	}
	return count, nil
}

// CreateIndex creates an HNSW index over the vector column, idempotently,
// matching the teacher's check-then-create pattern.
func (s *PgVectorStore) CreateIndex(ctx context.Context) error {
	indexName := s.table + "_vector_hnsw"

	var exists bool
	checkQuery := `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE tablename = $1 AND indexname = $2)`
	if err := s.db.QueryRowContext(ctx, checkQuery, s.table, indexName).Scan(&exists); err != nil {
		return fmt.Errorf("vectorstore: check index existence: %w", err)
	}
	if exists {
		return nil
	}

	opsClass := "vector_cosine_ops"
	if s.distance == DistanceInnerProduct {
		opsClass = "vector_ip_ops"
	}

	createQuery := fmt.Sprintf(`
		CREATE INDEX %s ON %s USING hnsw (vector %s) WITH (m = 16, ef_construction = 64)
	`, indexName, s.table, opsClass)

	if _, err := s.db.ExecContext(ctx, createQuery); err != nil {
		return fmt.Errorf("vectorstore: create hnsw index: %w", err)
	}
	return nil
}

// Close is a no-op when the pool is shared with the entry store; the pool
// owner closes it once at shutdown.
func (s *PgVectorStore) Close() error { return nil }

func scanRecord(row *sql.Row, dim int) (core.EmbeddingRecord, error) {
	var r core.EmbeddingRecord
	var vectorStr string
	var metadata []byte
	var author, summary sql.NullString
	var publishedAt sql.NullTime

	if err := row.Scan(&r.ID, &r.URL, &r.Title, &r.SourceName, &author, &publishedAt, &summary,
		&vectorStr, &metadata, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return core.EmbeddingRecord{}, err
	}
	r.Author = author.String
	r.Summary = summary.String
	if publishedAt.Valid {
		r.PublishedAt = publishedAt.Time
	}
	r.Vector = parseVector(vectorStr)
	_ = json.Unmarshal(metadata, &r.Metadata)
	return r, nil
}

// formatVector renders a []float32 in pgvector's text input format, e.g.
// "[0.1,0.2,0.3]".
func formatVector(vector []float32) string {
	parts := make([]string, len(vector))
	for i, v := range vector {
		parts[i] = fmt.Sprintf("%g", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// parseVector reverses formatVector for values pgvector returns as text.
func parseVector(s string) []float32 {
	s = strings.Trim(s, "[]")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]float32, 0, len(parts))
	for _, p := range parts {
		var f float64
		_, _ = fmt.Sscanf(strings.TrimSpace(p), "%g", &f)
		out = append(out, float32(f))
	}
	return out
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
