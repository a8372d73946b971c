// Command engine wires an AppContext (config, store pools, capability
// handles) and runs the orchestrator until terminated. It is NOT the CLI
// entry point described in spec.md §1 ("the command-line entry point,
// environment-variable loading, and process lifecycle" are named
// out-of-core there) — it exists only to show the module compiles and
// runs end to end, the way a teacher repo's cmd/ package demonstrates its
// library packages wired together.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blogwatch/internal/adapters"
	"blogwatch/internal/capability"
	"blogwatch/internal/config"
	"blogwatch/internal/enrich"
	"blogwatch/internal/entrystore"
	"blogwatch/internal/logger"
	"blogwatch/internal/orchestrator"
	"blogwatch/internal/resilientfetch"
	"blogwatch/internal/vectorstore"
)

func main() {
	if err := run(); err != nil {
		logger.Get().Error().Err(err).Msg("fatal startup failure")
		os.Exit(1)
	}
}

// run builds every component in dependency order (leaves first, matching
// spec.md §2's component table) and blocks until shutdown. Returning an
// error here is exit code 1 (spec.md §6 "configuration or fatal
// initialization failure"); a grace-period timeout during shutdown is
// logged but still exits 0, since the orchestrator itself absorbs that
// case internally per spec.md §4.F.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger.Init(cfg.Debug)

	entries, pool, err := openEntryStore(cfg.Cache)
	if err != nil {
		return fmt.Errorf("entrystore: %w", err)
	}
	defer entries.Close()
	if pool != nil {
		defer pool.Close()
	}

	vectors, err := openVectorStore(cfg.VectorDB, pool)
	if err != nil {
		return fmt.Errorf("vectorstore: %w", err)
	}
	defer vectors.Close()
	if err := vectors.CreateIndex(context.Background()); err != nil {
		return fmt.Errorf("vectorstore: create index: %w", err)
	}

	fetcher := resilientfetch.New(resilientfetch.Options{
		BotGatedHosts: []string{"medium.com"},
	})

	var renderer capability.Renderer
	chrome, err := capability.NewChromeDPRenderer(capability.ChromeDPConfig{
		Headless:          true,
		MaxConcurrentTabs: cfg.Browser.MaxConcurrentBrowsers,
	})
	if err != nil {
		logger.Get().Warn().Err(err).Msg("browser capability unavailable; SPA/Medium sources will report ErrBrowserRequired")
	} else {
		renderer = chrome
		defer chrome.Close()
	}

	var embedder capability.Embedder
	var summarizer capability.Summarizer
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		genai, err := capability.NewGenaiCapability(
			context.Background(), apiKey,
			cfg.Embedding.ModelName, "gemini-flash-lite-latest",
			int32(cfg.Embedding.EmbeddingDimensions), 2000,
		)
		if err != nil {
			return fmt.Errorf("capability: %w", err)
		}
		embedder = genai
		summarizer = genai
		defer genai.Close()
	} else {
		return fmt.Errorf("config: GEMINI_API_KEY is required to construct the embedding capability")
	}

	pipeline := enrich.New(enrich.Deps{
		Entries:    entries,
		Vectors:    vectors,
		Fetcher:    fetcher,
		Embedder:   embedder,
		Summarizer: summarizer,
	}, enrich.Config{
		FullContentCapture: cfg.Article.FullContentCapture,
		GenerateSummary:    cfg.Article.GenerateSummary,
		ContentTTL:         time.Duration(cfg.Cache.TTLHours) * time.Hour,
		TargetVectorDim:    cfg.VectorDB.TextVectorDimension,
	})

	orch := orchestrator.New(cfg.Feeds, orchestrator.Deps{
		Entries:     entries,
		AdapterDeps: adapters.Deps{Fetcher: fetcher, Renderer: renderer},
		Enrich:      pipeline,
	}, orchestrator.Config{
		MaxConcurrentSourceTasks:  10,
		MaxConcurrentArticleTasks: int64(cfg.Article.ConcurrentArticleTasks),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch.Run(ctx, time.Minute)
	return nil
}

// openEntryStore selects a CacheConfig.Backend and returns the entry
// store plus the shared *sql.DB pool when one was opened (nil for the
// in-process memory backend, which has no pool to share with the vector
// store).
func openEntryStore(cfg config.CacheConfig) (entrystore.Store, *sql.DB, error) {
	switch cfg.Backend {
	case "postgres":
		pool, err := entrystore.OpenPostgresPool(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		store, err := entrystore.NewPostgresStore(pool)
		if err != nil {
			return nil, nil, err
		}
		return store, pool, nil
	case "filesystem", "":
		store, err := entrystore.NewSQLiteStore("./data")
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case "memory":
		store, err := entrystore.NewMemoryStore(0)
		return store, nil, err
	default:
		return nil, nil, fmt.Errorf("unknown CACHE__BACKEND %q", cfg.Backend)
	}
}

// openVectorStore always needs a postgres/pgvector pool per spec.md §6's
// schema (vector similarity search has no sqlite/memory equivalent in
// this design); it reuses pool whenever the entry store already opened
// one, without comparing DSNs (the entry store's DSN falls back to
// VECTOR_DB__CONNECTION_STRING when CACHE__POSTGRES_DSN is unset).
func openVectorStore(cfg config.VectorDBConfig, pool *sql.DB) (vectorstore.Store, error) {
	db := pool
	if db == nil {
		opened, err := entrystore.OpenPostgresPool(cfg.ConnectionString)
		if err != nil {
			return nil, err
		}
		db = opened
	}
	return vectorstore.NewPgVectorStore(db, cfg.CollectionName, cfg.TextVectorDimension, vectorstore.DistanceCosine)
}
