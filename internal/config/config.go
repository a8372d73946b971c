// Package config loads the engine's configuration from environment
// variables (optionally backed by a .env file) using the __-namespaced
// option names from spec.md §6. Loading is an external-loader concern;
// this package only shapes the typed Config the rest of the engine reads.
package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"blogwatch/internal/core"
)

// Config is the fully-resolved, typed configuration handed to AppContext.
type Config struct {
	Feeds     []core.SourceConfig
	Cache     CacheConfig
	VectorDB  VectorDBConfig
	Embedding EmbeddingConfig
	Article   ArticleConfig
	Browser   BrowserConfig
	Debug     bool
}

// CacheConfig configures the entry store (component A).
type CacheConfig struct {
	Backend      string // "memory" | "postgres" | "filesystem"
	PostgresDSN  string
	TTLHours     int
}

// VectorDBConfig configures the vector store (component B).
type VectorDBConfig struct {
	ConnectionString    string
	CollectionName      string
	TextVectorDimension int // D'
}

// EmbeddingConfig selects and bounds the embedding capability.
type EmbeddingConfig struct {
	ModelType           string
	ModelName           string
	EmbeddingDimensions int
}

// ArticleConfig gates enrichment-pipeline behavior (component E).
type ArticleConfig struct {
	FullContentCapture     bool
	GenerateSummary        bool
	MaxArticlesPerFeed     int
	ConcurrentArticleTasks int
}

// BrowserConfig bounds the browser rendering capability.
type BrowserConfig struct {
	MaxConcurrentBrowsers int
}

var feedFieldPattern = regexp.MustCompile(`^FEEDS__(\d+)__([A-Z_]+)$`)

// Load reads .env (if present), applies defaults, then layers environment
// variables using the "__" namespace separator (FEEDS__0__URL, CACHE__BACKEND,
// VECTOR_DB__..., EMBEDDING__..., ARTICLE__..., BROWSER__...).
func Load() (*Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_hours", 168) // 7 days, matches spec.md §4.E default content TTL
	v.SetDefault("vector_db.collection_name", "default")
	v.SetDefault("vector_db.text_vector_dimension", 1536)
	v.SetDefault("embedding.model_type", "gemini")
	v.SetDefault("embedding.model_name", "gemini-embedding-001")
	v.SetDefault("embedding.embedding_dimensions", 768)
	v.SetDefault("article.full_content_capture", true)
	v.SetDefault("article.generate_summary", true)
	v.SetDefault("article.max_articles_per_feed", 20)
	v.SetDefault("article.concurrent_article_tasks", 5)
	v.SetDefault("browser.max_concurrent_browsers", 3)

	cfg := &Config{
		Cache: CacheConfig{
			Backend:     getEnvOr("CACHE__BACKEND", v.GetString("cache.backend")),
			PostgresDSN: firstNonEmpty(os.Getenv("CACHE__POSTGRES_DSN"), os.Getenv("VECTOR_DB__CONNECTION_STRING")),
			TTLHours:    getEnvIntOr("CACHE__TTL_HOURS", v.GetInt("cache.ttl_hours")),
		},
		VectorDB: VectorDBConfig{
			ConnectionString:    getEnvOr("VECTOR_DB__CONNECTION_STRING", v.GetString("vector_db.connection_string")),
			CollectionName:      getEnvOr("VECTOR_DB__COLLECTION_NAME", v.GetString("vector_db.collection_name")),
			TextVectorDimension: getEnvIntOr("VECTOR_DB__TEXT_VECTOR_DIMENSION", v.GetInt("vector_db.text_vector_dimension")),
		},
		Embedding: EmbeddingConfig{
			ModelType:           getEnvOr("EMBEDDING__MODEL_TYPE", v.GetString("embedding.model_type")),
			ModelName:           getEnvOr("EMBEDDING__MODEL_NAME", v.GetString("embedding.model_name")),
			EmbeddingDimensions: getEnvIntOr("EMBEDDING__EMBEDDING_DIMENSIONS", v.GetInt("embedding.embedding_dimensions")),
		},
		Article: ArticleConfig{
			FullContentCapture:     getEnvBoolOr("ARTICLE__FULL_CONTENT_CAPTURE", v.GetBool("article.full_content_capture")),
			GenerateSummary:        getEnvBoolOr("ARTICLE__GENERATE_SUMMARY", v.GetBool("article.generate_summary")),
			MaxArticlesPerFeed:     getEnvIntOr("ARTICLE__MAX_ARTICLES_PER_FEED", v.GetInt("article.max_articles_per_feed")),
			ConcurrentArticleTasks: getEnvIntOr("ARTICLE__CONCURRENT_ARTICLE_TASKS", v.GetInt("article.concurrent_article_tasks")),
		},
		Browser: BrowserConfig{
			MaxConcurrentBrowsers: getEnvIntOr("BROWSER__MAX_CONCURRENT_BROWSERS", v.GetInt("browser.max_concurrent_browsers")),
		},
		Debug: getEnvBoolOr("DEBUG", false),
	}

	feeds, err := parseFeedsFromEnv()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Feeds = feeds

	if cfg.Cache.Backend == "postgres" && cfg.Cache.PostgresDSN == "" {
		return nil, fmt.Errorf("config: CACHE__BACKEND=postgres requires VECTOR_DB__CONNECTION_STRING or CACHE__POSTGRES_DSN")
	}

	return cfg, nil
}

// parseFeedsFromEnv scans the environment for FEEDS__<n>__<FIELD> keys and
// assembles each index into a core.SourceConfig. Indices need not be
// contiguous; they're processed in ascending numeric order.
func parseFeedsFromEnv() ([]core.SourceConfig, error) {
	byIndex := map[int]map[string]string{}
	for _, kv := range os.Environ() {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		m := feedFieldPattern.FindStringSubmatch(parts[0])
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if byIndex[idx] == nil {
			byIndex[idx] = map[string]string{}
		}
		byIndex[idx][m[2]] = parts[1]
	}

	indices := make([]int, 0, len(byIndex))
	for idx := range byIndex {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	feeds := make([]core.SourceConfig, 0, len(indices))
	for _, idx := range indices {
		fields := byIndex[idx]
		sc := core.SourceConfig{
			Name:            fields["NAME"],
			URL:             fields["URL"],
			MaxPostsPerTick: 20,
			Enabled:         true,
		}
		if sc.Name == "" || sc.URL == "" {
			return nil, fmt.Errorf("FEEDS__%d requires NAME and URL", idx)
		}
		if v, ok := fields["POLL_INTERVAL"]; ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("FEEDS__%d__POLL_INTERVAL: %w", idx, err)
			}
			sc.PollInterval = d
		} else {
			sc.PollInterval = time.Hour
		}
		if v, ok := fields["MAX_POSTS"]; ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("FEEDS__%d__MAX_POSTS: %w", idx, err)
			}
			sc.MaxPostsPerTick = n
		}
		if v, ok := fields["ENABLED"]; ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("FEEDS__%d__ENABLED: %w", idx, err)
			}
			sc.Enabled = b
		}
		if v, ok := fields["HINTS"]; ok {
			sc.Hints = parseHints(v)
		}
		feeds = append(feeds, sc)
	}
	return feeds, nil
}

func parseHints(raw string) core.SourceHints {
	h := core.SourceHints{}
	for _, tok := range strings.Split(raw, ",") {
		switch strings.ToLower(strings.TrimSpace(tok)) {
		case "prefers-browser":
			h.PrefersBrowser = true
		case "prefers-html":
			h.PrefersHTML = true
		default:
			if tok != "" {
				h.DomainFamily = strings.TrimSpace(tok)
			}
		}
	}
	return h
}

func getEnvOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvIntOr(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBoolOr(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
