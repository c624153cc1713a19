package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backend names.
const (
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendMemory    = "memory"
	BackendPathstore = "pathstore" // parents only
	BackendQdrant    = "qdrant"    // children only
)

type Config struct {
	Port     string `yaml:"port"`
	APIKey   string `yaml:"api_key"`
	LogLevel string `yaml:"log_level"`

	// Embedding service
	EmbedURL       string        `yaml:"embed_url"`
	EmbedAPIKey    string        `yaml:"embed_api_key"`
	EmbedMaxBatch  int           `yaml:"embed_max_batch"`
	EmbedRateLimit float64       `yaml:"embed_rate_limit"`
	EmbedTimeout   time.Duration `yaml:"embed_timeout"`

	// Refinement and answer services
	RefineURL    string        `yaml:"refine_url"`
	RefineAPIKey string        `yaml:"refine_api_key"`
	AnswerURL    string        `yaml:"answer_url"`
	AnswerAPIKey string        `yaml:"answer_api_key"`
	LLMTimeout   time.Duration `yaml:"llm_timeout"`

	// Splitting
	ParentMaxChars       int     `yaml:"parent_max_chars"`
	ChildMaxChars        int     `yaml:"child_max_chars"`
	ChildOverlapFraction float64 `yaml:"child_overlap_fraction"`

	// Storage
	ParentStore      string `yaml:"parent_store"`
	ChildStore       string `yaml:"child_store"`
	SQLitePath       string `yaml:"sqlite_path"`
	PostgresURL      string `yaml:"postgres_url"`
	PathstoreURL     string `yaml:"pathstore_url"`
	PathstoreAPIKey  string `yaml:"pathstore_api_key"`
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantAPIKey     string `yaml:"qdrant_api_key"`
	QdrantCollection string `yaml:"qdrant_collection"`

	// Async ingestion
	WorkerCount    int           `yaml:"worker_count"`
	MaxQueueSize   int           `yaml:"max_queue_size"`
	IngestRetries  int           `yaml:"ingest_retries"`
	JobTTL         time.Duration `yaml:"job_ttl"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`

	// Query
	DefaultTopK         int  `yaml:"default_top_k"`
	QueryRefineFallback bool `yaml:"query_refine_fallback"`

	PDFFallbackPdftotext bool `yaml:"pdf_fallback_pdftotext"`
	OTelEnabled          bool `yaml:"otel_enabled"`
}

func defaults() Config {
	return Config{
		Port:     "8090",
		LogLevel: "info",

		EmbedMaxBatch: 64,
		EmbedTimeout:  60 * time.Second,
		LLMTimeout:    120 * time.Second,

		ParentMaxChars:       2000,
		ChildMaxChars:        400,
		ChildOverlapFraction: 0.1,

		ParentStore:      BackendSQLite,
		ChildStore:       BackendSQLite,
		SQLitePath:       "data/docrag.db",
		PathstoreURL:     "http://localhost:8080",
		QdrantURL:        "http://localhost:6333",
		QdrantCollection: "docrag_children",

		WorkerCount:    4,
		MaxQueueSize:   100,
		IngestRetries:  2,
		JobTTL:         time.Hour,
		MaxUploadBytes: 52428800, // 50MB

		DefaultTopK: 5,

		PDFFallbackPdftotext: true,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// CONFIG_FILE if set, then environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.Port = envOr("PORT", cfg.Port)
	cfg.APIKey = envOr("DOCRAG_API_KEY", cfg.APIKey)
	cfg.LogLevel = envOr("LOG_LEVEL", cfg.LogLevel)

	cfg.EmbedURL = envOr("EMBED_URL", cfg.EmbedURL)
	cfg.EmbedAPIKey = envOr("EMBED_API_KEY", cfg.EmbedAPIKey)
	cfg.EmbedMaxBatch = envInt("EMBED_MAX_BATCH", cfg.EmbedMaxBatch)
	cfg.EmbedRateLimit = envFloat("EMBED_RATE_LIMIT", cfg.EmbedRateLimit)
	cfg.EmbedTimeout = envDuration("EMBED_TIMEOUT", cfg.EmbedTimeout)

	cfg.RefineURL = envOr("REFINE_URL", cfg.RefineURL)
	cfg.RefineAPIKey = envOr("REFINE_API_KEY", cfg.RefineAPIKey)
	cfg.AnswerURL = envOr("ANSWER_URL", cfg.AnswerURL)
	cfg.AnswerAPIKey = envOr("ANSWER_API_KEY", cfg.AnswerAPIKey)
	cfg.LLMTimeout = envDuration("LLM_TIMEOUT", cfg.LLMTimeout)

	cfg.ParentMaxChars = envInt("PARENT_MAX_CHARS", cfg.ParentMaxChars)
	cfg.ChildMaxChars = envInt("CHILD_MAX_CHARS", cfg.ChildMaxChars)
	cfg.ChildOverlapFraction = envFloat("CHILD_OVERLAP_FRACTION", cfg.ChildOverlapFraction)

	cfg.ParentStore = strings.ToLower(envOr("PARENT_STORE", cfg.ParentStore))
	cfg.ChildStore = strings.ToLower(envOr("CHILD_STORE", cfg.ChildStore))
	cfg.SQLitePath = envOr("SQLITE_PATH", cfg.SQLitePath)
	cfg.PostgresURL = envOr("POSTGRES_URL", cfg.PostgresURL)
	cfg.PathstoreURL = envOr("PATHSTORE_URL", cfg.PathstoreURL)
	cfg.PathstoreAPIKey = envOr("PATHSTORE_API_KEY", cfg.PathstoreAPIKey)
	cfg.QdrantURL = envOr("QDRANT_URL", cfg.QdrantURL)
	cfg.QdrantAPIKey = envOr("QDRANT_API_KEY", cfg.QdrantAPIKey)
	cfg.QdrantCollection = envOr("QDRANT_COLLECTION", cfg.QdrantCollection)

	cfg.WorkerCount = envInt("WORKER_COUNT", cfg.WorkerCount)
	cfg.MaxQueueSize = envInt("MAX_QUEUE_SIZE", cfg.MaxQueueSize)
	cfg.IngestRetries = envInt("INGEST_RETRIES", cfg.IngestRetries)
	cfg.JobTTL = envDuration("JOB_TTL", cfg.JobTTL)
	cfg.MaxUploadBytes = envInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes)

	cfg.DefaultTopK = envInt("DEFAULT_TOP_K", cfg.DefaultTopK)
	cfg.QueryRefineFallback = envBool("QUERY_REFINE_FALLBACK", cfg.QueryRefineFallback)

	cfg.PDFFallbackPdftotext = envBool("PDF_FALLBACK_PDFTOTEXT", cfg.PDFFallbackPdftotext)
	cfg.OTelEnabled = envBool("OTEL_ENABLED", cfg.OTelEnabled)

	cfg.clamp()
	return cfg, nil
}

// clamp restores defaults for values that make no sense.
func (c *Config) clamp() {
	d := defaults()
	if c.EmbedMaxBatch <= 0 {
		c.EmbedMaxBatch = d.EmbedMaxBatch
	}
	if c.EmbedTimeout <= 0 {
		c.EmbedTimeout = d.EmbedTimeout
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = d.LLMTimeout
	}
	if c.ParentMaxChars <= 0 {
		c.ParentMaxChars = d.ParentMaxChars
	}
	if c.ChildMaxChars <= 0 {
		c.ChildMaxChars = d.ChildMaxChars
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = d.MaxQueueSize
	}
	if c.IngestRetries < 0 {
		c.IngestRetries = 0
	}
	if c.JobTTL <= 0 {
		c.JobTTL = d.JobTTL
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = d.MaxUploadBytes
	}
	if c.DefaultTopK <= 0 {
		c.DefaultTopK = d.DefaultTopK
	}
}

// Validate checks what every entry point needs: collaborator URLs,
// splitter bounds and a usable store selection.
func (c Config) Validate() error {
	if c.EmbedURL == "" {
		return errors.New("EMBED_URL is required")
	}
	if c.RefineURL == "" {
		return errors.New("REFINE_URL is required")
	}
	if c.AnswerURL == "" {
		return errors.New("ANSWER_URL is required")
	}
	if c.ChildOverlapFraction < 0 || c.ChildOverlapFraction >= 1 {
		return fmt.Errorf("CHILD_OVERLAP_FRACTION must be in [0, 1), got %v", c.ChildOverlapFraction)
	}
	if c.ChildMaxChars > c.ParentMaxChars {
		return fmt.Errorf("CHILD_MAX_CHARS (%d) must not exceed PARENT_MAX_CHARS (%d)", c.ChildMaxChars, c.ParentMaxChars)
	}

	switch c.ParentStore {
	case BackendSQLite, BackendPostgres, BackendMemory, BackendPathstore:
	default:
		return fmt.Errorf("PARENT_STORE %q is not one of sqlite, postgres, memory, pathstore", c.ParentStore)
	}
	switch c.ChildStore {
	case BackendSQLite, BackendPostgres, BackendMemory, BackendQdrant:
	default:
		return fmt.Errorf("CHILD_STORE %q is not one of sqlite, postgres, memory, qdrant", c.ChildStore)
	}
	if c.uses(BackendPostgres) && c.PostgresURL == "" {
		return errors.New("POSTGRES_URL is required for the postgres store")
	}
	if c.ParentStore == BackendPathstore && c.PathstoreAPIKey == "" {
		return errors.New("PATHSTORE_API_KEY is required for the pathstore parent store")
	}
	if c.ChildStore == BackendQdrant && c.QdrantURL == "" {
		return errors.New("QDRANT_URL is required for the qdrant child store")
	}
	return nil
}

// ValidateServer is Validate plus what the HTTP server needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return errors.New("DOCRAG_API_KEY is required")
	}
	return nil
}

func (c Config) uses(backend string) bool {
	return c.ParentStore == backend || c.ChildStore == backend
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
