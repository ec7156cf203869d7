// Package config loads and validates configuration for the indexing and
// retrieval services: a YAML file read at startup, with environment
// variables layered on top for secrets and deployment-specific overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"
)

// EngineConfig points at the Vespa-family search engine's document and
// query ports.
type EngineConfig struct {
	Host              string            `yaml:"host"`
	Port              int               `yaml:"port"`
	TenantPort        int               `yaml:"tenant_port"`
	IndexName         string            `yaml:"index_name"`
	DeploymentZipPath string            `yaml:"deployment_zip_path"`
	ExtraHeaders      map[string]string `yaml:"extra_headers,omitempty"`
}

// ChunkingConfig exposes the token-budget tunables described in the
// chunker's design.
type ChunkingConfig struct {
	ChunkSize     int `yaml:"chunk_size"`
	ChunkOverlap  int `yaml:"chunk_overlap"`
	BlurbSize     int `yaml:"blurb_size"`
	MiniChunkSize int `yaml:"mini_chunk_size"`
}

// EmbeddingConfig configures the HTTP-backed embedding client.
type EmbeddingConfig struct {
	BaseURL   string            `yaml:"base_url"`
	Path      string            `yaml:"path"`
	Model     string            `yaml:"model"`
	APIHeader string            `yaml:"api_header"`
	APIKey    string            `yaml:"api_key"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Timeout   int               `yaml:"timeout_seconds"`
}

// RetrievalConfig tunes ranking and result-set behavior shared by all query
// modes.
type RetrievalConfig struct {
	DocTimeDecay               float64 `yaml:"doc_time_decay"`
	FavorRecentDecayMultiplier float64 `yaml:"favor_recent_decay_multiplier"`
	NumReturnedHits            int     `yaml:"num_returned_hits"`
	EditKeywordQuery           bool    `yaml:"edit_keyword_query"`
	SearchDistanceCutoff       float64 `yaml:"search_distance_cutoff"`
	UntimedDocCutoffDays       int     `yaml:"untimed_doc_cutoff_days"`
	MaxSummaryLen              int     `yaml:"max_summary_len"`
}

// IndexingConfig controls the engine adapter's write-path concurrency.
type IndexingConfig struct {
	BatchSize int `yaml:"batch_size"`
	NWorkers  int `yaml:"n_workers"`
}

// RecordStoreConfig points at the relational record-of-truth database used
// for per-document locking and metadata/ACL/document-set lookups.
type RecordStoreConfig struct {
	DSN string `yaml:"dsn"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Endpoint       string `yaml:"endpoint"`
	Insecure       bool   `yaml:"insecure"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
}

// Config is the top-level configuration for the indexing and retrieval
// services.
type Config struct {
	LogLevel    string `yaml:"log_level"`
	LogPath     string `yaml:"log_path,omitempty"`

	Engine      EngineConfig      `yaml:"engine"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Indexing    IndexingConfig    `yaml:"indexing"`
	RecordStore RecordStoreConfig `yaml:"record_store"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`

	// DBPool is populated after load by callers that open a pool from
	// RecordStore.DSN; it is never serialized.
	DBPool *pgxpool.Pool `yaml:"-"`
}

// Load reads filename as YAML, layers environment variable overrides on top
// for secrets and per-deployment values that shouldn't live in a checked-in
// file, and then fills in defaults for the tunables that have one and were
// left at their zero value.
func Load(filename string) (*Config, error) {
	// Use Overload so .env values win over pre-existing OS environment
	// variables, matching local-dev expectations. A missing .env is fine.
	_ = godotenv.Overload()

	cfg := Config{}

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			pterm.Error.Printf("error reading config file: %v\n", err)
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			pterm.Error.Printf("error unmarshaling config: %v\n", err)
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	pterm.Success.Println("configuration loaded successfully")
	return &cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func applyEnvOverrides(cfg *Config) {
	cfg.LogLevel = firstNonEmpty(trimmedEnv("LOG_LEVEL"), cfg.LogLevel)
	cfg.LogPath = firstNonEmpty(trimmedEnv("LOG_PATH"), cfg.LogPath)

	cfg.Engine.Host = firstNonEmpty(trimmedEnv("ENGINE_HOST"), cfg.Engine.Host)
	cfg.RecordStore.DSN = firstNonEmpty(trimmedEnv("RECORD_STORE_DSN"), cfg.RecordStore.DSN)

	cfg.Embedding.APIKey = firstNonEmpty(trimmedEnv("EMBEDDING_API_KEY"), cfg.Embedding.APIKey)
	cfg.Embedding.BaseURL = firstNonEmpty(trimmedEnv("EMBEDDING_BASE_URL"), cfg.Embedding.BaseURL)

	cfg.Telemetry.Endpoint = firstNonEmpty(trimmedEnv("OTEL_EXPORTER_OTLP_ENDPOINT"), cfg.Telemetry.Endpoint)
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
		pterm.Info.Println("no log_level specified, using default (info)")
	}
	if cfg.Engine.Port == 0 {
		cfg.Engine.Port = 8080
	}
	if cfg.Engine.TenantPort == 0 {
		cfg.Engine.TenantPort = 19071
	}
	if cfg.Engine.IndexName == "" {
		cfg.Engine.IndexName = "danswer_chunk"
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 512
		pterm.Info.Println("no chunking.chunk_size specified, using default (512)")
	}
	if cfg.Chunking.ChunkOverlap == 0 {
		cfg.Chunking.ChunkOverlap = 64
	}
	if cfg.Chunking.BlurbSize == 0 {
		cfg.Chunking.BlurbSize = 64
	}
	if cfg.Chunking.MiniChunkSize == 0 {
		cfg.Chunking.MiniChunkSize = 128
	}
	if cfg.Indexing.BatchSize == 0 {
		cfg.Indexing.BatchSize = 128
	}
	if cfg.Indexing.NWorkers == 0 {
		cfg.Indexing.NWorkers = 32
	}
	if cfg.Retrieval.NumReturnedHits == 0 {
		cfg.Retrieval.NumReturnedHits = 50
	}
	if cfg.Retrieval.UntimedDocCutoffDays == 0 {
		cfg.Retrieval.UntimedDocCutoffDays = 92
		pterm.Info.Println("no retrieval.untimed_doc_cutoff_days specified, using default (92)")
	}
	if cfg.Retrieval.MaxSummaryLen == 0 {
		cfg.Retrieval.MaxSummaryLen = 400
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "docsearch"
	}
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
