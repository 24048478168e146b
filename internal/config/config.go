// Package config loads the server and worker configuration from a YAML
// file with environment-variable overrides, the same two-layer approach the
// teacher repo uses (internal/config.Load overlays a .env file via
// godotenv.Overload, then reads YAML, then overlays NUR_* environment
// variables).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig configures the relational store (C2).
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
}

// VectorConfig configures the vector store (C1).
type VectorConfig struct {
	DSN                 string `yaml:"dsn"`
	EmbeddingDimensions  int    `yaml:"embedding_dimensions"`
	Metric              string `yaml:"metric"`
}

// GraphConfig configures the graph store (C3).
type GraphConfig struct {
	GraphName string `yaml:"graph_name"`
}

// LLMConfig configures the LLM provider used by C8/C9.
type LLMConfig struct {
	Provider    string `yaml:"provider"` // anthropic|openai
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	EventModel  string `yaml:"event_model"`
	EntityModel string `yaml:"entity_model"`
}

// EmbeddingConfig configures the embedding service (C4).
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"embedding_model"`
	Dimensions int    `yaml:"embedding_dimensions"`
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	MaxRetries int    `yaml:"max_retries"`
}

// ChunkingConfig configures the chunker (C5).
type ChunkingConfig struct {
	MaxChunkTokens     int `yaml:"max_chunk_tokens"`
	ChunkOverlapTokens int `yaml:"chunk_overlap_tokens"`
}

// ResolutionConfig configures entity resolution thresholds (C9).
type ResolutionConfig struct {
	RecallThreshold    float64 `yaml:"recall_threshold"`
	SameThreshold      float64 `yaml:"same_threshold"`
	UncertainThreshold float64 `yaml:"uncertain_threshold"`
	TopK               int     `yaml:"top_k"`
}

// GraphTraversalConfig configures bounded graph expansion (C10).
type GraphTraversalConfig struct {
	PossiblySameThreshold float64 `yaml:"possibly_same_threshold"`
	SeedLimit             int     `yaml:"graph_seed_limit"`
	Budget                int     `yaml:"graph_budget"`
}

// RetrievalConfig configures RRF fusion (C11).
type RetrievalConfig struct {
	RRFConstant int `yaml:"rrf_constant"`
}

// QueueConfig configures job leasing/retry (C7/C12).
type QueueConfig struct {
	LeaseSeconds         int     `yaml:"job_lease_seconds"`
	MaxAttempts          int     `yaml:"job_max_attempts"`
	RetryBackoffBase     float64 `yaml:"retry_backoff_base"`
	RetryBackoffCap      float64 `yaml:"retry_backoff_cap"`
	WorkerPollIntervalMs int     `yaml:"worker_poll_interval_ms"`
	WorkerID             string  `yaml:"worker_id"`
}

// ObservabilityConfig configures logging/tracing.
type ObservabilityConfig struct {
	LogLevel       string `yaml:"log_level"`
	LogPath        string `yaml:"log_path"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
}

// Config is the top-level configuration surface for both cmd/nur-server and
// cmd/nur-worker.
type Config struct {
	ListenAddr     string               `yaml:"listen_addr"`
	Database       DatabaseConfig       `yaml:"database"`
	Vector         VectorConfig         `yaml:"vector"`
	Graph          GraphConfig          `yaml:"graph"`
	LLM            LLMConfig            `yaml:"llm"`
	Embedding      EmbeddingConfig      `yaml:"embedding"`
	Chunking       ChunkingConfig       `yaml:"chunking"`
	Resolution     ResolutionConfig     `yaml:"resolution"`
	GraphTraversal GraphTraversalConfig `yaml:"graph_traversal"`
	Retrieval      RetrievalConfig      `yaml:"retrieval"`
	Queue          QueueConfig          `yaml:"queue"`
	Observability  ObservabilityConfig  `yaml:"observability"`
}

// Defaults returns a Config with every default named in spec §6 set.
func Defaults() Config {
	return Config{
		ListenAddr: ":8088",
		Vector:     VectorConfig{Metric: "cosine", EmbeddingDimensions: 1536},
		Graph:      GraphConfig{GraphName: "nur"},
		Chunking:   ChunkingConfig{MaxChunkTokens: 1000, ChunkOverlapTokens: 100},
		Resolution: ResolutionConfig{
			RecallThreshold:    0.25,
			SameThreshold:      0.85,
			UncertainThreshold: 0.60,
			TopK:               10,
		},
		GraphTraversal: GraphTraversalConfig{
			PossiblySameThreshold: 0.75,
			SeedLimit:             10,
			Budget:                50,
		},
		Retrieval: RetrievalConfig{RRFConstant: 60},
		Queue: QueueConfig{
			LeaseSeconds:         60,
			MaxAttempts:          5,
			RetryBackoffBase:     1,
			RetryBackoffCap:      60,
			WorkerPollIntervalMs: 500,
		},
		Embedding:     EmbeddingConfig{MaxRetries: 5},
		Observability: ObservabilityConfig{LogLevel: "info", ServiceName: "nur", ServiceVersion: "dev"},
	}
}

// Load reads path as YAML over Defaults(), then applies NUR_*
// environment-variable overrides, matching the teacher's two-layer
// (file, then env) resolution order.
func Load(path string) (Config, error) {
	// Loads .env into the process environment (if present) before the YAML
	// and NUR_* overlay below, same as the teacher's internal/config.Load.
	_ = godotenv.Overload()

	cfg := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	if cfg.Database.DSN == "" {
		return cfg, fmt.Errorf("database.dsn is required")
	}
	if cfg.Queue.WorkerID == "" {
		cfg.Queue.WorkerID = defaultWorkerID()
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	i := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	f := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok {
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = n
			}
		}
	}

	str("NUR_LISTEN_ADDR", &cfg.ListenAddr)
	str("NUR_DATABASE_DSN", &cfg.Database.DSN)
	str("NUR_VECTOR_DSN", &cfg.Vector.DSN)
	str("NUR_GRAPH_NAME", &cfg.Graph.GraphName)
	str("NUR_LLM_PROVIDER", &cfg.LLM.Provider)
	str("NUR_LLM_API_KEY", &cfg.LLM.APIKey)
	str("NUR_LLM_EVENT_MODEL", &cfg.LLM.EventModel)
	str("NUR_LLM_ENTITY_MODEL", &cfg.LLM.EntityModel)
	str("NUR_EMBEDDING_MODEL", &cfg.Embedding.Model)
	str("NUR_EMBEDDING_ENDPOINT", &cfg.Embedding.Endpoint)
	str("NUR_EMBEDDING_API_KEY", &cfg.Embedding.APIKey)
	str("NUR_WORKER_ID", &cfg.Queue.WorkerID)
	str("NUR_OTLP_ENDPOINT", &cfg.Observability.OTLPEndpoint)
	str("NUR_LOG_LEVEL", &cfg.Observability.LogLevel)

	i("NUR_MAX_CHUNK_TOKENS", &cfg.Chunking.MaxChunkTokens)
	i("NUR_CHUNK_OVERLAP_TOKENS", &cfg.Chunking.ChunkOverlapTokens)
	i("NUR_EMBEDDING_DIMENSIONS", &cfg.Embedding.Dimensions)
	i("NUR_GRAPH_SEED_LIMIT", &cfg.GraphTraversal.SeedLimit)
	i("NUR_GRAPH_BUDGET", &cfg.GraphTraversal.Budget)
	i("NUR_JOB_LEASE_SECONDS", &cfg.Queue.LeaseSeconds)
	i("NUR_JOB_MAX_ATTEMPTS", &cfg.Queue.MaxAttempts)
	i("NUR_WORKER_POLL_INTERVAL_MS", &cfg.Queue.WorkerPollIntervalMs)
	i("NUR_RRF_CONSTANT", &cfg.Retrieval.RRFConstant)

	f("NUR_RECALL_THRESHOLD", &cfg.Resolution.RecallThreshold)
	f("NUR_SAME_THRESHOLD", &cfg.Resolution.SameThreshold)
	f("NUR_UNCERTAIN_THRESHOLD", &cfg.Resolution.UncertainThreshold)
	f("NUR_POSSIBLY_SAME_THRESHOLD", &cfg.GraphTraversal.PossiblySameThreshold)
	f("NUR_RETRY_BACKOFF_BASE", &cfg.Queue.RetryBackoffBase)
	f("NUR_RETRY_BACKOFF_CAP", &cfg.Queue.RetryBackoffCap)
}

func defaultWorkerID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return "worker-" + strings.ToLower(h)
	}
	return "worker-local"
}
