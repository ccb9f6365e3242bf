// Package config provides configuration loading for raglab.
//
// Configuration is assembled once at startup from hardcoded defaults, an
// optional YAML file and environment variables. See Load.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fyrsmithlabs/raglab/internal/chunker"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Supported providers.
var (
	EmbeddingProviders   = []string{"fastembed", "tei", "openai"}
	VectorStoreProviders = []string{"chromem", "qdrant"}
)

// Config holds the complete raglab configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Generation  GenerationConfig  `koanf:"generation"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	CORSOrigins     []string `koanf:"cors_origins"`

	// BodyLimit caps request bodies, in echo notation (e.g. "32M").
	BodyLimit string `koanf:"body_limit"`

	// RateLimit is requests per second per client IP. Zero disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`
}

// EmbeddingsConfig holds embedding provider configuration.
type EmbeddingsConfig struct {
	// Provider is one of "fastembed" (local ONNX), "tei" or "openai".
	Provider  string `koanf:"provider"`
	Model     string `koanf:"model"`
	BaseURL   string `koanf:"base_url"`
	APIKey    Secret `koanf:"api_key"`
	CacheDir  string `koanf:"cache_dir"`
	BatchSize int    `koanf:"batch_size"`
}

// VectorStoreConfig holds vector store configuration.
type VectorStoreConfig struct {
	Provider string        `koanf:"provider"`
	Chromem  ChromemConfig `koanf:"chromem"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig holds chromem-go settings.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// QdrantConfig holds Qdrant gRPC settings.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	Collection string `koanf:"collection"`
	APIKey     Secret `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
}

// GenerationConfig holds Ollama settings.
type GenerationConfig struct {
	BaseURL      string   `koanf:"base_url"`
	Model        string   `koanf:"model"`
	Timeout      Duration `koanf:"timeout"`
	ProbeTimeout Duration `koanf:"probe_timeout"`
}

// ChunkingConfig holds the word window used at ingestion.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// LoggingConfig holds the subset of logging settings exposed to users.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	Sampling bool   `koanf:"sampling"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	Protocol    string `koanf:"protocol"`
	ServiceName string `koanf:"service_name"`
	Insecure    bool   `koanf:"insecure"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Addr returns the host:port the server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Validate validates the configuration.
//
// Returns an error if:
//   - Server port is not between 1 and 65535
//   - Any timeout is not positive
//   - The chunk window is invalid
//   - A provider is unknown
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port: %d (must be 1-65535)", ErrInvalidConfig, c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", ErrInvalidConfig)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("%w: rate limit cannot be negative", ErrInvalidConfig)
	}

	if !slices.Contains(EmbeddingProviders, c.Embeddings.Provider) {
		return fmt.Errorf("%w: unsupported embeddings provider %q (supported: %s)",
			ErrInvalidConfig, c.Embeddings.Provider, strings.Join(EmbeddingProviders, ", "))
	}
	if c.Embeddings.Model == "" {
		return fmt.Errorf("%w: embeddings model required", ErrInvalidConfig)
	}
	if c.Embeddings.BatchSize <= 0 {
		return fmt.Errorf("%w: embeddings batch size must be positive", ErrInvalidConfig)
	}

	if !slices.Contains(VectorStoreProviders, c.VectorStore.Provider) {
		return fmt.Errorf("%w: unsupported vectorstore provider %q (supported: %s)",
			ErrInvalidConfig, c.VectorStore.Provider, strings.Join(VectorStoreProviders, ", "))
	}
	if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
		return fmt.Errorf("%w: invalid qdrant port: %d", ErrInvalidConfig, c.VectorStore.Qdrant.Port)
	}

	if c.Generation.BaseURL == "" {
		return fmt.Errorf("%w: generation base URL required", ErrInvalidConfig)
	}
	if c.Generation.Model == "" {
		return fmt.Errorf("%w: generation model required", ErrInvalidConfig)
	}
	if c.Generation.Timeout.Duration() <= 0 || c.Generation.ProbeTimeout.Duration() <= 0 {
		return fmt.Errorf("%w: generation timeouts must be positive", ErrInvalidConfig)
	}

	if err := chunker.Validate(c.Chunking.Size, c.Chunking.Overlap); err != nil {
		return fmt.Errorf("%w: chunking: %w", ErrInvalidConfig, err)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("%w: logging format must be 'json' or 'console', got %q", ErrInvalidConfig, c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("%w: telemetry endpoint required when telemetry is enabled", ErrInvalidConfig)
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
			return fmt.Errorf("%w: telemetry protocol must be 'grpc' or 'http/protobuf', got %q", ErrInvalidConfig, c.Telemetry.Protocol)
		}
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8001
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins)
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
			"http://localhost:3000",
		}
	}
	if cfg.Server.BodyLimit == "" {
		cfg.Server.BodyLimit = "32M"
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = max(1, int(cfg.Server.RateLimit))
	}

	// Embeddings defaults
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.Embeddings.BaseURL == "" {
		switch cfg.Embeddings.Provider {
		case "tei":
			cfg.Embeddings.BaseURL = "http://localhost:8080"
		case "openai":
			cfg.Embeddings.BaseURL = "https://api.openai.com/v1"
		}
	}
	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = 32
	}

	// VectorStore defaults (chromem is default - embedded, no external deps)
	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "./chroma"
	}
	if cfg.VectorStore.Chromem.Collection == "" {
		cfg.VectorStore.Chromem.Collection = "docs"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "docs"
	}

	// Generation defaults
	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "http://localhost:11434"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gemma3:4b"
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = Duration(120 * time.Second)
	}
	if cfg.Generation.ProbeTimeout == 0 {
		cfg.Generation.ProbeTimeout = Duration(60 * time.Second)
	}

	// Chunking defaults. A zero overlap is a valid setting, so the default
	// only applies when the size is unset too.
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 750
		if cfg.Chunking.Overlap == 0 {
			cfg.Chunking.Overlap = 120
		}
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Telemetry defaults
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "raglab"
	}
}

// splitList flattens comma separated entries, as produced by env vars.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
