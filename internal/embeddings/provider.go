package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/raglab/internal/config"
	"go.uber.org/zap"
)

var (
	// ErrEmptyInput indicates empty or nil input texts
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates embedding generation failure
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider is the interface for embedding providers.
//
// EmbedDocuments returns one vector per input text, in input order. Every
// vector a provider returns has Dimension() elements.
type Provider interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// modelDimensions lists output dimensions of common embedding models.
var modelDimensions = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"fast-all-MiniLM-L6-v2":                  384,
	"fast-bge-small-en-v1.5":                 384,
	"fast-bge-small-en":                      384,
	"fast-bge-base-en-v1.5":                  768,
	"fast-bge-base-en":                       768,
	"fast-bge-small-zh-v1.5":                 512,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
}

// KnownDimension returns the output dimension of a well-known model.
func KnownDimension(model string) (int, bool) {
	dim, ok := modelDimensions[model]
	return dim, ok
}

// NewProvider creates an embedding provider based on the configuration.
//
// For remote providers serving a model whose dimension is not known, one
// probe embedding is requested to learn it.
func NewProvider(ctx context.Context, cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "fastembed", "":
		p, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		})
	case "tei":
		p, err = NewTEIProvider(TEIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey.Value(),
			BatchSize: cfg.BatchSize,
		}, logger)
	case "openai":
		p, err = NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			APIKey:    cfg.APIKey.Value(),
			BatchSize: cfg.BatchSize,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if p.Dimension() <= 0 {
		if err := probeDimension(ctx, p); err != nil {
			_ = p.Close()
			return nil, err
		}
	}

	logger.Info("embedding provider initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimension", p.Dimension()),
	)
	return p, nil
}

// dimensionSetter is implemented by providers whose dimension is learnt at runtime.
type dimensionSetter interface {
	setDimension(int)
}

func probeDimension(ctx context.Context, p Provider) error {
	ds, ok := p.(dimensionSetter)
	if !ok {
		return fmt.Errorf("%w: provider reports no dimension", ErrInvalidConfig)
	}
	vec, err := p.EmbedQuery(ctx, "dimension probe")
	if err != nil {
		return fmt.Errorf("probing embedding dimension: %w", err)
	}
	if len(vec) == 0 {
		return fmt.Errorf("%w: probe returned an empty vector", ErrEmbeddingFailed)
	}
	ds.setDimension(len(vec))
	return nil
}

// checkVectors verifies a provider response has one vector per input.
func checkVectors(vectors [][]float32, want int) error {
	if len(vectors) != want {
		return fmt.Errorf("%w: got %d vectors for %d inputs", ErrEmbeddingFailed, len(vectors), want)
	}
	return nil
}
