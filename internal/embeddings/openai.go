package embeddings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/raglab/internal/upstream"
	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

// OpenAIServiceName identifies OpenAI-compatible embedding servers in upstream errors.
const OpenAIServiceName = "OpenAI"

// OpenAIConfig holds configuration for an OpenAI-compatible embeddings API.
type OpenAIConfig struct {
	// BaseURL is the API root, e.g. https://api.openai.com/v1
	BaseURL string

	// Model is the embedding model, e.g. text-embedding-3-small
	Model string

	// APIKey is the bearer token. Servers that need none still receive a placeholder.
	APIKey string

	// BatchSize caps the number of texts per request.
	// Default: 32
	BatchSize int
}

// Validate validates the configuration.
func (c OpenAIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	return nil
}

// OpenAIProvider generates embeddings through langchaingo's OpenAI client.
// Any server exposing the OpenAI /embeddings API works, including TEI's
// OpenAI-compatible route and Ollama.
type OpenAIProvider struct {
	embedder  lcembeddings.Embedder
	config    OpenAIConfig
	logger    *zap.Logger
	metrics   *Metrics
	dimension int
}

// NewOpenAIProvider creates an OpenAIProvider.
func NewOpenAIProvider(config OpenAIConfig, logger *zap.Logger) (*OpenAIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if config.BatchSize == 0 {
		config.BatchSize = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	apiKey := config.APIKey
	if apiKey == "" {
		// langchaingo requires a token, use placeholder for keyless servers
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithEmbeddingModel(config.Model),
		openai.WithToken(apiKey),
		openai.WithHTTPClient(&http.Client{
			Transport: &upstreamTransport{service: OpenAIServiceName, base: http.DefaultTransport},
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm,
		lcembeddings.WithBatchSize(config.BatchSize),
		lcembeddings.WithStripNewLines(false),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	dim, _ := KnownDimension(config.Model)
	return &OpenAIProvider{
		embedder:  embedder,
		config:    config,
		logger:    logger,
		metrics:   NewMetrics(logger),
		dimension: dim,
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed_documents", time.Since(start), len(texts), err)
	}()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors, err = p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, p.upstreamError(err)
	}
	if err := checkVectors(vectors, len(texts)); err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed_query", time.Since(start), 1, err)
	}()

	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	vector, err = p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, p.upstreamError(err)
	}
	return vector, nil
}

// upstreamError extracts the upstream error recorded by upstreamTransport from
// langchaingo's wrapping. Anything else happened after a 2xx response, so the
// payload was unusable.
func (p *OpenAIProvider) upstreamError(err error) error {
	var unavailable *upstream.UnavailableError
	if errors.As(err, &unavailable) {
		p.logger.Warn("embedding service unreachable", zap.String("url", p.config.BaseURL), zap.Error(err))
		return unavailable
	}
	var status *upstream.StatusError
	if errors.As(err, &status) {
		return status
	}
	return upstream.Protocol(OpenAIServiceName, nil, err)
}

// upstreamTransport turns transport failures and non-2xx responses into
// upstream errors. langchaingo reports both as plain strings and drops
// bodies that are not OpenAI error JSON.
type upstreamTransport struct {
	service string
	base    http.RoundTripper
}

func (t *upstreamTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, upstream.Unavailable(t.service, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstream.Unavailable(t.service, fmt.Errorf("reading response: %w", err))
	}
	return nil, upstream.Status(t.service, resp.StatusCode, string(body))
}

// Dimension returns the embedding dimension, or 0 before it is known.
func (p *OpenAIProvider) Dimension() int {
	return p.dimension
}

func (p *OpenAIProvider) setDimension(d int) {
	p.dimension = d
}

// Close is a no-op; the HTTP client holds no resources.
func (p *OpenAIProvider) Close() error {
	return nil
}
