package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/raglab/internal/upstream"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// TEIServiceName identifies Text Embeddings Inference in upstream errors.
const TEIServiceName = "TEI"

var tracer = otel.Tracer("raglab.embeddings")

// TEIConfig holds configuration for a Text Embeddings Inference server.
type TEIConfig struct {
	// BaseURL is the TEI address, e.g. http://localhost:8080
	BaseURL string

	// Model is the served model. Only used for dimension lookup and metrics.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// BatchSize caps the number of texts per /embed request.
	// Default: 32
	BatchSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *TEIConfig) ApplyDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
}

// Validate validates the configuration.
func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	}
	return nil
}

// TEIProvider generates embeddings with a Text Embeddings Inference server.
type TEIProvider struct {
	config    TEIConfig
	client    *http.Client
	logger    *zap.Logger
	metrics   *Metrics
	dimension int
}

// NewTEIProvider creates a TEIProvider. No request is made until the first
// embedding call.
func NewTEIProvider(config TEIConfig, logger *zap.Logger) (*TEIProvider, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dim, _ := KnownDimension(config.Model)
	return &TEIProvider{
		config:    config,
		client:    &http.Client{},
		logger:    logger,
		metrics:   NewMetrics(logger),
		dimension: dim,
	}, nil
}

// teiRequest is the request body for TEI embed endpoint.
type teiRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// EmbedDocuments generates embeddings for multiple texts, sending at most
// BatchSize texts per request. Output order matches input order.
func (p *TEIProvider) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	ctx, span := tracer.Start(ctx, "TEIProvider.EmbedDocuments")
	defer span.End()

	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed_documents", time.Since(start), len(texts), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	span.SetAttributes(
		attribute.Int("texts", len(texts)),
		attribute.Int("batch_size", p.config.BatchSize),
	)

	vectors = make([][]float32, 0, len(texts))
	for lo := 0; lo < len(texts); lo += p.config.BatchSize {
		hi := min(lo+p.config.BatchSize, len(texts))
		batch, err := p.embed(ctx, texts[lo:hi])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	span.SetStatus(codes.Ok, "success")
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *TEIProvider) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	ctx, span := tracer.Start(ctx, "TEIProvider.EmbedQuery")
	defer span.End()

	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.config.Model, "embed_query", time.Since(start), 1, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	vectors, err := p.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	span.SetStatus(codes.Ok, "success")
	return vectors[0], nil
}

// embed sends one /embed request.
func (p *TEIProvider) embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: texts, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(p.config.BaseURL, "/") + "/embed"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.logger.Warn("embedding service unreachable", zap.String("url", url), zap.Error(err))
		return nil, upstream.Unavailable(TEIServiceName, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, upstream.Unavailable(TEIServiceName, fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, upstream.Status(TEIServiceName, resp.StatusCode, string(respBody))
	}

	var vectors [][]float32
	if err := json.Unmarshal(respBody, &vectors); err != nil {
		return nil, upstream.Protocol(TEIServiceName, respBody, err)
	}
	if err := checkVectors(vectors, len(texts)); err != nil {
		return nil, err
	}

	return vectors, nil
}

// Dimension returns the embedding dimension, or 0 before it is known.
func (p *TEIProvider) Dimension() int {
	return p.dimension
}

func (p *TEIProvider) setDimension(d int) {
	p.dimension = d
}

// Close is a no-op for TEI since it uses HTTP.
func (p *TEIProvider) Close() error {
	return nil
}
