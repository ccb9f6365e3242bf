package rag

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/raglab/internal/chunker"
	"github.com/fyrsmithlabs/raglab/internal/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TopK is the number of chunks retrieved per question.
const TopK = 4

var tracer = otel.Tracer("raglab.rag")

var (
	// ErrEmptyQuestion is returned by Ask when the question is blank.
	ErrEmptyQuestion = errors.New("question is required")

	// ErrEmptySource is returned by Ingest when no source name is given.
	ErrEmptySource = errors.New("source is required")

	// ErrEmbeddingMismatch indicates the embedder returned the wrong number of vectors.
	ErrEmbeddingMismatch = errors.New("embedding count mismatch")
)

// Embedder produces vectors for documents and queries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store persists and searches chunk embeddings.
type Store interface {
	Add(ctx context.Context, records []vectorstore.Record) error
	Query(ctx context.Context, embedding []float32, k int) ([]vectorstore.Match, error)
}

// Generator produces text completions.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Ping(ctx context.Context) error
	Model() string
}

// Config holds pipeline settings.
type Config struct {
	// ChunkSize is the window length in words.
	// Default: 750
	ChunkSize int

	// ChunkOverlap is the number of words shared by consecutive windows.
	// Default: 120
	ChunkOverlap int

	// TopK is the number of chunks retrieved per question.
	// Default: 4
	TopK int
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = chunker.DefaultSize
		if c.ChunkOverlap == 0 {
			c.ChunkOverlap = chunker.DefaultOverlap
		}
	}
	if c.TopK == 0 {
		c.TopK = TopK
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if err := chunker.Validate(c.ChunkSize, c.ChunkOverlap); err != nil {
		return err
	}
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	return nil
}

// Answer is the result of a question.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
}

// ProbeResult reports a successful generation round trip.
type ProbeResult struct {
	OK    bool   `json:"ok"`
	Model string `json:"model"`
}

// HealthReport describes process liveness.
type HealthReport struct {
	OK    bool   `json:"ok"`
	Model string `json:"model"`
}

// Service runs the ingestion and question answering pipelines.
//
// Service holds no mutable state of its own and is safe for concurrent use
// provided its collaborators are.
type Service struct {
	config    Config
	embedder  Embedder
	store     Store
	generator Generator
	logger    *zap.Logger
	metrics   *Metrics
}

// NewService creates a Service.
func NewService(config Config, embedder Embedder, store Store, generator Generator, logger *zap.Logger) (*Service, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder == nil || store == nil || generator == nil {
		return nil, errors.New("embedder, store and generator are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		config:    config,
		embedder:  embedder,
		store:     store,
		generator: generator,
		logger:    logger,
		metrics:   NewMetrics(),
	}, nil
}

// Ingest chunks text, embeds every chunk and writes them to the store.
//
// Chunk ids are "{source}-{index}", so re-ingesting a file under the same
// name replaces the chunks it had at those indices. A text with no words
// stores nothing and returns 0. Failures leave the store untouched unless
// the store itself failed mid-write.
func (s *Service) Ingest(ctx context.Context, source, text string) (n int, err error) {
	ctx, span := tracer.Start(ctx, "rag.Ingest",
		trace.WithAttributes(attribute.String("source", source)),
	)
	defer func() {
		endSpan(span, err)
		s.metrics.DocumentsIngested.WithLabelValues(result(err)).Inc()
	}()

	if source == "" {
		return 0, ErrEmptySource
	}

	chunks, err := chunker.Chunk(text, s.config.ChunkSize, s.config.ChunkOverlap)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	if len(chunks) == 0 {
		s.logger.Info("nothing to ingest", zap.String("source", source))
		return 0, nil
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("%w: %d vectors for %d chunks", ErrEmbeddingMismatch, len(vectors), len(chunks))
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = vectorstore.Record{
			ID:        ChunkID(source, i),
			Text:      chunk,
			Embedding: vectors[i],
			Metadata:  map[string]string{vectorstore.MetadataSource: source},
		}
	}

	if err := s.store.Add(ctx, records); err != nil {
		return 0, fmt.Errorf("storing chunks: %w", err)
	}

	s.metrics.ChunksIngested.Add(float64(len(records)))
	s.logger.Info("document ingested",
		zap.String("source", source),
		zap.Int("chunks", len(records)),
	)
	return len(records), nil
}

// Ask answers a question from the most similar stored chunks.
//
// Sources lists the distinct filenames of the retrieved chunks in rank
// order. With an empty store the generator is still called with an empty
// context.
func (s *Service) Ask(ctx context.Context, question string) (answer *Answer, err error) {
	ctx, span := tracer.Start(ctx, "rag.Ask")
	defer func() {
		endSpan(span, err)
		s.metrics.QuestionsTotal.WithLabelValues(result(err)).Inc()
	}()

	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	matches, err := s.store.Query(ctx, vector, s.config.TopK)
	if err != nil {
		return nil, fmt.Errorf("querying store: %w", err)
	}
	s.metrics.RetrievedChunks.Observe(float64(len(matches)))
	span.SetAttributes(attribute.Int("retrieved", len(matches)))

	text, err := s.generator.Generate(ctx, BuildPrompt(question, chunkTexts(matches)))
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	sources := CollectSources(matches)
	s.logger.Debug("question answered",
		zap.Int("retrieved", len(matches)),
		zap.Strings("sources", sources),
	)
	return &Answer{Answer: text, Sources: sources}, nil
}

// Probe verifies the generation service answers a trivial prompt.
func (s *Service) Probe(ctx context.Context) (res *ProbeResult, err error) {
	ctx, span := tracer.Start(ctx, "rag.Probe")
	defer func() {
		endSpan(span, err)
		s.metrics.ProbesTotal.WithLabelValues(result(err)).Inc()
	}()

	if err := s.generator.Ping(ctx); err != nil {
		return nil, err
	}
	return &ProbeResult{OK: true, Model: s.generator.Model()}, nil
}

// Health reports process liveness and the configured generation model.
// It makes no upstream call.
func (s *Service) Health() *HealthReport {
	return &HealthReport{OK: true, Model: s.generator.Model()}
}

// ChunkID returns the store id of the index-th chunk of source.
func ChunkID(source string, index int) string {
	return source + "-" + strconv.Itoa(index)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
