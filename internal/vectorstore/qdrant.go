package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/raglab/internal/upstream"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantServiceName identifies Qdrant in upstream errors.
const QdrantServiceName = "Qdrant"

// Payload keys written with every point.
const (
	payloadID   = "id"
	payloadText = "text"
)

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("raglab.vectorstore.qdrant")

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// QdrantConfig holds configuration for Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	// Default: "localhost"
	Host string

	// Port is the Qdrant gRPC port (NOT HTTP REST port).
	// Default: 6334 (gRPC), not 6333 (HTTP)
	Port int

	// CollectionName is the collection holding all chunks.
	// Default: "docs"
	CollectionName string

	// VectorSize is the dimensionality of embeddings.
	// MUST match Embedder output dimensions.
	VectorSize uint64

	// APIKey authenticates against Qdrant Cloud. Optional.
	APIKey string

	// UseTLS enables TLS encryption for gRPC connection.
	UseTLS bool

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB (to handle large documents)
	MaxMessageSize int

	// StartupTimeout bounds the health check and collection setup at construction.
	// Default: 5s
	StartupTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.CollectionName == "" {
		c.CollectionName = "docs"
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024 // 50MB
	}
	if c.StartupTimeout == 0 {
		c.StartupTimeout = 5 * time.Second
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.CollectionName)
}

// ValidateCollectionName validates a collection name against security rules.
// Pattern: ^[a-z0-9_]{1,64}$
// Rejects: uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// QdrantStore implements the Store interface using the Qdrant gRPC client.
//
// Qdrant point IDs must be UUIDs or unsigned integers, so each record ID is
// mapped to a name-based UUID (see PointID). The record ID itself is kept in
// the payload and returned on Query.
type QdrantStore struct {
	client *qdrant.Client
	config QdrantConfig
	logger *zap.Logger
}

// NewQdrantStore connects to Qdrant, checks its health and creates the
// collection with cosine distance when it does not exist yet.
func NewQdrantStore(ctx context.Context, config QdrantConfig, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if !config.UseTLS {
		logger.Warn("Qdrant gRPC using plaintext (TLS disabled)",
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, classifyQdrantError(err)
	}

	store := &QdrantStore{
		client: client,
		config: config,
		logger: logger,
	}

	startCtx, cancel := context.WithTimeout(ctx, config.StartupTimeout)
	defer cancel()

	if err := store.healthCheck(startCtx); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := store.ensureCollection(startCtx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("QdrantStore initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.CollectionName),
		zap.Uint64("vector_size", config.VectorSize),
	)

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// healthCheck performs a health check on the Qdrant connection.
func (s *QdrantStore) healthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.HealthCheck")
	defer span.End()

	if _, err := s.client.HealthCheck(ctx); err != nil {
		err = classifyQdrantError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("health check failed: %w", err)
	}

	span.SetStatus(codes.Ok, "healthy")
	return nil
}

// ensureCollection creates the collection if it does not exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.EnsureCollection")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int64("vector_size", int64(s.config.VectorSize)),
	)

	exists, err := s.client.CollectionExists(ctx, s.config.CollectionName)
	if err != nil {
		err = classifyQdrantError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("checking collection %s: %w", s.config.CollectionName, err)
	}
	if exists {
		span.SetStatus(codes.Ok, "exists")
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.config.CollectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.config.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		err = classifyQdrantError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", s.config.CollectionName, err)
	}

	s.logger.Info("created qdrant collection", zap.String("collection", s.config.CollectionName))
	span.SetStatus(codes.Ok, "created")
	return nil
}

// Add upserts records as points and waits for the write to be applied.
func (s *QdrantStore) Add(ctx context.Context, records []Record) (err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Add")
	defer span.End()

	defer func(start time.Time) { observe("qdrant", "add", start, err) }(time.Now())

	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int("record_count", len(records)),
	)

	if len(records) == 0 {
		span.SetStatus(codes.Ok, "empty batch")
		return nil
	}

	if err := validateRecords(records, int(s.config.VectorSize)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(r.ID)),
			Vectors: qdrant.NewVectors(r.Embedding...),
			Payload: qdrant.NewValueMap(recordPayload(r)),
		}
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.config.CollectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		err = classifyQdrantError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points: %w", err)
	}

	RecordsWritten.WithLabelValues("qdrant").Add(float64(len(records)))
	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("upserted records to qdrant",
		zap.String("collection", s.config.CollectionName),
		zap.Int("count", len(records)),
	)
	return nil
}

// Query returns the k points nearest to embedding.
func (s *QdrantStore) Query(ctx context.Context, embedding []float32, k int) (_ []Match, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Query")
	defer span.End()

	defer func(start time.Time) { observe("qdrant", "query", start, err) }(time.Now())

	span.SetAttributes(
		attribute.String("collection", s.config.CollectionName),
		attribute.Int("k", k),
	)

	if err := validateQuery(embedding, k, int(s.config.VectorSize)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.config.CollectionName,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		err = classifyQdrantError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.CollectionName, err)
	}

	matches := make([]Match, len(points))
	for i, p := range points {
		matches[i] = matchFromPayload(p.GetPayload(), p.GetScore())
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Count returns the exact number of points in the collection.
func (s *QdrantStore) Count(ctx context.Context) (_ int, err error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Count")
	defer span.End()

	defer func(start time.Time) { observe("qdrant", "count", start, err) }(time.Now())

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.config.CollectionName,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		err = classifyQdrantError(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("counting points: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	return int(n), nil
}

// PointID maps a record ID to the deterministic UUID used as its Qdrant
// point ID. Equal record IDs always map to the same point.
func PointID(recordID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(recordID)).String()
}

// recordPayload builds the point payload. The reserved keys win over
// metadata keys of the same name.
func recordPayload(r Record) map[string]any {
	payload := make(map[string]any, len(r.Metadata)+2)
	for k, v := range r.Metadata {
		payload[k] = v
	}
	payload[payloadID] = r.ID
	payload[payloadText] = r.Text
	return payload
}

// matchFromPayload rebuilds a Match from a point payload. Non-string payload
// values are ignored.
func matchFromPayload(payload map[string]*qdrant.Value, score float32) Match {
	m := Match{
		Score:    score,
		Metadata: make(map[string]string, len(payload)),
	}
	for k, v := range payload {
		sv, ok := v.GetKind().(*qdrant.Value_StringValue)
		if !ok {
			continue
		}
		switch k {
		case payloadID:
			m.ID = sv.StringValue
		case payloadText:
			m.Text = sv.StringValue
		default:
			m.Metadata[k] = sv.StringValue
		}
	}
	return m
}

// classifyQdrantError maps gRPC failures onto the upstream taxonomy.
// Connection loss and deadlines become UnavailableError; any other gRPC
// status becomes a StatusError carrying the code name.
func classifyQdrantError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return upstream.Unavailable(QdrantServiceName, err)
	}

	st, ok := status.FromError(err)
	if !ok {
		return upstream.Unavailable(QdrantServiceName, err)
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Canceled:
		return upstream.Unavailable(QdrantServiceName, err)
	default:
		return &upstream.StatusError{
			Service: QdrantServiceName,
			Status:  st.Code().String(),
			Body:    st.Message(),
		}
	}
}
