package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrDimensionMismatch indicates an embedding whose length differs from the store's.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidRecord indicates a record that cannot be stored.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Store is the interface for vector storage operations.
//
// Records are written with embeddings computed by the caller; stores never
// embed text themselves. Every embedding in a store shares one dimensionality,
// fixed at construction time from the configured embedder.
//
// Implementations:
//   - ChromemStore: Embedded chromem-go (default)
//   - QdrantStore: External Qdrant gRPC client
//
// Implementations are safe for concurrent use.
type Store interface {
	// Add writes all records in a single batch. An empty batch is a no-op.
	// Record IDs must be unique within the batch.
	Add(ctx context.Context, records []Record) error

	// Query returns up to k records nearest to embedding, nearest first.
	// An empty store returns an empty slice and no error.
	Query(ctx context.Context, embedding []float32, k int) ([]Match, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// validateRecords checks IDs and embedding dimensions of a batch.
func validateRecords(records []Record, dimension int) error {
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record at index %d has empty id", ErrInvalidRecord, i)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q in batch", ErrInvalidRecord, r.ID)
		}
		seen[r.ID] = struct{}{}

		if err := validateDimension(r.Embedding, dimension); err != nil {
			return fmt.Errorf("record %q: %w", r.ID, err)
		}
	}
	return nil
}

// validateQuery checks a query embedding and result width.
func validateQuery(embedding []float32, k, dimension int) error {
	if k <= 0 {
		return fmt.Errorf("k must be positive, got %d", k)
	}
	return validateDimension(embedding, dimension)
}

func validateDimension(embedding []float32, dimension int) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", ErrDimensionMismatch)
	}
	if dimension > 0 && len(embedding) != dimension {
		return fmt.Errorf("%w: got %d, store expects %d", ErrDimensionMismatch, len(embedding), dimension)
	}
	return nil
}
