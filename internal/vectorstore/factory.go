package vectorstore

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/raglab/internal/config"
	"go.uber.org/zap"
)

// NewStore creates a new Store based on the configuration.
//
// This factory function examines the VectorStoreConfig.Provider field and
// creates the appropriate store implementation:
//   - "chromem" (default): Creates an embedded ChromemStore (no external deps)
//   - "qdrant": Creates a QdrantStore (requires external Qdrant server)
//
// vectorSize is the embedder's output dimension.
//
// Example usage:
//
//	store, err := vectorstore.NewStore(ctx, cfg.VectorStore, embedder.Dimension(), logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func NewStore(ctx context.Context, cfg config.VectorStoreConfig, vectorSize int, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemStore(ChromemConfig{
			Path:       cfg.Chromem.Path,
			Collection: cfg.Chromem.Collection,
			Compress:   cfg.Chromem.Compress,
			VectorSize: vectorSize,
		}, logger)

	case "qdrant":
		if vectorSize <= 0 {
			return nil, fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
		}
		return NewQdrantStore(ctx, QdrantConfig{
			Host:           cfg.Qdrant.Host,
			Port:           cfg.Qdrant.Port,
			CollectionName: cfg.Qdrant.Collection,
			VectorSize:     uint64(vectorSize),
			APIKey:         cfg.Qdrant.APIKey.Value(),
			UseTLS:         cfg.Qdrant.UseTLS,
		}, logger)

	default:
		return nil, fmt.Errorf("unsupported vectorstore provider: %s (supported: chromem, qdrant)", cfg.Provider)
	}
}
