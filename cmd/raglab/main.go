// Raglab is a retrieval-augmented question answering server.
//
// Uploaded documents are chunked, embedded and indexed in a vector store.
// Questions are answered by a local Ollama model grounded on the most similar
// chunks.
//
// Configuration is loaded from an optional YAML file, a .env file and
// environment variables. See internal/config for details.
//
// Usage:
//
//	# Start server with defaults
//	raglab
//
//	# Use a config file
//	raglab -config /etc/raglab/config.yaml
//
//	# Configure via environment
//	OLLAMA_HOST=http://gpu-box:11434 OLLAMA_MODEL=llama3.2 raglab
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/raglab/internal/config"
	"github.com/fyrsmithlabs/raglab/internal/embeddings"
	"github.com/fyrsmithlabs/raglab/internal/generation"
	raghttp "github.com/fyrsmithlabs/raglab/internal/http"
	"github.com/fyrsmithlabs/raglab/internal/logging"
	"github.com/fyrsmithlabs/raglab/internal/rag"
	"github.com/fyrsmithlabs/raglab/internal/telemetry"
	"github.com/fyrsmithlabs/raglab/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  raglab [-config file]   Start the raglab server\n")
			fmt.Fprintf(os.Stderr, "  raglab version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func printVersion() {
	fmt.Printf("raglab by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the server and blocks until ctx is cancelled, then drains
// in-flight requests and releases every dependency in reverse order.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version), nil)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logCfg, err := logging.FromConfig(cfg.Logging, cfg.Telemetry.ServiceName, tel.IsEnabled())
	if err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()
	defer shutdownTelemetry(tel, cfg, logger)

	logger.Info("starting raglab",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("model", cfg.Generation.Model),
		zap.Bool("telemetry", tel.IsEnabled()))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	svc, err := rag.NewService(rag.Config{
		ChunkSize:    cfg.Chunking.Size,
		ChunkOverlap: cfg.Chunking.Overlap,
	}, deps.embedder, deps.store, deps.generator, logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	srv, err := raghttp.NewServer(svc, logger, raghttp.ConfigFromServer(cfg.Server))
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return <-errCh
}

// dependencies holds the pipeline collaborators.
type dependencies struct {
	embedder  embeddings.Provider
	store     vectorstore.Store
	generator *generation.Client
	logger    *zap.Logger
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.logger.Warn("closing vector store", zap.Error(err))
		}
	}
	if d.embedder != nil {
		if err := d.embedder.Close(); err != nil {
			d.logger.Warn("closing embedding provider", zap.Error(err))
		}
	}
}

// initDependencies creates the embedding provider, the vector store sized to
// its dimension, and the generation client.
func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{logger: logger}

	embedder, err := embeddings.NewProvider(ctx, cfg.Embeddings, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	deps.embedder = embedder

	store, err := vectorstore.NewStore(ctx, cfg.VectorStore, embedder.Dimension(), logger)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	deps.store = store

	generator, err := generation.NewClient(generation.Config{
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Timeout:     cfg.Generation.Timeout.Duration(),
		PingTimeout: cfg.Generation.ProbeTimeout.Duration(),
	}, logger)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to create generation client: %w", err)
	}
	deps.generator = generator

	return deps, nil
}

func shutdownTelemetry(tel *telemetry.Telemetry, cfg *config.Config, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("telemetry shutdown", zap.Error(err))
	}
}
