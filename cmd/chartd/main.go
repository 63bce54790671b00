// Chartd is the chunking and retrieval-context daemon for medical
// document Q&A. It ingests extracted document text into sentence-aligned,
// embedded chunks and serves citation-backed context blocks over HTTP.
//
// Usage:
//
//	# Start the server with defaults
//	chartd serve
//
//	# With an explicit config file
//	chartd serve --config /etc/chartd/config.yaml
//
//	# Configure via environment
//	CHARTD_SERVER_PORT=8181 chartd serve
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/chartd/internal/chunker"
	"github.com/fyrsmithlabs/chartd/internal/config"
	"github.com/fyrsmithlabs/chartd/internal/document"
	"github.com/fyrsmithlabs/chartd/internal/embeddings"
	"github.com/fyrsmithlabs/chartd/internal/entity"
	"github.com/fyrsmithlabs/chartd/internal/httpapi"
	"github.com/fyrsmithlabs/chartd/internal/ingest"
	"github.com/fyrsmithlabs/chartd/internal/logging"
	"github.com/fyrsmithlabs/chartd/internal/retrieval"
	"github.com/fyrsmithlabs/chartd/internal/telemetry"
	"github.com/fyrsmithlabs/chartd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:     "chartd",
	Short:   "Chunking and retrieval-context daemon for medical documents",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chartd HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show detailed version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("chartd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/chartd/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runServe wires configuration, logging, the embedding provider, the
// vector store, and the ingestion and retrieval services into the HTTP
// server, then blocks until the context is cancelled.
func runServe(ctx context.Context) error {
	if configPath == "" {
		if err := config.EnsureConfigDir(); err != nil {
			return err
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logging.Sync(logger)

	logger.Info("starting chartd",
		zap.String("version", version),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embedding_provider", cfg.Embeddings.Provider),
	)

	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	provider, err := embeddings.NewProvider(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("initializing embedding provider: %w", err)
	}
	defer provider.Close()

	store, err := newVectorStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer store.Close()

	builder, err := chunker.NewBuilder(cfg.Chunking, logger)
	if err != nil {
		return fmt.Errorf("initializing chunk builder: %w", err)
	}

	tagger, err := entity.NewTagger(cfg.Entities)
	if err != nil {
		return fmt.Errorf("initializing entity tagger: %w", err)
	}

	batcher, err := embeddings.NewBatcher(provider, cfg.Batcher, logger)
	if err != nil {
		return fmt.Errorf("initializing embedding batcher: %w", err)
	}

	docs := document.NewMemoryStore()

	pipeline, err := ingest.NewPipeline(docs, builder, tagger, batcher, store, cfg.Ingest, logger)
	if err != nil {
		return fmt.Errorf("initializing ingestion pipeline: %w", err)
	}

	retriever, err := retrieval.NewService(docs, provider, store, cfg.Retrieval, logger)
	if err != nil {
		return fmt.Errorf("initializing retrieval service: %w", err)
	}

	server, err := httpapi.NewServer(docs, pipeline, retriever, httpapi.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
	}, logger)
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func newVectorStore(cfg *config.Config, logger *zap.Logger) (vectorstore.Store, error) {
	switch cfg.VectorStore.Provider {
	case "qdrant":
		return vectorstore.NewQdrantStore(cfg.VectorStore.Qdrant, logger)
	default:
		return vectorstore.NewChromemStore(cfg.VectorStore.Chromem, logger)
	}
}
