// Package config loads and validates chartd configuration.
//
// Precedence, highest to lowest: environment variables (CHARTD_*), the
// YAML config file, hardcoded defaults. Each section delegates to the
// owning package's ApplyDefaults and Validate so option semantics live
// next to the code that uses them.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/chartd/internal/chunker"
	"github.com/fyrsmithlabs/chartd/internal/embeddings"
	"github.com/fyrsmithlabs/chartd/internal/entity"
	"github.com/fyrsmithlabs/chartd/internal/ingest"
	"github.com/fyrsmithlabs/chartd/internal/logging"
	"github.com/fyrsmithlabs/chartd/internal/retrieval"
	"github.com/fyrsmithlabs/chartd/internal/telemetry"
	"github.com/fyrsmithlabs/chartd/internal/vectorstore"
)

// Config is the root chartd configuration.
type Config struct {
	Server      ServerConfig             `koanf:"server"`
	Logging     logging.Config           `koanf:"logging"`
	Chunking    chunker.Config           `koanf:"chunking"`
	Entities    entity.Config            `koanf:"entities"`
	Embeddings  embeddings.ProviderConfig `koanf:"embeddings"`
	Batcher     embeddings.BatcherConfig `koanf:"batcher"`
	VectorStore VectorStoreConfig        `koanf:"vectorstore"`
	Ingest      ingest.Config            `koanf:"ingest"`
	Retrieval   retrieval.Config         `koanf:"retrieval"`
	Telemetry   telemetry.Config         `koanf:"telemetry"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the listen address. Default: 127.0.0.1
	Host string `koanf:"host"`

	// Port is the listen port. Default: 9090
	Port int `koanf:"port"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxUploadBytes bounds document upload size. Default: 32MB
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string `koanf:"provider"`

	Chromem vectorstore.ChromemConfig `koanf:"chromem"`
	Qdrant  vectorstore.QdrantConfig  `koanf:"qdrant"`
}

// applyDefaults fills unset fields across all sections.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 32 * 1024 * 1024
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}

	cfg.Logging.ApplyDefaults()
	cfg.Chunking.ApplyDefaults()
	cfg.Batcher.ApplyDefaults()
	cfg.VectorStore.Chromem.ApplyDefaults()
	cfg.VectorStore.Qdrant.ApplyDefaults()
	cfg.Ingest.ApplyDefaults()
	cfg.Retrieval.ApplyDefaults()
	cfg.Telemetry.ApplyDefaults()
}

// Validate validates all sections.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive")
	}

	switch c.VectorStore.Provider {
	case "chromem":
		if err := c.VectorStore.Chromem.Validate(); err != nil {
			return fmt.Errorf("vectorstore.chromem: %w", err)
		}
	case "qdrant":
		if err := c.VectorStore.Qdrant.Validate(); err != nil {
			return fmt.Errorf("vectorstore.qdrant: %w", err)
		}
	default:
		return fmt.Errorf("vectorstore provider must be 'chromem' or 'qdrant', got %q", c.VectorStore.Provider)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Chunking.Validate(); err != nil {
		return fmt.Errorf("chunking: %w", err)
	}
	if err := c.Batcher.Validate(); err != nil {
		return fmt.Errorf("batcher: %w", err)
	}
	if err := c.Ingest.Validate(); err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	if err := c.Retrieval.Validate(); err != nil {
		return fmt.Errorf("retrieval: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}
