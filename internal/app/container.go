package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/gazetteflow/internal/gcp"
	"github.com/Lllllllleong/gazetteflow/internal/services"
	"github.com/Lllllllleong/gazetteflow/internal/store"
)

// Container holds all application dependencies.
type Container struct {
	Config *Config
	Logger *slog.Logger

	Store         store.Store
	StorageClient *storage.Client
	Vertex        *gcp.VertexClient

	Ingestor *services.Ingestor
	Chat     *services.ChatService
	Stats    *services.StatsService
}

// OpenStore opens the configured record store backend.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case BackendMemory:
		return store.NewMemory(), nil
	case BackendSQLite:
		st, err := store.NewSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return st, nil
	case BackendFirestore:
		client, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		st, err := store.NewFirestore(client, cfg.FirestoreCollection, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// NewContainer builds every service. On error anything already opened is closed.
func NewContainer(ctx context.Context, cfg *Config, logger *slog.Logger) (c *Container, err error) {
	if err := cfg.RequireCloud(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	c = &Container{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = c.Close()
			c = nil
		}
	}()

	if c.Store, err = OpenStore(ctx, cfg, logger); err != nil {
		return c, fmt.Errorf("failed to open %s store: %w", cfg.StoreBackend, err)
	}
	if c.StorageClient, err = storage.NewClient(ctx); err != nil {
		return c, fmt.Errorf("failed to create Storage client: %w", err)
	}
	if c.Vertex, err = gcp.NewVertexClient(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.GeminiModel); err != nil {
		return c, fmt.Errorf("failed to create vertex client: %w", err)
	}

	stager, err := gcp.NewGCSStager(c.StorageClient, cfg.StagingBucket)
	if err != nil {
		return c, err
	}
	extractor := services.NewExtractor(c.Vertex.ExtractorModel, services.ExtractorConfig{
		MaxRetries: cfg.ModelMaxRetries,
	}, logger)
	if c.Ingestor, err = services.NewIngestor(c.Store, stager, extractor, services.IngestorConfig{
		PageLimit: cfg.PageLimit,
		PageDelay: cfg.PageDelay,
	}, logger); err != nil {
		return c, err
	}
	if c.Chat, err = services.NewChatService(c.Vertex.PlannerModel, c.Vertex.AnswerModel, c.Store, logger); err != nil {
		return c, err
	}
	c.Stats = services.NewStatsService(c.Store)

	logger.Info("Services initialized.",
		"storeBackend", cfg.StoreBackend,
		"model", cfg.GeminiModel,
		"stagingBucket", cfg.StagingBucket,
		"pageLimit", cfg.PageLimit,
	)
	return c, nil
}

// Close releases every client the container opened.
func (c *Container) Close() error {
	var errs []error
	if c.Vertex != nil {
		errs = append(errs, c.Vertex.Close())
	}
	if c.StorageClient != nil {
		errs = append(errs, c.StorageClient.Close())
	}
	if c.Store != nil {
		errs = append(errs, c.Store.Close())
	}
	return errors.Join(errs...)
}
