package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/lmittmann/tint"

	"github.com/bdougie/livefeed/internal/config"
	"github.com/bdougie/livefeed/internal/desccache"
	"github.com/bdougie/livefeed/internal/embeddings"
	"github.com/bdougie/livefeed/internal/engine"
	"github.com/bdougie/livefeed/internal/extractor"
	"github.com/bdougie/livefeed/internal/orchestrator"
	"github.com/bdougie/livefeed/internal/server"
	"github.com/bdougie/livefeed/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Configure logger
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      slog.LevelDebug,
			TimeFormat: "15:04:05",
		}),
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	store, embedSvc, err := buildStore(ctx, logger, cfg)
	if err != nil {
		logger.Error("failed to initialize description history store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	if embedSvc != nil {
		defer embedSvc.Close()
	}

	// The model handle is loaded once here and shared read-only by every
	// request.
	visionEngine, err := engine.NewOllamaEngine(ctx, logger, engine.OllamaConfig{
		BaseURL: cfg.Inference.BaseURL,
		Port:    cfg.Inference.Port,
		Model:   cfg.Inference.Model,
	})
	if err != nil {
		logger.Error("failed to initialize vision engine", "error", err)
		os.Exit(1)
	}
	limitedEngine := engine.Limited(visionEngine, cfg.Inference.MaxConcurrent, cfg.Inference.Timeout)

	orch := orchestrator.New(
		logger,
		desccache.New(cfg.Cache.Capacity),
		limitedEngine,
		extractor.NewSampler(logger),
		store,
		cfg.Video.FrameInterval,
	)

	srv := server.New(logger, orch, cfg.Server)
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

// buildStore wires the configured history backend. The postgres backend
// also brings up the embeddings service feeding its vector column.
func buildStore(ctx context.Context, logger *slog.Logger, cfg *config.Config) (storage.Store, *embeddings.Service, error) {
	switch cfg.Storage.Backend {
	case "postgres":
		embedSvc := embeddings.NewService(
			0,
			fmt.Sprintf("%s:%d", cfg.Inference.BaseURL, cfg.Inference.Port),
			cfg.Inference.EmbeddingModel,
		)
		pgCfg := storage.PostgresConfig{
			Host:         cfg.Storage.PostgresHost,
			Port:         cfg.Storage.PostgresPort,
			User:         cfg.Storage.PostgresUser,
			Password:     cfg.Storage.PostgresPassword,
			DBName:       cfg.Storage.PostgresDB,
			EmbeddingDim: cfg.Storage.EmbeddingDim,
		}
		if err := storage.InitSchema(ctx, pgCfg); err != nil {
			embedSvc.Close()
			return nil, nil, err
		}
		store, err := storage.NewPostgresStore(ctx, logger, pgCfg, embedSvc)
		if err != nil {
			embedSvc.Close()
			return nil, nil, err
		}
		return store, embedSvc, nil
	case "file":
		store, err := storage.NewFileStore(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return storage.NewNoop(), nil, nil
	}
}
