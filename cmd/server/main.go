package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lllllllleong/gazetteflow/internal/api"
	"github.com/Lllllllleong/gazetteflow/internal/app"
)

const shutdownTimeout = 30 * time.Second

func main() {
	app.LoadDotEnv()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg.LogLevel)

	// Wiring
	container, err := app.NewContainer(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize services", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := container.Close(); err != nil {
			logger.Warn("Failed to close clients cleanly.", "error", err)
		}
	}()

	handlers := api.NewHandlers(container.Ingestor, container.Stats, container.Chat, cfg.MaxUploadBytes, logger)
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           api.NewRouter(handlers, cfg.CORSAllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Info("Shutting down server...", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("Server failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("Forced server shutdown.", "error", err)
	}
	logger.Info("Server exited")
}
