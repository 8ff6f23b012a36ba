package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/gazetteflow/internal/api"
	"github.com/Lllllllleong/gazetteflow/internal/app"
)

var (
	handlers *api.Handlers
	once     sync.Once
	initErr  error
)

func init() {
	functions.HTTP("HandleUpload", withHandlers(func(h *api.Handlers) http.HandlerFunc { return h.Upload }))
	functions.HTTP("HandleStats", withHandlers(func(h *api.Handlers) http.HandlerFunc { return h.Stats }))
	functions.HTTP("HandleChat", withHandlers(func(h *api.Handlers) http.HandlerFunc { return h.Chat }))
}

// main is required by the Go Functions Framework.
func main() {}

func setup() {
	cfg, err := app.LoadConfig()
	if err != nil {
		initErr = err
		return
	}
	logger := app.NewLogger(cfg.LogLevel)
	container, err := app.NewContainer(context.Background(), cfg, logger)
	if err != nil {
		initErr = err
		return
	}
	handlers = api.NewHandlers(container.Ingestor, container.Stats, container.Chat, cfg.MaxUploadBytes, logger)
}

// withHandlers initializes the services once per instance and dispatches to the
// handler picked by pick.
func withHandlers(pick func(*api.Handlers) http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		once.Do(setup)
		if initErr != nil {
			slog.Error("Critical error during function initialization", "error", initErr)
			http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
			return
		}
		pick(handlers)(w, r)
	}
}
