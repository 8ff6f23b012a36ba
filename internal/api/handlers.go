// Package api exposes the upload, stats and chat operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/gazetteflow/internal/models"
	"github.com/Lllllllleong/gazetteflow/internal/services"
)

// ErrNoFile is reported when an upload carries no "file" part.
var ErrNoFile = errors.New("no file uploaded")

const uploadField = "file"

type Ingester interface {
	Ingest(ctx context.Context, filename string, r io.Reader) (*services.IngestResult, error)
}

type StatsProvider interface {
	Stats(ctx context.Context) (*models.Stats, error)
}

type Answerer interface {
	Answer(ctx context.Context, question string) string
}

// Handlers serves the dashboard endpoints.
type Handlers struct {
	ingester       Ingester
	stats          StatsProvider
	chat           Answerer
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewHandlers(ingester Ingester, stats StatsProvider, chat Answerer, maxUploadBytes int64, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		ingester:       ingester,
		stats:          stats,
		chat:           chat,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Upload handles POST /upload: a multipart form with the gazette PDF in "file".
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	}
	file, filename, err := h.formFile(r)
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeDetail(w, http.StatusBadRequest, fmt.Sprintf("file exceeds the %d byte upload limit", tooLarge.Limit))
			return
		}
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	defer file.Close()

	res, err := h.ingester.Ingest(r.Context(), filename, file)
	if err != nil {
		h.logger.Error("Upload failed.", "filename", filename, "error", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, models.UploadResponse{
		Status:           "success",
		RecordsProcessed: res.RecordsProcessed,
	})
}

func (h *Handlers) formFile(r *http.Request) (io.ReadCloser, string, error) {
	// Parts beyond 32MB spill to temp files; MaxBytesReader still bounds the total.
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, "", fmt.Errorf("invalid multipart form: %w", err)
	}
	headers := r.MultipartForm.File[uploadField]
	if len(headers) == 0 {
		return nil, "", ErrNoFile
	}
	f, err := headers[0].Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	return f, headers[0].Filename, nil
}

// Stats handles GET /stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute stats.", "error", err)
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Chat handles POST /chat. Answering never fails at the HTTP level; failures come
// back as the answer text.
func (h *Handlers) Chat(w http.ResponseWriter, r *http.Request) {
	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, models.ChatResponse{Answer: h.chat.Answer(r.Context(), req.Query)})
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": serviceName})
}
