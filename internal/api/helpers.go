package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/gazetteflow/internal/models"
)

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response body.", "error", err)
	}
}

// writeDetail writes an error response in the {"detail": "..."} shape the dashboard expects.
func writeDetail(w http.ResponseWriter, statusCode int, detail string) {
	writeJSON(w, statusCode, models.ErrorResponse{Detail: detail})
}
