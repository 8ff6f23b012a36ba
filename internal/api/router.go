package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

const serviceName = "gazette-results"

// NewRouter creates the HTTP router with all routes and CORS configured. An empty
// origin list allows every origin.
func NewRouter(h *Handlers, allowedOrigins []string) http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/upload", h.Upload).Methods(http.MethodPost)
	router.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
	router.HandleFunc("/chat", h.Chat).Methods(http.MethodPost)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"*"},
		// Credentials cannot be combined with a wildcard origin.
		AllowCredentials: !containsWildcard(allowedOrigins),
		MaxAge:           300,
	})

	return c.Handler(router)
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
