// Package app loads configuration and wires the services together for every entry
// point (HTTP server, Cloud Functions, CLI).
package app

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/gazetteflow/internal/gcp"
	"github.com/joho/godotenv"
)

const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
)

// Config holds all runtime settings, read from the environment.
type Config struct {
	ServerPort string
	LogLevel   string

	ProjectID      string
	VertexAIRegion string
	GeminiModel    string
	StagingBucket  string

	StoreBackend        string
	SQLitePath          string
	FirestoreCollection string

	PageLimit       int
	PageDelay       time.Duration
	ModelMaxRetries int

	MaxUploadBytes     int64
	CORSAllowedOrigins []string
}

// LoadDotEnv loads variables from the given .env files (default ".env") without
// overriding ones already set. Missing files are ignored.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			slog.Warn("Could not load env file.", "file", f, "error", err)
		}
	}
}

// LoadConfig reads and validates the configuration from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		ServerPort:          gcp.GetEnv("PORT", gcp.GetEnv("SERVER_PORT", "8080")),
		LogLevel:            gcp.GetEnv("LOG_LEVEL", "info"),
		ProjectID:           gcp.GetEnv("PROJECT_ID", os.Getenv("GOOGLE_CLOUD_PROJECT")),
		VertexAIRegion:      gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		GeminiModel:         gcp.GetEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		StagingBucket:       gcp.GetEnv("STAGING_BUCKET", ""),
		StoreBackend:        strings.ToLower(gcp.GetEnv("STORE_BACKEND", BackendSQLite)),
		SQLitePath:          gcp.GetEnv("SQLITE_PATH", "results.db"),
		FirestoreCollection: gcp.GetEnv("FIRESTORE_COLLECTION", "results"),
		CORSAllowedOrigins:  splitList(gcp.GetEnv("CORS_ALLOWED_ORIGINS", "*")),
	}

	var err error
	if cfg.PageLimit, err = envInt("PAGE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.ModelMaxRetries, err = envInt("MODEL_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.PageDelay, err = envDuration("PAGE_DELAY", 2*time.Second); err != nil {
		return nil, err
	}
	maxUpload, err := envInt("MAX_UPLOAD_BYTES", 50*1024*1024)
	if err != nil {
		return nil, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)

	switch cfg.StoreBackend {
	case BackendMemory, BackendSQLite, BackendFirestore:
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be one of memory, sqlite, firestore; got %q", cfg.StoreBackend)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if cfg.ModelMaxRetries < 0 {
		return nil, fmt.Errorf("MODEL_MAX_RETRIES must not be negative")
	}
	if _, err := ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RequireCloud checks the settings needed to reach Vertex AI and Cloud Storage.
func (c *Config) RequireCloud() error {
	if c.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if c.StagingBucket == "" {
		return fmt.Errorf("STAGING_BUCKET environment variable must be set")
	}
	return nil
}

// ParseLevel maps LOG_LEVEL values onto slog levels.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}
	return l, nil
}

// NewLogger returns a JSON logger on stdout at the given level and installs it as the
// slog default.
func NewLogger(level string) *slog.Logger {
	l, err := ParseLevel(level)
	if err != nil {
		l = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: l}))
	slog.SetDefault(logger)
	return logger
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(gcp.GetEnv(key, ""))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

// envDuration accepts Go durations ("1500ms", "2s") and bare seconds ("2").
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(gcp.GetEnv(key, ""))
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
