package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/gazetteflow/internal/gcp"
	"github.com/Lllllllleong/gazetteflow/internal/models"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Generator is a configured generative model. gcp.Model implements it.
type Generator interface {
	Generate(ctx context.Context, parts ...genai.Part) (string, error)
}

// ExtractionErrorKind classifies why a page produced no records.
type ExtractionErrorKind string

const (
	KindModelCall       ExtractionErrorKind = "model_call"
	KindMalformedOutput ExtractionErrorKind = "malformed_output"
	KindRefusal         ExtractionErrorKind = "refusal"
)

// ExtractionError reports a page whose extraction failed.
type ExtractionError struct {
	Page int
	Kind ExtractionErrorKind
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("page %d: %s: %v", e.Page, e.Kind, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

var refusalPhrases = []string{
	"i am unable to",
	"i'm unable to",
	"i cannot",
	"i can't",
	"as a large language model",
	"as an ai",
}

// ExtractorConfig tunes retries of throttled model calls.
type ExtractorConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
}

// Extractor turns one page of a staged gazette into student records.
type Extractor struct {
	model  Generator
	config ExtractorConfig
	logger *slog.Logger
}

func NewExtractor(model Generator, config ExtractorConfig, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = 2 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	return &Extractor{model: model, config: config, logger: logger}
}

// ExtractPage asks the model for the result rows on page (1-based) of ref. Rows come
// back in the order the model emitted them; an empty page yields an empty slice.
func (e *Extractor) ExtractPage(ctx context.Context, ref models.DocumentRef, page int) ([]models.StudentRecord, error) {
	logCtx := e.logger.With("documentUri", ref.URI, "page", page)

	filePart := genai.FileData{
		MIMEType: ref.MIMEType,
		FileURI:  ref.URI,
	}
	prompt := genai.Text(fmt.Sprintf(gcp.ExtractorUserPrompt, page))

	text, err := e.generate(ctx, logCtx, filePart, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ExtractionError{Page: page, Kind: KindModelCall, Err: err}
	}

	cleaned := trimFences(text)
	if !strings.HasPrefix(cleaned, "[") {
		if isRefusal(cleaned) {
			logCtx.Warn("Model refused to extract page.", "response", truncate(cleaned, 200))
			return nil, &ExtractionError{Page: page, Kind: KindRefusal, Err: errors.New("model response indicates refusal")}
		}
		return nil, &ExtractionError{Page: page, Kind: KindMalformedOutput, Err: fmt.Errorf("expected a JSON array, got %q", truncate(cleaned, 80))}
	}

	var rows []json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &rows); err != nil {
		return nil, &ExtractionError{Page: page, Kind: KindMalformedOutput, Err: fmt.Errorf("failed to parse model output: %w", err)}
	}

	records := make([]models.StudentRecord, 0, len(rows))
	for i, raw := range rows {
		rec, err := e.decodeRow(raw, logCtx)
		if err != nil {
			logCtx.Warn("Dropping extracted row.", "row", i, "error", err)
			continue
		}
		records = append(records, rec)
	}
	logCtx.Info("Page extracted.", "rows", len(rows), "records", len(records))
	return records, nil
}

func (e *Extractor) decodeRow(raw json.RawMessage, logger *slog.Logger) (models.StudentRecord, error) {
	var rec models.StudentRecord
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return rec, fmt.Errorf("row is not an object")
	}
	normalized, _ := normalizeRow(obj, logger)
	data, err := json.Marshal(normalized)
	if err != nil {
		return rec, fmt.Errorf("re-encode row: %w", err)
	}
	if err := validateJSON(recordSchema, data); err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decode row: %w", err)
	}
	if rec.SeatNo == "" && rec.Name == "" {
		return rec, fmt.Errorf("row has neither seat number nor name")
	}
	if rec.Subjects == nil {
		rec.Subjects = []models.SubjectScore{}
	}
	return rec, nil
}

// generate calls the model, retrying with doubling backoff while the provider reports
// throttling.
func (e *Extractor) generate(ctx context.Context, logger *slog.Logger, parts ...genai.Part) (string, error) {
	backoff := e.config.InitialBackoff
	for attempt := 0; ; attempt++ {
		text, err := e.model.Generate(ctx, parts...)
		if err == nil {
			return text, nil
		}
		if !isThrottled(err) || attempt >= e.config.MaxRetries {
			return "", err
		}
		logger.Warn("Model call throttled, will retry.",
			"attempt", attempt+1,
			"maxRetries", e.config.MaxRetries,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func isThrottled(err error) bool {
	switch status.Code(err) {
	case codes.ResourceExhausted, codes.Unavailable:
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code == http.StatusServiceUnavailable
	}
	return false
}

func isRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// trimFences strips the markdown code fences models like to wrap JSON in.
func trimFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```JSON")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
