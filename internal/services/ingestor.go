package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Lllllllleong/gazetteflow/internal/models"
	"github.com/Lllllllleong/gazetteflow/internal/store"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const releaseTimeout = 30 * time.Second

// Stager makes a local document readable by the model and cleans it up afterwards.
type Stager interface {
	Stage(ctx context.Context, localPath string) (models.DocumentRef, error)
	Release(ctx context.Context, ref models.DocumentRef) error
}

// PageExtractor extracts the records on one page of a staged document.
type PageExtractor interface {
	ExtractPage(ctx context.Context, ref models.DocumentRef, page int) ([]models.StudentRecord, error)
}

type IngestorConfig struct {
	// PageLimit caps how many pages are sent to the model; <= 0 means no cap.
	PageLimit int
	// PageDelay is the minimum spacing between page requests.
	PageDelay time.Duration
	// TempDir is where uploads are spooled; empty means os.TempDir().
	TempDir string
}

// IngestResult describes one completed ingestion.
type IngestResult struct {
	IngestionID      string `json:"ingestion_id"`
	FileHash         string `json:"file_hash"`
	PageCount        int    `json:"page_count"`
	PagesProcessed   int    `json:"pages_processed"`
	PagesFailed      int    `json:"pages_failed"`
	RecordsProcessed int    `json:"records_processed"`
}

// Ingestor runs the upload pipeline: spool, count pages, stage, extract page by page
// and replace the store contents with everything extracted.
type Ingestor struct {
	store     store.Store
	stager    Stager
	extractor PageExtractor
	config    IngestorConfig
	limiter   *rate.Limiter
	logger    *slog.Logger

	// commitMu serializes ReplaceAll so two ingestions never interleave their commits.
	commitMu sync.Mutex
}

func NewIngestor(st store.Store, stager Stager, extractor PageExtractor, config IngestorConfig, logger *slog.Logger) (*Ingestor, error) {
	if st == nil || stager == nil || extractor == nil {
		return nil, fmt.Errorf("ingestor needs a store, a stager and an extractor")
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if config.PageDelay > 0 {
		limit = rate.Every(config.PageDelay)
	}
	return &Ingestor{
		store:     st,
		stager:    stager,
		extractor: extractor,
		config:    config,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}, nil
}

// Ingest processes one gazette. On success the store holds exactly the records
// extracted from it, unless nothing was extracted, in which case the store is left
// as it was.
func (in *Ingestor) Ingest(ctx context.Context, filename string, r io.Reader) (*IngestResult, error) {
	res := &IngestResult{IngestionID: uuid.NewString()}
	logCtx := in.logger.With("ingestionId", res.IngestionID, "filename", filename)
	logCtx.Info("Starting ingestion.")

	tempDir, err := os.MkdirTemp(in.config.TempDir, "gazette-ingest-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePath := filepath.Join(tempDir, "source.pdf")
	if err := spool(r, sourcePath); err != nil {
		logCtx.Error("Failed to spool upload", "error", err)
		return nil, err
	}

	fileHash, err := calculateFileHash(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate file hash: %w", err)
	}
	res.FileHash = fileHash
	logCtx = logCtx.With("fileHash", fileHash)

	res.PageCount = PageCountFile(sourcePath, logCtx)
	if res.PageCount == 0 {
		logCtx.Info("Document has no readable pages; store left unchanged.")
		return res, nil
	}

	ref, err := in.stager.Stage(ctx, sourcePath)
	if err != nil {
		logCtx.Error("Failed to stage document", "error", err)
		return nil, fmt.Errorf("failed to stage document: %w", err)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := in.stager.Release(releaseCtx, ref); err != nil {
			logCtx.Warn("Failed to release staged document.", "documentUri", ref.URI, "error", err)
		}
	}()
	logCtx = logCtx.With("documentUri", ref.URI)

	pages := res.PageCount
	if in.config.PageLimit > 0 && pages > in.config.PageLimit {
		pages = in.config.PageLimit
	}
	logCtx.Info("Extracting pages.", "pageCount", res.PageCount, "pagesToProcess", pages)

	var records []models.StudentRecord
	for page := 1; page <= pages; page++ {
		if err := in.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("ingestion cancelled before page %d: %w", page, err)
		}
		pageRecords, err := in.extractor.ExtractPage(ctx, ref, page)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("ingestion cancelled during page %d: %w", page, ctxErr)
			}
			var extractionErr *ExtractionError
			if errors.As(err, &extractionErr) {
				logCtx.Warn("Page extraction failed; continuing.", "page", page, "kind", extractionErr.Kind, "error", extractionErr.Err)
			} else {
				logCtx.Warn("Page extraction failed; continuing.", "page", page, "error", err)
			}
			res.PagesFailed++
			continue
		}
		res.PagesProcessed++
		records = append(records, pageRecords...)
	}

	if len(records) == 0 {
		logCtx.Info("No records extracted; store left unchanged.", "pagesFailed", res.PagesFailed)
		return res, nil
	}

	in.commitMu.Lock()
	err = in.store.ReplaceAll(ctx, records)
	in.commitMu.Unlock()
	if err != nil {
		logCtx.Error("Failed to replace stored records", "error", err)
		return nil, fmt.Errorf("failed to store records: %w", err)
	}
	res.RecordsProcessed = len(records)
	logCtx.Info("Ingestion complete.",
		"pagesProcessed", res.PagesProcessed,
		"pagesFailed", res.PagesFailed,
		"recordsProcessed", res.RecordsProcessed,
	)
	return res, nil
}

func spool(r io.Reader, destPath string) error {
	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	if _, err := io.Copy(localFile, r); err != nil {
		_ = localFile.Close()
		return fmt.Errorf("failed to spool upload: %w", err)
	}
	if err := localFile.Close(); err != nil {
		return fmt.Errorf("failed to finalize spooled upload: %w", err)
	}
	return nil
}
