package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"time"

	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/gazetteflow/internal/models"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// StagingPrefix is the object prefix staged gazettes are written under.
const StagingPrefix = "staging"

const (
	stageMaxRetries   = 4
	stageWriteTimeout = 50 * time.Second
)

// GCSStager stages uploaded gazettes in a Cloud Storage bucket so the model can read
// them by URI, and removes them once ingestion is done.
type GCSStager struct {
	client *storage.Client
	bucket string
	prefix string
	// backoff is the first retry delay; it doubles on every attempt.
	backoff time.Duration
}

// NewGCSStager returns a stager writing under gs://bucket/staging/.
func NewGCSStager(client *storage.Client, bucket string) (*GCSStager, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client must be provided")
	}
	if bucket == "" {
		return nil, fmt.Errorf("staging bucket must be provided")
	}
	return &GCSStager{client: client, bucket: bucket, prefix: StagingPrefix, backoff: time.Second}, nil
}

// Stage uploads the local PDF under a fresh object name and returns its gs:// reference.
func (s *GCSStager) Stage(ctx context.Context, localPath string) (models.DocumentRef, error) {
	object := path.Join(s.prefix, uuid.NewString()+".pdf")
	if err := s.uploadFile(ctx, localPath, object); err != nil {
		return models.DocumentRef{}, err
	}
	return models.DocumentRef{
		URI:      fmt.Sprintf("gs://%s/%s", s.bucket, object),
		MIMEType: "application/pdf",
		Object:   object,
	}, nil
}

// Release deletes a staged object. An object that is already gone is not an error.
func (s *GCSStager) Release(ctx context.Context, ref models.DocumentRef) error {
	if ref.Object == "" {
		return nil
	}
	err := s.client.Bucket(s.bucket).Object(ref.Object).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("failed to delete staged object %s: %w", ref.URI, err)
}

func (s *GCSStager) uploadFile(ctx context.Context, localPath, destObject string) error {
	backoff := s.backoff
	var lastErr error

	for i := 0; i < stageMaxRetries; i++ {
		err := func() error {
			localFileReader, err := os.Open(localPath)
			if err != nil {
				return fmt.Errorf("could not open local file %s: %w", localPath, err)
			}
			defer localFileReader.Close()

			writeCtx, cancel := context.WithTimeout(ctx, stageWriteTimeout)
			defer cancel()

			gcsWriter := s.client.Bucket(s.bucket).Object(destObject).If(storage.Conditions{DoesNotExist: true}).NewWriter(writeCtx)
			gcsWriter.ContentType = "application/pdf"

			if _, err := io.Copy(gcsWriter, localFileReader); err != nil {
				_ = gcsWriter.Close()
				return fmt.Errorf("io.Copy to GCS failed: %w", err)
			}
			if err := gcsWriter.Close(); err != nil {
				var gerr *googleapi.Error
				if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
					// An earlier attempt finished after reporting an error.
					return nil
				}
				return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
			}
			return nil
		}()
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn("Staging upload failed, will retry.",
			"gcsObject", destObject,
			"attempt", i+1,
			"maxRetries", stageMaxRetries,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("staging upload for %s failed after all retries: %w", destObject, lastErr)
}

// OpenObject opens gs://bucket/object for reading. The caller closes the reader.
func OpenObject(ctx context.Context, client *storage.Client, bucket, object string) (io.ReadCloser, error) {
	r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	return r, nil
}
