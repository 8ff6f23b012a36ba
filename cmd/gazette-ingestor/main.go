package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/gazetteflow/internal/app"
	"github.com/Lllllllleong/gazetteflow/internal/gcp"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// storageObjectData is the part of a Cloud Storage object-finalized event we use.
type storageObjectData struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

var (
	container *app.Container
	once      sync.Once
	initErr   error
)

func init() {
	functions.CloudEvent("IngestGazette", ingestGazette)
}

// main is required by the Go Functions Framework.
func main() {}

func ingestGazette(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		cfg, err := app.LoadConfig()
		if err != nil {
			initErr = err
			return
		}
		container, initErr = app.NewContainer(context.Background(), cfg, app.NewLogger(cfg.LogLevel))
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var obj storageObjectData
	if err := json.Unmarshal(e.Data(), &obj); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	logCtx := container.Logger.With("eventId", e.ID(), "bucket", obj.Bucket, "object", obj.Name)

	if !strings.EqualFold(path.Ext(obj.Name), ".pdf") {
		logCtx.Info("Skipping non-PDF object.")
		return nil
	}
	// Our own staged copies land in the staging bucket too.
	if obj.Bucket == container.Config.StagingBucket && strings.HasPrefix(obj.Name, gcp.StagingPrefix+"/") {
		logCtx.Debug("Skipping staged copy.")
		return nil
	}

	rc, err := gcp.OpenObject(ctx, container.StorageClient, obj.Bucket, obj.Name)
	if err != nil {
		logCtx.Error("Failed to open source object", "error", err)
		return err
	}
	defer rc.Close()

	res, err := container.Ingestor.Ingest(ctx, path.Base(obj.Name), rc)
	if err != nil {
		return err
	}
	logCtx.Info("Gazette ingested.", "ingestionId", res.IngestionID, "recordsProcessed", res.RecordsProcessed)
	return nil
}
