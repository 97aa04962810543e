package jobqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/JonasKellner/RenderForge/app/models"
	"github.com/JonasKellner/RenderForge/internal/pkg/archive"
	"github.com/JonasKellner/RenderForge/internal/pkg/database"
)

var (
	archiveClient     *archive.Client
	archiveClientOnce sync.Once
	archiveClientErr  error
)

func getArchiveClient() (*archive.Client, error) {
	archiveClientOnce.Do(func() {
		cfg, err := archive.LoadConfig()
		if err != nil {
			archiveClientErr = err
			return
		}
		if !cfg.IsEnabled() {
			archiveClientErr = fmt.Errorf("S3 archiving is disabled")
			return
		}
		archiveClient, archiveClientErr = archive.NewClient(cfg)
	})
	return archiveClient, archiveClientErr
}

// processOutputArchiveJob copies a completed render's output from the
// provider CDN into permanent storage and records the object key on the job.
func (q *Queue) processOutputArchiveJob(ctx context.Context, job *Job) error {
	payload, err := OutputArchiveJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid output archive payload: %w", err)
	}
	if payload.OutputURL == "" {
		return fmt.Errorf("output archive job %s has no output URL", job.ID)
	}

	client, err := getArchiveClient()
	if err != nil {
		// Archiving not configured is not a job failure; the provider URL
		// stays on the job record.
		log.Warnf("[JobQueue] Skipping archive for render %s: %v", payload.RenderJobUUID, err)
		return nil
	}

	result, err := client.ArchiveOutput(ctx, payload.RenderJobUUID, payload.OutputURL)
	if err != nil {
		return fmt.Errorf("archive of render %s failed: %w", payload.RenderJobUUID, err)
	}

	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database unavailable")
	}
	if err := db.WithContext(ctx).Model(&models.RenderJob{}).
		Where("id = ?", payload.RenderJobID).
		Update("archive_key", result.ObjectKey).Error; err != nil {
		return fmt.Errorf("failed to store archive key for render %s: %w", payload.RenderJobUUID, err)
	}

	log.Infof("[JobQueue] Archived render %s to %s", payload.RenderJobUUID, result.ObjectKey)
	return nil
}
