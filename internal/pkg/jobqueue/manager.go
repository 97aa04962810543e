package jobqueue

import (
	"strconv"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/JonasKellner/RenderForge/app/models"
	"github.com/JonasKellner/RenderForge/internal/pkg/env"
)

// Manager manages the global job queue and background workers
type Manager struct {
	queue   *Queue
	mu      sync.Mutex
	running bool
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workerCount := 5
		if raw := env.GetEnv("JOBQUEUE_WORKERS", ""); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				workerCount = n
			}
		}

		globalManager = &Manager{
			queue: NewQueue(workerCount),
		}
	})
	return globalManager
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue workers
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true

	log.Info("[JobQueue Manager] Starting job queue")
	m.queue.Start()
}

// Stop stops the job queue workers
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false

	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped")
}

// DispatchOutputArchive enqueues the download-to-permanent-storage step for a
// completed render. Implements the render job service's Dispatcher.
func (m *Manager) DispatchOutputArchive(job *models.RenderJob) error {
	payload := OutputArchiveJobPayload{
		RenderJobID:   job.ID,
		RenderJobUUID: job.UUID,
		OutputURL:     job.OutputURL,
		Provider:      job.Provider,
	}
	_, err := m.queue.EnqueueJob(JobTypeOutputArchive, payload.ToMap())
	return err
}

// DispatchCompletionNotice enqueues the user notification for a finished
// render. Implements the render job service's Dispatcher.
func (m *Manager) DispatchCompletionNotice(job *models.RenderJob) error {
	kind := "render_complete"
	if job.Status == models.RenderJobStatusFailed {
		kind = "render_failed"
	}
	payload := NotifyUserJobPayload{
		RenderJobID:   job.ID,
		RenderJobUUID: job.UUID,
		UserID:        job.UserID,
		Kind:          kind,
		OutputURL:     job.OutputURL,
	}
	_, err := m.queue.EnqueueJob(JobTypeNotifyUser, payload.ToMap())
	return err
}
