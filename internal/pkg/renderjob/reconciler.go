package renderjob

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/JonasKellner/RenderForge/app/models"
)

// DefaultStuckThreshold is how long a job may sit in pending/rendering before
// the sweep force-fails it.
const DefaultStuckThreshold = 30 * time.Minute

const stuckReason = "render timed out: no terminating provider callback received"

// SweepResult lists the jobs a sweep force-failed.
type SweepResult struct {
	Fixed []string `json:"fixed"`
}

// Reconciler is the safety net for jobs whose terminating webhook never
// arrives. It is safe to run concurrently with webhook delivery: the state
// machine's guarded transitions decide the winner, the loser is a no-op.
type Reconciler struct {
	db        *gorm.DB
	svc       *Service
	threshold time.Duration
}

// NewReconciler creates a reconciler with the given stuck threshold;
// a non-positive threshold selects the default.
func NewReconciler(db *gorm.DB, svc *Service, threshold time.Duration) *Reconciler {
	if threshold <= 0 {
		threshold = DefaultStuckThreshold
	}
	return &Reconciler{db: db, svc: svc, threshold: threshold}
}

// Sweep force-fails and refunds every active job whose last state change is
// older than the threshold. Scanning on updated_at gives a reset or
// resubmitted job its full threshold again.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	cutoff := time.Now().Add(-r.threshold)

	var stuck []models.RenderJob
	err := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]models.RenderJobStatus{models.RenderJobStatusPending, models.RenderJobStatusRendering},
			cutoff).
		Find(&stuck).Error
	if err != nil {
		return SweepResult{}, fmt.Errorf("stuck job scan failed: %w", err)
	}

	result := SweepResult{Fixed: make([]string, 0, len(stuck))}
	for i := range stuck {
		job := &stuck[i]
		applied, err := r.svc.Fail(ctx, job.ID, stuckReason)
		if err != nil {
			log.Errorf("[Reconciler] failing stuck job %s: %v", job.UUID, err)
			continue
		}
		if !applied {
			// A webhook beat us to a terminal state between scan and update.
			continue
		}
		result.Fixed = append(result.Fixed, job.UUID)
	}

	if len(result.Fixed) > 0 {
		log.Warnf("[Reconciler] force-failed %d stuck job(s) older than %s", len(result.Fixed), r.threshold)
	}
	return result, nil
}

// Run sweeps on a fixed interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	log.Infof("[Reconciler] running (threshold=%s, interval=%s)", r.threshold, interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("[Reconciler] stopping")
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				log.Errorf("[Reconciler] sweep error: %v", err)
			}
		}
	}
}
