package renderjob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/JonasKellner/RenderForge/app/models"
	"github.com/JonasKellner/RenderForge/internal/pkg/credits"
)

// ErrInvalidTransition signals a transition whose status guard did not match,
// e.g. resetting a job that is not failed.
var ErrInvalidTransition = errors.New("render job is not in a state that allows this transition")

// Dispatcher enqueues the follow-up work a completed render triggers. The job
// queue implements it; tests substitute a recorder.
type Dispatcher interface {
	DispatchOutputArchive(job *models.RenderJob) error
	DispatchCompletionNotice(job *models.RenderJob) error
}

// Service drives the render job state machine. Transitions are applied as
// status-guarded updates, so a duplicate webhook or a race with the
// reconciler resolves to exactly one winner and the loser is a no-op.
type Service struct {
	db         *gorm.DB
	credits    *credits.Service
	dispatcher Dispatcher
}

// NewService wires the state machine to its collaborators.
func NewService(db *gorm.DB, creditSvc *credits.Service, dispatcher Dispatcher) *Service {
	return &Service{db: db, credits: creditSvc, dispatcher: dispatcher}
}

// Accept deducts the render cost and creates the job in pending state. The
// deduction happens first; every accepted job therefore has exactly one
// deduction that is later consumed (completed) or refunded (failed).
func (s *Service) Accept(ctx context.Context, userID uint, model *models.RenderModel, prompt string) (*models.RenderJob, error) {
	job := &models.RenderJob{
		UUID:          uuid.New().String(),
		UserID:        userID,
		RenderModelID: model.ID,
		Provider:      model.Provider,
		Status:        models.RenderJobStatusPending,
		Prompt:        prompt,
		Cost:          model.CostPerRender,
	}

	if _, err := s.credits.Deduct(ctx, userID, model.CostPerRender, nil, "render: "+model.Name); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		// The deduction already went through; hand the credits back so the
		// ledger invariant holds even when the job row cannot be written.
		if refundErr := s.credits.Refund(ctx, userID, model.CostPerRender, nil, "job creation failed"); refundErr != nil {
			log.Errorf("[RenderJob] refund after failed job create for user %d: %v", userID, refundErr)
		}
		return nil, fmt.Errorf("render job create failed: %w", err)
	}

	// Backfill the job reference on the deduction entry for operator queries.
	if err := s.db.WithContext(ctx).Model(&models.CreditTransaction{}).
		Where("user_id = ? AND entry_type = ? AND render_job_id IS NULL", userID, models.CreditEntryDeduct).
		Order("id DESC").Limit(1).
		Update("render_job_id", job.ID).Error; err != nil {
		log.Warnf("[RenderJob] could not link ledger entry to job %s: %v", job.UUID, err)
	}

	return job, nil
}

// MarkRendering records provider acceptance, storing the provider's ids as
// the correlation keys for later webhook matching.
func (s *Service) MarkRendering(ctx context.Context, jobID uint, providerRenderID, projectRef string) error {
	res := s.db.WithContext(ctx).Model(&models.RenderJob{}).
		Where("id = ? AND status = ?", jobID, models.RenderJobStatusPending).
		Updates(map[string]any{
			"status":               models.RenderJobStatusRendering,
			"provider_render_id":   strings.TrimSpace(providerRenderID),
			"provider_project_ref": strings.TrimSpace(projectRef),
		})
	if res.Error != nil {
		return fmt.Errorf("mark rendering failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// Complete applies the rendering -> completed transition. Returns true when
// this call won the transition; false means the job already left rendering
// (duplicate webhook, or the reconciler failed it first) and nothing was
// done. Credits are never refunded on completion.
func (s *Service) Complete(ctx context.Context, jobID uint, outputURL string) (bool, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.RenderJob{}).
		Where("id = ? AND status = ?", jobID, models.RenderJobStatusRendering).
		Updates(map[string]any{
			"status":       models.RenderJobStatusCompleted,
			"output_url":   strings.TrimSpace(outputURL),
			"completed_at": now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("complete transition failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	var job models.RenderJob
	if err := s.db.WithContext(ctx).First(&job, jobID).Error; err != nil {
		return true, fmt.Errorf("completed job reload failed: %w", err)
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.DispatchOutputArchive(&job); err != nil {
			log.Errorf("[RenderJob] archive dispatch for job %s: %v", job.UUID, err)
		}
		if err := s.dispatcher.DispatchCompletionNotice(&job); err != nil {
			log.Errorf("[RenderJob] notification dispatch for job %s: %v", job.UUID, err)
		}
	}

	return true, nil
}

// Fail applies the transition to failed from any active state and refunds
// the job's cost exactly once. The guarded update is the idempotency gate:
// only the caller whose update matched rows performs the refund. Transition
// and refund commit in one transaction; if the refund cannot be written the
// job stays active, so a redelivered failure retries the pair.
func (s *Service) Fail(ctx context.Context, jobID uint, reason string) (bool, error) {
	now := time.Now()
	var job models.RenderJob
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.RenderJob{}).
			Where("id = ? AND status IN ?", jobID,
				[]models.RenderJobStatus{models.RenderJobStatusPending, models.RenderJobStatusRendering}).
			Updates(map[string]any{
				"status":        models.RenderJobStatusFailed,
				"error_message": strings.TrimSpace(reason),
				"refunded":      true,
				"completed_at":  now,
			})
		if res.Error != nil {
			return fmt.Errorf("fail transition failed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		if err := tx.First(&job, jobID).Error; err != nil {
			return fmt.Errorf("failed job reload failed: %w", err)
		}
		if err := s.credits.RefundInTx(tx, job.UserID, job.Cost, &job.ID, "render failed: "+reason); err != nil {
			return fmt.Errorf("refund for failed job %s: %w", job.UUID, err)
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	log.Infof("[RenderJob] job %s failed (%s), refunded %.2f credits to user %d",
		job.UUID, reason, job.Cost, job.UserID)
	return true, nil
}

// ResetForRetry is the operator-only failed -> pending transition. The
// failure already refunded the cost, so the reset deducts it again to keep
// every pending job backed by exactly one open deduction.
func (s *Service) ResetForRetry(ctx context.Context, jobUUID string) (*models.RenderJob, error) {
	var job models.RenderJob
	if err := s.db.WithContext(ctx).Where("uuid = ?", jobUUID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("job lookup failed: %w", err)
	}
	if job.Status != models.RenderJobStatusFailed {
		return nil, ErrInvalidTransition
	}

	if _, err := s.credits.Deduct(ctx, job.UserID, job.Cost, &job.ID, "render retry: "+job.UUID); err != nil {
		return nil, err
	}

	res := s.db.WithContext(ctx).Model(&models.RenderJob{}).
		Where("id = ? AND status = ?", job.ID, models.RenderJobStatusFailed).
		Updates(map[string]any{
			"status":               models.RenderJobStatusPending,
			"error_message":        "",
			"refunded":             false,
			"provider_render_id":   "",
			"provider_project_ref": "",
			"output_url":           "",
			"completed_at":         nil,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("reset transition failed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Lost a race with another operator; give the deduction back.
		if refundErr := s.credits.Refund(ctx, job.UserID, job.Cost, &job.ID, "retry reset lost race"); refundErr != nil {
			log.Errorf("[RenderJob] refund after lost reset race for job %s: %v", job.UUID, refundErr)
		}
		return nil, ErrInvalidTransition
	}

	if err := s.db.WithContext(ctx).First(&job, job.ID).Error; err != nil {
		return nil, fmt.Errorf("reset job reload failed: %w", err)
	}
	return &job, nil
}

// HandleWebhook correlates a verified provider callback and applies the
// matching transition. Progress-only callbacks are acknowledged without a
// state change.
func (s *Service) HandleWebhook(ctx context.Context, provider string, payload *WebhookPayload) (*models.RenderJob, bool, error) {
	job, err := Correlate(ctx, s.db, provider, payload.CorrelationCandidates())
	if err != nil {
		return nil, false, err
	}

	switch payload.Outcome() {
	case OutcomeSuccess:
		applied, err := s.Complete(ctx, job.ID, payload.URL)
		return job, applied, err
	case OutcomeFailure:
		applied, err := s.Fail(ctx, job.ID, payload.ErrorReason())
		return job, applied, err
	default:
		return job, false, nil
	}
}

// GetByUUID loads a job scoped to its owning user.
func (s *Service) GetByUUID(ctx context.Context, userID uint, jobUUID string) (*models.RenderJob, error) {
	var job models.RenderJob
	err := s.db.WithContext(ctx).Where("uuid = ? AND user_id = ?", jobUUID, userID).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("job lookup failed: %w", err)
	}
	return &job, nil
}
