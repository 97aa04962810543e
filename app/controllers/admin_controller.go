package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/JonasKellner/RenderForge/app/repository"
	"github.com/JonasKellner/RenderForge/internal/pkg/database"
	"github.com/JonasKellner/RenderForge/internal/pkg/env"
	"github.com/JonasKellner/RenderForge/internal/pkg/jobqueue"
	"github.com/JonasKellner/RenderForge/internal/pkg/ratelimit"
	"github.com/JonasKellner/RenderForge/internal/pkg/renderjob"
)

// HandleAdminReconcile runs a stuck-job sweep immediately and reports which
// jobs were force-failed.
// Security: admin role required via router middleware.
func HandleAdminReconcile(c *fiber.Ctx) error {
	threshold := renderjob.DefaultStuckThreshold
	if raw := strings.TrimSpace(env.GetEnv("RENDER_STUCK_THRESHOLD_MINUTES", "")); raw != "" {
		if d, err := time.ParseDuration(raw + "m"); err == nil && d > 0 {
			threshold = d
		}
	}
	if minutes := c.QueryInt("threshold_minutes", 0); minutes > 0 {
		threshold = time.Duration(minutes) * time.Minute
	}

	reconciler := renderjob.NewReconciler(database.GetDB(), renderService(), threshold)
	result, err := reconciler.Sweep(c.Context())
	if err != nil {
		log.Errorf("[Admin] manual sweep: %v", err)
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "sweep failed")
	}

	return c.JSON(fiber.Map{
		"fixed":             result.Fixed,
		"count":             len(result.Fixed),
		"threshold_minutes": int(threshold.Minutes()),
	})
}

// HandleAdminResetRenderJob applies the operator-only failed -> pending
// transition, re-deducting the job's cost, then hands the job straight back
// to its provider so the retry actually renders.
// Security: admin role required via router middleware.
func HandleAdminResetRenderJob(c *fiber.Ctx) error {
	jobUUID := c.Params("uuid")
	if jobUUID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "uuid missing")
	}

	job, err := renderService().ResetForRetry(c.Context(), jobUUID)
	if err != nil {
		switch {
		case errors.Is(err, renderjob.ErrJobNotFound):
			return errorJSON(c, fiber.StatusNotFound, "NOT_FOUND", "render job not found")
		case errors.Is(err, renderjob.ErrInvalidTransition):
			return errorJSON(c, fiber.StatusConflict, "INVALID_TRANSITION", "only failed jobs can be reset for retry")
		default:
			log.Errorf("[Admin] reset job %s: %v", jobUUID, err)
			return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "reset failed")
		}
	}

	model, err := repository.GetGlobalFactory().GetRenderModelRepository().GetByID(job.RenderModelID)
	if err != nil {
		log.Errorf("[Admin] model lookup for reset job %s: %v", jobUUID, err)
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "render model lookup failed")
	}

	if err := submitToProvider(c, renderService(), job, model); err != nil {
		return errorJSON(c, fiber.StatusBadGateway, "PROVIDER_ERROR", err.Error())
	}

	return c.JSON(renderJobResponse(job))
}

// adminRateLimitResetRequest is the body for the rate limit reset endpoint.
type adminRateLimitResetRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Action     string `json:"action" validate:"required"`
}

// HandleAdminResetRateLimit clears the window and block for one
// identifier+action pair, e.g. after a support escalation.
// Security: admin role required via router middleware.
func HandleAdminResetRateLimit(c *fiber.Ctx) error {
	var req adminRateLimitResetRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
	}
	if err := validate.Struct(req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	}

	limiter := ratelimit.NewLimiter()
	if err := limiter.Reset(c.Context(), req.Identifier, req.Action); err != nil {
		log.Errorf("[Admin] rate limit reset %s/%s: %v", req.Action, req.Identifier, err)
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "rate limit reset failed")
	}

	log.Infof("[Admin] rate limit reset for %s/%s", req.Action, req.Identifier)
	return c.JSON(fiber.Map{"status": "ok"})
}

// adminGrantCreditsRequest is the body for the credit grant endpoint.
type adminGrantCreditsRequest struct {
	UserID uint    `json:"user_id" validate:"required"`
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Reason string  `json:"reason" validate:"required,min=3,max=255"`
}

// HandleAdminGrantCredits tops up a user's balance with a ledger entry.
// Security: admin role required via router middleware.
func HandleAdminGrantCredits(c *fiber.Ctx) error {
	var req adminGrantCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
	}
	if err := validate.Struct(req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	}

	if _, err := repository.GetGlobalFactory().GetUserRepository().GetByID(req.UserID); err != nil {
		return errorJSON(c, fiber.StatusNotFound, "NOT_FOUND", "user not found")
	}

	if err := creditService().Grant(c.Context(), req.UserID, req.Amount, req.Reason); err != nil {
		log.Errorf("[Admin] credit grant for user %d: %v", req.UserID, err)
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "credit grant failed")
	}

	balance, err := repository.GetGlobalFactory().GetCreditRepository().GetBalance(req.UserID)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "balance reload failed")
	}
	return c.JSON(fiber.Map{
		"user_id": req.UserID,
		"balance": balance.Balance,
	})
}

// HandleAdminQueueStats exposes background queue depth and job counters.
// Security: admin role required via router middleware.
func HandleAdminQueueStats(c *fiber.Ctx) error {
	queue := jobqueue.GetManager().GetQueue()

	stats, err := queue.GetJobStats(c.Context())
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "queue stats unavailable")
	}
	pending, err := queue.GetQueueSize(c.Context())
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "queue stats unavailable")
	}
	processing, err := queue.GetProcessingSize(c.Context())
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "queue stats unavailable")
	}

	counters := make(map[string]int64, len(stats))
	for status, count := range stats {
		counters[string(status)] = count
	}

	return c.JSON(fiber.Map{
		"pending":    pending,
		"processing": processing,
		"counters":   counters,
	})
}

// HandleAdminListWebhookEvents returns the most recent stored deliveries.
// Security: admin role required via router middleware.
func HandleAdminListWebhookEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	events, err := repository.GetGlobalFactory().GetWebhookEventRepository().ListRecent(limit)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "event listing failed")
	}

	items := make([]fiber.Map, 0, len(events))
	for _, e := range events {
		items = append(items, fiber.Map{
			"id":               e.ID,
			"provider":         e.Provider,
			"event_type":       e.EventType,
			"signature_valid":  e.SignatureValid,
			"processed_at":     formatTimePtr(e.ProcessedAt),
			"processing_error": e.ProcessingError,
			"created_at":       e.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(fiber.Map{"events": items})
}
