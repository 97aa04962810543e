package controllers

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/go-playground/validator/v10"

	"github.com/JonasKellner/RenderForge/app/models"
	"github.com/JonasKellner/RenderForge/app/repository"
	"github.com/JonasKellner/RenderForge/internal/pkg/credits"
	"github.com/JonasKellner/RenderForge/internal/pkg/database"
	"github.com/JonasKellner/RenderForge/internal/pkg/env"
	"github.com/JonasKellner/RenderForge/internal/pkg/jobqueue"
	"github.com/JonasKellner/RenderForge/internal/pkg/provider"
	"github.com/JonasKellner/RenderForge/internal/pkg/renderjob"
	"github.com/JonasKellner/RenderForge/internal/pkg/usercontext"
)

var (
	renderSvcOnce sync.Once
	renderSvc     *renderjob.Service
	creditSvc     *credits.Service

	validate = validator.New()
)

// renderService lazily wires the state machine to the database, the credit
// ledger and the job queue dispatcher.
func renderService() *renderjob.Service {
	renderSvcOnce.Do(func() {
		db := database.GetDB()
		creditSvc = credits.NewService(db)
		renderSvc = renderjob.NewService(db, creditSvc, jobqueue.GetManager())
	})
	return renderSvc
}

func creditService() *credits.Service {
	renderService()
	return creditSvc
}

// SubmitRenderRequest is the body for POST /api/v1/render.
type SubmitRenderRequest struct {
	ModelRecordID string `json:"model_record_id" validate:"required,uuid4"`
	Prompt        string `json:"prompt" validate:"required,min=1,max=10000"`
}

// HandleSubmitRender accepts a render submission: resolves the model, deducts
// the cost, creates the job and hands it to the provider.
// Security: API Key required via router middleware; rate limited.
func HandleSubmitRender(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return errorJSON(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication")
	}

	var req SubmitRenderRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "invalid JSON body")
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if err := validate.Struct(req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	}

	modelRepo := repository.GetGlobalFactory().GetRenderModelRepository()
	model, err := modelRepo.GetByRecordID(req.ModelRecordID)
	if err != nil || model == nil {
		return errorJSON(c, fiber.StatusNotFound, "MODEL_NOT_FOUND", "render model not found")
	}
	if !model.Active {
		return errorJSON(c, fiber.StatusUnprocessableEntity, "MODEL_INACTIVE", "render model is not accepting submissions")
	}

	svc := renderService()
	job, err := svc.Accept(c.Context(), user.UserID, model, req.Prompt)
	if err != nil {
		var insufficient *credits.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
				"error":     "insufficient_tokens",
				"type":      "INSUFFICIENT_TOKENS",
				"required":  insufficient.Required,
				"available": insufficient.Available,
				"message":   insufficient.Error(),
			})
		}
		log.Errorf("[API] render accept for user %d: %v", user.UserID, err)
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "could not accept render job")
	}

	if err := submitToProvider(c, svc, job, model); err != nil {
		// The job is failed and refunded; tell the caller why the provider
		// rejected us.
		return errorJSON(c, fiber.StatusBadGateway, "PROVIDER_ERROR", err.Error())
	}

	return c.Status(fiber.StatusAccepted).JSON(renderJobResponse(job))
}

// submitToProvider hands an accepted job to its provider and records the
// returned correlation ids. A submission failure force-fails the job, which
// refunds the deduction.
func submitToProvider(c *fiber.Ctx, svc *renderjob.Service, job *models.RenderJob, model *models.RenderModel) error {
	apiKey, err := provider.ResolveAPIKey(model)
	if err != nil {
		log.Errorf("[API] api key resolution for model %s: %v", model.RecordID, err)
		failSubmission(c, svc, job, "provider credential unavailable")
		return errors.New("render provider is not configured for this model")
	}

	client, err := provider.NewClient(model.Provider)
	if err != nil {
		failSubmission(c, svc, job, "unknown provider")
		return err
	}

	resp, err := client.Submit(c.Context(), apiKey, provider.SubmitRequest{
		Model:       model.Name,
		ContentType: model.ContentType,
		Prompt:      job.Prompt,
		CallbackURL: webhookCallbackURL(model.Provider),
		Reference:   job.UUID,
	})
	if err != nil {
		log.Errorf("[API] provider submit for job %s: %v", job.UUID, err)
		failSubmission(c, svc, job, "provider submission failed")
		return errors.New("render provider rejected the submission")
	}

	if err := svc.MarkRendering(c.Context(), job.ID, resp.RenderID, resp.ProjectRef); err != nil {
		log.Errorf("[API] mark rendering for job %s: %v", job.UUID, err)
		return nil
	}
	job.Status = models.RenderJobStatusRendering
	job.ProviderRenderID = resp.RenderID
	job.ProviderProjectRef = resp.ProjectRef
	return nil
}

func failSubmission(c *fiber.Ctx, svc *renderjob.Service, job *models.RenderJob, reason string) {
	if _, err := svc.Fail(c.Context(), job.ID, reason); err != nil {
		log.Errorf("[API] failing job %s after submit error: %v", job.UUID, err)
	}
	job.Status = models.RenderJobStatusFailed
	job.ErrorMessage = reason
}

func webhookCallbackURL(providerName string) string {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	if base == "" {
		return ""
	}
	return base + "/webhooks/render/" + providerName
}

// HandleGetRenderJob returns one of the caller's render jobs by UUID.
// Security: API Key required via router middleware.
func HandleGetRenderJob(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return errorJSON(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication")
	}

	jobUUID := c.Params("uuid")
	if jobUUID == "" {
		return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "uuid missing")
	}

	job, err := renderService().GetByUUID(c.Context(), user.UserID, jobUUID)
	if err != nil {
		if errors.Is(err, renderjob.ErrJobNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "NOT_FOUND", "render job not found")
		}
		log.Errorf("[API] job lookup %s: %v", jobUUID, err)
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "job lookup failed")
	}

	return c.JSON(renderJobResponse(job))
}

// HandlePollRenderJob polls the provider once for an active job and applies
// the outcome. This is the manual fallback for a missed webhook.
// Security: API Key required via router middleware; rate limited.
func HandlePollRenderJob(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return errorJSON(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication")
	}

	jobUUID := c.Params("uuid")
	svc := renderService()
	job, err := svc.GetByUUID(c.Context(), user.UserID, jobUUID)
	if err != nil {
		if errors.Is(err, renderjob.ErrJobNotFound) {
			return errorJSON(c, fiber.StatusNotFound, "NOT_FOUND", "render job not found")
		}
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "job lookup failed")
	}

	if job.IsTerminal() {
		return c.JSON(renderJobResponse(job))
	}
	if job.ProviderRenderID == "" {
		return errorJSON(c, fiber.StatusConflict, "NOT_SUBMITTED", "job has no provider render id to poll")
	}

	modelRepo := repository.GetGlobalFactory().GetRenderModelRepository()
	model, err := modelRepo.GetByID(job.RenderModelID)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "model lookup failed")
	}

	apiKey, err := provider.ResolveAPIKey(model)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "provider credential unavailable")
	}
	client, err := provider.NewClient(job.Provider)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "unknown provider")
	}

	status, err := client.GetStatus(c.Context(), apiKey, job.ProviderRenderID)
	if err != nil {
		log.Warnf("[API] poll for job %s: %v", job.UUID, err)
		return errorJSON(c, fiber.StatusBadGateway, "PROVIDER_ERROR", "provider status poll failed")
	}

	if provider.IsTerminalStatus(status.Status) {
		success := status.Error == "" && status.URL != ""
		switch strings.ToLower(strings.TrimSpace(status.Status)) {
		case "failed", "error":
			success = false
		}
		if success {
			if _, err := svc.Complete(c.Context(), job.ID, status.URL); err != nil {
				log.Errorf("[API] poll complete for job %s: %v", job.UUID, err)
			}
		} else {
			reason := status.Error
			if reason == "" {
				reason = "provider reported " + status.Status
			}
			if _, err := svc.Fail(c.Context(), job.ID, reason); err != nil {
				log.Errorf("[API] poll fail for job %s: %v", job.UUID, err)
			}
		}
		job, err = svc.GetByUUID(c.Context(), user.UserID, jobUUID)
		if err != nil {
			return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "job reload failed")
		}
	}

	resp := renderJobResponse(job)
	resp["provider_status"] = status.Status
	if status.Progress > 0 {
		resp["provider_progress"] = status.Progress
	}
	return c.JSON(resp)
}

// HandleListRenderJobs returns the caller's jobs, newest first.
// Security: API Key required via router middleware.
func HandleListRenderJobs(c *fiber.Ctx) error {
	user := usercontext.GetUserContext(c)
	if !user.IsLoggedIn {
		return errorJSON(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication")
	}

	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	limit := c.QueryInt("limit", 25)
	if limit < 1 || limit > 100 {
		limit = 25
	}

	jobRepo := repository.GetGlobalFactory().GetRenderJobRepository()
	jobs, err := jobRepo.GetByUserID(user.UserID, (page-1)*limit, limit)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "job listing failed")
	}
	total, err := jobRepo.CountByUserID(user.UserID)
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "job listing failed")
	}

	items := make([]fiber.Map, 0, len(jobs))
	for i := range jobs {
		items = append(items, renderJobResponse(&jobs[i]))
	}
	return c.JSON(fiber.Map{
		"jobs":  items,
		"page":  page,
		"limit": limit,
		"total": total,
	})
}

// HandleListRenderModels returns catalog entries currently open for
// submissions.
// Security: API Key required via router middleware.
func HandleListRenderModels(c *fiber.Ctx) error {
	modelRepo := repository.GetGlobalFactory().GetRenderModelRepository()
	catalog, err := modelRepo.GetActive()
	if err != nil {
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "model listing failed")
	}

	items := make([]fiber.Map, 0, len(catalog))
	for _, m := range catalog {
		items = append(items, fiber.Map{
			"record_id":       m.RecordID,
			"name":            m.Name,
			"provider":        m.Provider,
			"content_type":    m.ContentType,
			"cost_per_render": m.CostPerRender,
		})
	}
	return c.JSON(fiber.Map{"models": items})
}

func renderJobResponse(job *models.RenderJob) fiber.Map {
	resp := fiber.Map{
		"uuid":         job.UUID,
		"status":       string(job.Status),
		"provider":     job.Provider,
		"cost":         job.Cost,
		"refunded":     job.Refunded,
		"created_at":   job.CreatedAt.UTC().Format(time.RFC3339),
		"completed_at": formatTimePtr(job.CompletedAt),
	}
	if job.OutputURL != "" {
		resp["output_url"] = job.OutputURL
	}
	if job.ArchiveKey != "" {
		resp["archive_key"] = job.ArchiveKey
	}
	if job.ErrorMessage != "" {
		resp["error_message"] = job.ErrorMessage
	}
	return resp
}
