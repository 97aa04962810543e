package controllers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/JonasKellner/RenderForge/app/models"
	"github.com/JonasKellner/RenderForge/app/repository"
	"github.com/JonasKellner/RenderForge/internal/pkg/env"
	"github.com/JonasKellner/RenderForge/internal/pkg/renderjob"
	"github.com/JonasKellner/RenderForge/internal/pkg/webhooksig"
)

const webhookServiceName = "renderforge-webhooks"

// HandleWebhookHealth answers provider endpoint-verification probes.
func HandleWebhookHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "OK",
		"service":   webhookServiceName,
		"provider":  c.Params("provider"),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleRenderWebhook is the provider callback intake: verify the HMAC
// signature over the raw body, store the event, correlate it to a job and
// apply the reported outcome.
func HandleRenderWebhook(c *fiber.Ctx) error {
	providerName := strings.ToLower(strings.TrimSpace(c.Params("provider")))
	if providerName == "" {
		return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "provider missing")
	}

	// The raw bytes are what the provider signed; verification must see them
	// before any parsing.
	rawBody := c.Body()

	signature := webhookSignatureHeader(c, providerName)
	if signature == "" {
		log.Warnf("[Webhook] %s delivery without signature from %s", providerName, GetClientIP(c))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "signature required",
			"code":  "SIGNATURE_REQUIRED",
		})
	}

	valid, err := webhooksig.Validate(rawBody, signature, webhookSecret(providerName))
	if err != nil {
		// Missing secret configuration rejects everything; this is a
		// deployment fault, not a provider fault.
		log.Errorf("[Webhook] %s signature verification unavailable: %v", providerName, err)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "signature verification unavailable",
			"code":  "SIGNATURE_UNAVAILABLE",
		})
	}
	if !valid {
		log.Warnf("[Webhook] %s invalid signature from %s", providerName, GetClientIP(c))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "invalid signature",
			"code":  "SIGNATURE_INVALID",
		})
	}

	payload, err := renderjob.ParseWebhookPayload(rawBody)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "BAD_REQUEST", "malformed webhook payload")
	}

	event := storeWebhookEvent(providerName, payload, rawBody)

	job, applied, err := renderService().HandleWebhook(c.Context(), providerName, payload)
	if err != nil {
		if errors.Is(err, renderjob.ErrJobNotFound) {
			markWebhookEventFailed(event, "no matching render job")
			return errorJSON(c, fiber.StatusNotFound, "JOB_NOT_FOUND", "no render job matches this callback")
		}
		log.Errorf("[Webhook] %s processing failed: %v", providerName, err)
		markWebhookEventFailed(event, err.Error())
		return errorJSON(c, fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "webhook processing failed")
	}

	markWebhookEventProcessed(event)

	return c.JSON(fiber.Map{
		"status":  "ok",
		"job":     job.UUID,
		"applied": applied,
	})
}

// webhookSignatureHeader reads the provider-specific signature header with a
// generic fallback, e.g. X-Kie-Ai-Signature or X-Webhook-Signature.
func webhookSignatureHeader(c *fiber.Ctx, providerName string) string {
	parts := strings.Split(providerName, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	headerName := "X-" + strings.Join(parts, "-") + "-Signature"

	if sig := strings.TrimSpace(c.Get(headerName)); sig != "" {
		return sig
	}
	return strings.TrimSpace(c.Get("X-Webhook-Signature"))
}

// webhookSecret resolves the per-provider shared secret, falling back to the
// service-wide one.
func webhookSecret(providerName string) string {
	perProvider := "WEBHOOK_SECRET_" + strings.ToUpper(providerName)
	if secret := strings.TrimSpace(env.GetEnv(perProvider, "")); secret != "" {
		return secret
	}
	return strings.TrimSpace(env.GetEnv("RENDER_WEBHOOK_SECRET", ""))
}

// storeWebhookEvent persists the delivery for dedup and operator inspection.
// Storage failure is logged, not fatal: processing the callback matters more
// than archiving it.
func storeWebhookEvent(providerName string, payload *renderjob.WebhookPayload, rawBody []byte) *models.WebhookEvent {
	eventID := payload.RenderID
	if eventID == "" {
		eventID = payload.Project
	}
	if eventID == "" {
		eventID = payload.ID
	}

	event := &models.WebhookEvent{
		Provider:        providerName,
		ProviderEventID: eventID + ":" + payload.Status,
		EventType:       "render." + payload.Status,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	}

	repo := repository.GetGlobalFactory().GetWebhookEventRepository()
	if err := repo.Create(event); err != nil {
		log.Warnf("[Webhook] could not store %s event: %v", providerName, err)
		return nil
	}
	return event
}

func markWebhookEventProcessed(event *models.WebhookEvent) {
	if event == nil {
		return
	}
	repo := repository.GetGlobalFactory().GetWebhookEventRepository()
	if err := repo.MarkProcessed(event.ID); err != nil {
		log.Warnf("[Webhook] could not mark event %d processed: %v", event.ID, err)
	}
}

func markWebhookEventFailed(event *models.WebhookEvent, reason string) {
	if event == nil {
		return
	}
	repo := repository.GetGlobalFactory().GetWebhookEventRepository()
	if err := repo.MarkFailed(event.ID, reason); err != nil {
		log.Warnf("[Webhook] could not mark event %d failed: %v", event.ID, err)
	}
}
