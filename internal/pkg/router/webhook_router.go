package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/JonasKellner/RenderForge/app/controllers"
	"github.com/JonasKellner/RenderForge/internal/pkg/ratelimit"
)

// WebhookRouter wires the unauthenticated provider callback surface. The
// handlers authenticate via HMAC signatures, not API keys.
type WebhookRouter struct {
}

func NewWebhookRouter() *WebhookRouter {
	return &WebhookRouter{}
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	webhooks := app.Group("/webhooks")

	webhooks.Get("/render/:provider", controllers.HandleWebhookHealth)
	webhooks.Post("/render/:provider",
		ratelimit.Middleware("webhook_intake", ratelimit.TierWebhook),
		controllers.HandleRenderWebhook)
}
