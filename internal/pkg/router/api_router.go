package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/JonasKellner/RenderForge/app/controllers"
	"github.com/JonasKellner/RenderForge/internal/pkg/middleware"
	"github.com/JonasKellner/RenderForge/internal/pkg/ratelimit"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes, all behind API key auth
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())

	v1.Get("/models", controllers.HandleListRenderModels)

	v1.Post("/render",
		ratelimit.Middleware("render_submit", ratelimit.TierStandard),
		controllers.HandleSubmitRender)
	v1.Get("/render", controllers.HandleListRenderJobs)
	v1.Get("/render/:uuid", controllers.HandleGetRenderJob)
	v1.Post("/render/:uuid/poll",
		ratelimit.Middleware("render_poll", ratelimit.TierStrict),
		controllers.HandlePollRenderJob)

	v1.Get("/user/credits", controllers.HandleGetUserCredits)

	// Admin surface
	admin := v1.Group("/admin", middleware.RequireAdmin)
	admin.Post("/reconcile", controllers.HandleAdminReconcile)
	admin.Post("/render/:uuid/reset", controllers.HandleAdminResetRenderJob)
	admin.Post("/ratelimit/reset", controllers.HandleAdminResetRateLimit)
	admin.Post("/credits/grant", controllers.HandleAdminGrantCredits)
	admin.Get("/queue/stats", controllers.HandleAdminQueueStats)
	admin.Get("/webhook-events", controllers.HandleAdminListWebhookEvents)
}
