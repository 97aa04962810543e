package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/JonasKellner/RenderForge/app/repository"
	"github.com/JonasKellner/RenderForge/internal/pkg/cache"
	"github.com/JonasKellner/RenderForge/internal/pkg/credits"
	"github.com/JonasKellner/RenderForge/internal/pkg/database"
	"github.com/JonasKellner/RenderForge/internal/pkg/env"
	"github.com/JonasKellner/RenderForge/internal/pkg/jobqueue"
	"github.com/JonasKellner/RenderForge/internal/pkg/renderjob"
	"github.com/JonasKellner/RenderForge/internal/pkg/router"
)

func main() {
	app := NewApplication()

	// Reconciler sweeps run until shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db := database.GetDB()
	creditSvc := credits.NewService(db)
	renderSvc := renderjob.NewService(db, creditSvc, jobqueue.GetManager())
	reconciler := renderjob.NewReconciler(db, renderSvc, 0)
	go reconciler.Run(ctx, 0)

	go func() {
		<-ctx.Done()
		jobqueue.GetManager().Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())

	jobqueue.GetManager().Start()

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024,
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}
