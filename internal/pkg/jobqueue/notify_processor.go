package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/JonasKellner/RenderForge/app/models"
	"github.com/JonasKellner/RenderForge/internal/pkg/database"
	"github.com/JonasKellner/RenderForge/internal/pkg/mail"
)

// processNotifyUserJob records an in-app notification and optionally mails
// the user about a finished render.
func (q *Queue) processNotifyUserJob(ctx context.Context, job *Job) error {
	payload, err := NotifyUserJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid notify payload: %w", err)
	}

	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database unavailable")
	}

	var content string
	switch payload.Kind {
	case "render_failed":
		content = fmt.Sprintf("Your render %s failed. The credits have been returned to your balance.", payload.RenderJobUUID)
	default:
		payload.Kind = "render_complete"
		content = fmt.Sprintf("Your render %s is ready.", payload.RenderJobUUID)
	}

	if err := models.CreateNotification(db, payload.UserID, payload.Kind, content, payload.RenderJobID); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	var user models.User
	if err := db.WithContext(ctx).First(&user, payload.UserID).Error; err != nil {
		return fmt.Errorf("failed to load user %d: %w", payload.UserID, err)
	}

	settings, err := models.GetOrCreateUserSettings(db, payload.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user settings: %w", err)
	}
	if !settings.NotifyOnComplete {
		log.Debugf("[JobQueue] User %d opted out of render mails", payload.UserID)
		return nil
	}

	subject := "Your render is ready"
	body := fmt.Sprintf("<p>%s</p>", content)
	if payload.Kind == "render_complete" && payload.OutputURL != "" {
		body += fmt.Sprintf(`<p><a href="%s">Download your result</a></p>`, payload.OutputURL)
	}
	if payload.Kind == "render_failed" {
		subject = "Your render failed"
	}

	if err := mail.SendMail(user.Email, subject, body); err != nil {
		// Mail failures should not fail the job permanently; the in-app
		// notification already landed.
		log.Errorf("[JobQueue] Render mail to user %d failed: %v", payload.UserID, err)
	}

	return nil
}
