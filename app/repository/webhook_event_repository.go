package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/JonasKellner/RenderForge/app/models"
)

// webhookEventRepository implements the WebhookEventRepository interface
type webhookEventRepository struct {
	db *gorm.DB
}

// NewWebhookEventRepository creates a new webhook event repository instance
func NewWebhookEventRepository(db *gorm.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

// Create stores a received webhook payload. The unique index on
// provider + provider event ID rejects duplicate deliveries.
func (r *webhookEventRepository) Create(event *models.WebhookEvent) error {
	return r.db.Create(event).Error
}

// GetByProviderEventID retrieves a stored event by its provider deduplication key
func (r *webhookEventRepository) GetByProviderEventID(provider, providerEventID string) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	err := r.db.Where("provider = ? AND provider_event_id = ?", provider, providerEventID).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// MarkProcessed records a successful processing timestamp
func (r *webhookEventRepository) MarkProcessed(id uint) error {
	now := time.Now()
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).
		Updates(map[string]any{"processed_at": now, "processing_error": ""}).Error
}

// MarkFailed records the processing error for later inspection
func (r *webhookEventRepository) MarkFailed(id uint, processingError string) error {
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).
		Updates(map[string]any{"processing_error": processingError}).Error
}

// ListRecent retrieves the most recently received events
func (r *webhookEventRepository) ListRecent(limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.Order("created_at DESC").Limit(limit).Find(&events).Error
	return events, err
}
