package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/JonasKellner/RenderForge/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// RenderJobRepository defines the interface for render job database operations
type RenderJobRepository interface {
	Create(job *models.RenderJob) error
	GetByID(id uint) (*models.RenderJob, error)
	GetByUUID(uuid string) (*models.RenderJob, error)
	GetByUserID(userID uint, offset, limit int) ([]models.RenderJob, error)
	GetActiveOlderThan(cutoff time.Time) ([]models.RenderJob, error)
	Update(job *models.RenderJob) error
	List(offset, limit int) ([]models.RenderJob, error)
	Count() (int64, error)
	CountByStatus(status models.RenderJobStatus) (int64, error)
	CountByUserID(userID uint) (int64, error)
}

// RenderModelRepository defines the interface for render model catalog operations
type RenderModelRepository interface {
	Create(model *models.RenderModel) error
	GetByID(id uint) (*models.RenderModel, error)
	GetByRecordID(recordID string) (*models.RenderModel, error)
	GetActive() ([]models.RenderModel, error)
	GetByProvider(provider string) ([]models.RenderModel, error)
	Update(model *models.RenderModel) error
}

// WebhookEventRepository defines the interface for webhook event persistence
type WebhookEventRepository interface {
	Create(event *models.WebhookEvent) error
	GetByProviderEventID(provider, providerEventID string) (*models.WebhookEvent, error)
	MarkProcessed(id uint) error
	MarkFailed(id uint, processingError string) error
	ListRecent(limit int) ([]models.WebhookEvent, error)
}

// CreditRepository defines the interface for credit balance and ledger reads.
// Writes go through the credits service so balance updates and ledger rows
// stay in one transaction.
type CreditRepository interface {
	GetBalance(userID uint) (*models.CreditBalance, error)
	GetTransactions(userID uint, offset, limit int) ([]models.CreditTransaction, error)
	CountTransactions(userID uint) (int64, error)
}

// QueueRepository defines the interface for cache/queue operations
type QueueRepository interface {
	GetAllKeys() ([]string, error)
	GetValue(key string) (string, error)
	GetTTL(key string) (time.Duration, error)
	DeleteKey(key string) (int64, error)
	GetListLength(key string) (int64, error)
	FindKeysByPatterns(patterns []string) ([]string, error)
	DeleteKeys(keys []string) (int64, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	RenderJob    RenderJobRepository
	RenderModel  RenderModelRepository
	WebhookEvent WebhookEventRepository
	Credit       CreditRepository
	Queue        QueueRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		RenderJob:    NewRenderJobRepository(db),
		RenderModel:  NewRenderModelRepository(db),
		WebhookEvent: NewWebhookEventRepository(db),
		Credit:       NewCreditRepository(db),
		Queue:        NewQueueRepository(),
	}
}
