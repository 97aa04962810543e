package repository

import (
	"errors"

	"gorm.io/gorm"

	"github.com/JonasKellner/RenderForge/app/models"
)

// creditRepository implements the CreditRepository interface
type creditRepository struct {
	db *gorm.DB
}

// NewCreditRepository creates a new credit repository instance
func NewCreditRepository(db *gorm.DB) CreditRepository {
	return &creditRepository{db: db}
}

// GetBalance retrieves a user's credit balance. A user without a balance row
// has never received credits and reads as zero.
func (r *creditRepository) GetBalance(userID uint) (*models.CreditBalance, error) {
	var balance models.CreditBalance
	err := r.db.Where("user_id = ?", userID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.CreditBalance{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// GetTransactions retrieves a paginated slice of a user's ledger, newest first
func (r *creditRepository) GetTransactions(userID uint, offset, limit int) ([]models.CreditTransaction, error) {
	var transactions []models.CreditTransaction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&transactions).Error
	return transactions, err
}

// CountTransactions returns the total number of ledger entries for a user
func (r *creditRepository) CountTransactions(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.CreditTransaction{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
