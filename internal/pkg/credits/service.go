package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JonasKellner/RenderForge/app/models"
)

// Service is the single gatekeeper for credit balance mutations. Balances are
// only ever changed inside a transaction holding a FOR UPDATE row lock, never
// via read-then-write from request handlers.
type Service struct {
	db *gorm.DB
}

// NewService creates a credits service from a GORM DB handle.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// BalanceCheck is the read-only answer to "can this user afford cost".
type BalanceCheck struct {
	HasEnough bool    `json:"has_enough"`
	Available float64 `json:"available"`
	Required  float64 `json:"required"`
}

// CheckBalance reads the user's balance without mutating it. A missing
// balance row reads as zero credits.
func (s *Service) CheckBalance(ctx context.Context, userID uint, required float64) (BalanceCheck, error) {
	var balance models.CreditBalance
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return BalanceCheck{HasEnough: required <= 0, Available: 0, Required: required}, nil
		}
		return BalanceCheck{}, fmt.Errorf("balance lookup failed: %w", err)
	}

	return BalanceCheck{
		HasEnough: balance.Balance >= required,
		Available: balance.Balance,
		Required:  required,
	}, nil
}

// Deduct atomically removes cost credits from the user's balance and writes a
// ledger row. Under concurrent requests for the same user the row lock
// serializes the check-and-decrement, so the balance can never go negative.
// Returns the post-deduction balance.
func (s *Service) Deduct(ctx context.Context, userID uint, cost float64, jobID *uint, reason string) (float64, error) {
	if cost < 0 {
		return 0, fmt.Errorf("deduct amount must not be negative: %.2f", cost)
	}

	var remaining float64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var balance models.CreditBalance
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&balance).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &InsufficientCreditsError{Required: cost, Available: 0}
			}
			return fmt.Errorf("balance lock failed: %w", err)
		}

		if balance.Balance < cost {
			return &InsufficientCreditsError{Required: cost, Available: balance.Balance}
		}

		balance.Balance -= cost
		if err := tx.Model(&models.CreditBalance{}).
			Where("id = ?", balance.ID).
			Update("balance", balance.Balance).Error; err != nil {
			return fmt.Errorf("balance update failed: %w", err)
		}

		entry := models.CreditTransaction{
			UserID:       userID,
			RenderJobID:  jobID,
			EntryType:    models.CreditEntryDeduct,
			Amount:       -cost,
			BalanceAfter: balance.Balance,
			Reason:       strings.TrimSpace(reason),
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("ledger write failed: %w", err)
		}

		remaining = balance.Balance
		return nil
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// Refund atomically returns amount credits to the user. Idempotency is the
// caller's responsibility; the render job state machine guarantees at most
// one refund per failed job via its status guard.
func (s *Service) Refund(ctx context.Context, userID uint, amount float64, jobID *uint, reason string) error {
	if amount < 0 {
		return fmt.Errorf("refund amount must not be negative: %.2f", amount)
	}
	return s.credit(ctx, userID, amount, jobID, models.CreditEntryRefund, reason)
}

// RefundInTx applies a refund inside the caller's open transaction, so the
// balance update and ledger row commit or roll back together with the
// caller's own state change.
func (s *Service) RefundInTx(tx *gorm.DB, userID uint, amount float64, jobID *uint, reason string) error {
	if amount < 0 {
		return fmt.Errorf("refund amount must not be negative: %.2f", amount)
	}
	return creditInTx(tx, userID, amount, jobID, models.CreditEntryRefund, reason)
}

// Grant adds purchased or promotional credits and raises the lifetime total.
func (s *Service) Grant(ctx context.Context, userID uint, amount float64, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive: %.2f", amount)
	}
	return s.credit(ctx, userID, amount, nil, models.CreditEntryGrant, reason)
}

func (s *Service) credit(ctx context.Context, userID uint, amount float64, jobID *uint, entryType, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return creditInTx(tx, userID, amount, jobID, entryType, reason)
	})
}

func creditInTx(tx *gorm.DB, userID uint, amount float64, jobID *uint, entryType, reason string) error {
	var balance models.CreditBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			balance = models.CreditBalance{UserID: userID}
			if err := tx.Create(&balance).Error; err != nil {
				return fmt.Errorf("balance create failed: %w", err)
			}
		} else {
			return fmt.Errorf("balance lock failed: %w", err)
		}
	}

	balance.Balance += amount
	updates := map[string]any{"balance": balance.Balance}
	if entryType == models.CreditEntryGrant {
		balance.TotalCredits += amount
		updates["total_credits"] = balance.TotalCredits
	}
	if err := tx.Model(&models.CreditBalance{}).
		Where("id = ?", balance.ID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("balance update failed: %w", err)
	}

	entry := models.CreditTransaction{
		UserID:       userID,
		RenderJobID:  jobID,
		EntryType:    entryType,
		Amount:       amount,
		BalanceAfter: balance.Balance,
		Reason:       strings.TrimSpace(reason),
	}
	if err := tx.Create(&entry).Error; err != nil {
		return fmt.Errorf("ledger write failed: %w", err)
	}
	return nil
}
