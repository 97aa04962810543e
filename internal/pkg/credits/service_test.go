package credits

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JonasKellner/RenderForge/app/models"
	"github.com/JonasKellner/RenderForge/internal/pkg/env"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=2s",
		env.GetEnv("DB_USER", "renderforge"),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", "renderforge_db"),
	)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Skipf("Skipping MySQL-dependent test: no reachable MySQL endpoint (%v)", err)
	}

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.CreditBalance{},
		&models.CreditTransaction{},
	))
	return db
}

func seedBalance(t *testing.T, db *gorm.DB, balance float64) uint {
	t.Helper()

	user := &models.User{
		Name:     "ledger-test",
		Email:    uuid.New().String() + "@test.local",
		Password: "irrelevant",
	}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&models.CreditBalance{
		UserID:       user.ID,
		Balance:      balance,
		TotalCredits: balance,
	}).Error)
	return user.ID
}

func currentBalance(t *testing.T, db *gorm.DB, userID uint) float64 {
	t.Helper()

	var balance models.CreditBalance
	require.NoError(t, db.Where("user_id = ?", userID).First(&balance).Error)
	return balance.Balance
}

func TestDeductInsufficientCarriesAmounts(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	userID := seedBalance(t, db, 3.25)

	_, err := svc.Deduct(context.Background(), userID, 12.50, nil, "render: test")
	require.Error(t, err)

	var insufficient *InsufficientCreditsError
	require.True(t, errors.As(err, &insufficient))
	assert.InDelta(t, 12.50, insufficient.Required, 0.001)
	assert.InDelta(t, 3.25, insufficient.Available, 0.001)

	// A rejected deduction leaves no trace.
	assert.InDelta(t, 3.25, currentBalance(t, db, userID), 0.001)
	var entries int64
	require.NoError(t, db.Model(&models.CreditTransaction{}).
		Where("user_id = ?", userID).Count(&entries).Error)
	assert.Equal(t, int64(0), entries)
}

func TestDeductRefundRoundTrip(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	userID := seedBalance(t, db, 20)

	remaining, err := svc.Deduct(ctx, userID, 5, nil, "render: test")
	require.NoError(t, err)
	assert.InDelta(t, 15, remaining, 0.001)

	require.NoError(t, svc.Refund(ctx, userID, 5, nil, "render failed: test"))
	assert.InDelta(t, 20, currentBalance(t, db, userID), 0.001)

	var entries []models.CreditTransaction
	require.NoError(t, db.Where("user_id = ?", userID).Order("id ASC").Find(&entries).Error)
	require.Len(t, entries, 2)
	assert.Equal(t, models.CreditEntryDeduct, entries[0].EntryType)
	assert.InDelta(t, -5, entries[0].Amount, 0.001)
	assert.InDelta(t, 15, entries[0].BalanceAfter, 0.001)
	assert.Equal(t, models.CreditEntryRefund, entries[1].EntryType)
	assert.InDelta(t, 5, entries[1].Amount, 0.001)
	assert.InDelta(t, 20, entries[1].BalanceAfter, 0.001)
}

func TestConcurrentDeductsNeverGoNegative(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db)
	ctx := context.Background()
	userID := seedBalance(t, db, 10)

	const attempts = 8
	const cost = 3.0

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	rejected := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Deduct(ctx, userID, cost, nil, "render: concurrent")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			var insufficient *InsufficientCreditsError
			if errors.As(err, &insufficient) {
				rejected++
			}
		}()
	}
	wg.Wait()

	// The row lock serializes check-and-decrement: 10 credits afford exactly
	// three deductions of 3, the rest bounce off the balance check.
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, attempts-3, rejected)
	assert.InDelta(t, 1.0, currentBalance(t, db, userID), 0.001)
}
