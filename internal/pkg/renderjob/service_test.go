package renderjob

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/JonasKellner/RenderForge/app/models"
	"github.com/JonasKellner/RenderForge/internal/pkg/credits"
	"github.com/JonasKellner/RenderForge/internal/pkg/env"
)

// recorderDispatcher captures dispatches instead of enqueueing Redis jobs.
type recorderDispatcher struct {
	mu       sync.Mutex
	archives []string
	notices  []string
}

func (r *recorderDispatcher) DispatchOutputArchive(job *models.RenderJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archives = append(r.archives, job.UUID)
	return nil
}

func (r *recorderDispatcher) DispatchCompletionNotice(job *models.RenderJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, job.UUID)
	return nil
}

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
		&models.RenderModel{},
		&models.RenderJob{},
	))
	return db
}

func seedUserWithCredits(t *testing.T, db *gorm.DB, balance float64) *models.User {
	t.Helper()

	user := &models.User{
		Name:     "statemachine-test",
		Email:    uuid.New().String() + "@test.local",
		Password: "irrelevant",
	}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&models.CreditBalance{
		UserID:       user.ID,
		Balance:      balance,
		TotalCredits: balance,
	}).Error)
	return user
}

func seedRenderModel(t *testing.T, db *gorm.DB, cost float64) *models.RenderModel {
	t.Helper()

	model := &models.RenderModel{
		RecordID:      uuid.New().String(),
		Name:          "test-model",
		Provider:      "kie_ai",
		ContentType:   models.ContentTypeImageEditing,
		CostPerRender: cost,
		Active:        true,
	}
	require.NoError(t, db.Create(model).Error)
	return model
}

func userBalance(t *testing.T, db *gorm.DB, userID uint) float64 {
	t.Helper()

	var balance models.CreditBalance
	require.NoError(t, db.Where("user_id = ?", userID).First(&balance).Error)
	return balance.Balance
}

func TestCompleteDispatchesExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	rec := &recorderDispatcher{}
	svc := NewService(db, credits.NewService(db), rec)
	ctx := context.Background()

	user := seedUserWithCredits(t, db, 10)
	model := seedRenderModel(t, db, 2.5)

	job, err := svc.Accept(ctx, user.ID, model, "a red bicycle")
	require.NoError(t, err)
	require.NoError(t, svc.MarkRendering(ctx, job.ID, "prov-1", "proj-1"))

	applied, err := svc.Complete(ctx, job.ID, "https://cdn.test/out.png")
	require.NoError(t, err)
	assert.True(t, applied)

	// A redelivered success callback must be a no-op.
	applied, err = svc.Complete(ctx, job.ID, "https://cdn.test/out.png")
	require.NoError(t, err)
	assert.False(t, applied)

	assert.Equal(t, []string{job.UUID}, rec.archives)
	assert.Equal(t, []string{job.UUID}, rec.notices)

	// Completion consumes the deduction, nothing is refunded.
	assert.InDelta(t, 7.5, userBalance(t, db, user.ID), 0.001)
}

func TestFailRefundsExactlyOnce(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, credits.NewService(db), &recorderDispatcher{})
	ctx := context.Background()

	user := seedUserWithCredits(t, db, 10)
	model := seedRenderModel(t, db, 2.5)

	job, err := svc.Accept(ctx, user.ID, model, "a red bicycle")
	require.NoError(t, err)
	require.NoError(t, svc.MarkRendering(ctx, job.ID, "prov-2", "proj-2"))
	assert.InDelta(t, 7.5, userBalance(t, db, user.ID), 0.001)

	applied, err := svc.Fail(ctx, job.ID, "render crashed")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.InDelta(t, 10, userBalance(t, db, user.ID), 0.001)

	applied, err = svc.Fail(ctx, job.ID, "render crashed")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.InDelta(t, 10, userBalance(t, db, user.ID), 0.001)

	var refunds int64
	require.NoError(t, db.Model(&models.CreditTransaction{}).
		Where("render_job_id = ? AND entry_type = ?", job.ID, models.CreditEntryRefund).
		Count(&refunds).Error)
	assert.Equal(t, int64(1), refunds)

	var reloaded models.RenderJob
	require.NoError(t, db.First(&reloaded, job.ID).Error)
	assert.Equal(t, models.RenderJobStatusFailed, reloaded.Status)
	assert.True(t, reloaded.Refunded)
}

func TestFailLosesAgainstCompletion(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, credits.NewService(db), &recorderDispatcher{})
	ctx := context.Background()

	user := seedUserWithCredits(t, db, 10)
	model := seedRenderModel(t, db, 2.5)

	job, err := svc.Accept(ctx, user.ID, model, "a red bicycle")
	require.NoError(t, err)
	require.NoError(t, svc.MarkRendering(ctx, job.ID, "prov-3", "proj-3"))

	applied, err := svc.Complete(ctx, job.ID, "https://cdn.test/out.png")
	require.NoError(t, err)
	require.True(t, applied)

	// The sweep racing a success webhook must not fail or refund the job.
	applied, err = svc.Fail(ctx, job.ID, "render timed out")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.InDelta(t, 7.5, userBalance(t, db, user.ID), 0.001)
}

func TestResetForRetryRededucts(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, credits.NewService(db), &recorderDispatcher{})
	ctx := context.Background()

	user := seedUserWithCredits(t, db, 10)
	model := seedRenderModel(t, db, 2.5)

	job, err := svc.Accept(ctx, user.ID, model, "a red bicycle")
	require.NoError(t, err)
	require.NoError(t, svc.MarkRendering(ctx, job.ID, "prov-4", "proj-4"))
	applied, err := svc.Fail(ctx, job.ID, "render crashed")
	require.NoError(t, err)
	require.True(t, applied)
	require.InDelta(t, 10, userBalance(t, db, user.ID), 0.001)

	reset, err := svc.ResetForRetry(ctx, job.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.RenderJobStatusPending, reset.Status)
	assert.False(t, reset.Refunded)
	assert.Empty(t, reset.ProviderRenderID)
	assert.Empty(t, reset.ErrorMessage)
	assert.InDelta(t, 7.5, userBalance(t, db, user.ID), 0.001)

	// Only failed jobs can be reset.
	_, err = svc.ResetForRetry(ctx, job.UUID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSweepFailsOnlyStaleJobs(t *testing.T) {
	db := newTestDB(t)
	svc := NewService(db, credits.NewService(db), &recorderDispatcher{})
	ctx := context.Background()

	user := seedUserWithCredits(t, db, 10)
	model := seedRenderModel(t, db, 2.5)

	stale, err := svc.Accept(ctx, user.ID, model, "a stale render")
	require.NoError(t, err)
	fresh, err := svc.Accept(ctx, user.ID, model, "a fresh render")
	require.NoError(t, err)

	// Age the first job past the threshold without touching the second.
	require.NoError(t, db.Model(&models.RenderJob{}).
		Where("id = ?", stale.ID).
		UpdateColumn("updated_at", time.Now().Add(-45*time.Minute)).Error)

	result, err := NewReconciler(db, svc, 30*time.Minute).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{stale.UUID}, result.Fixed)

	var reloaded models.RenderJob
	require.NoError(t, db.First(&reloaded, stale.ID).Error)
	assert.Equal(t, models.RenderJobStatusFailed, reloaded.Status)
	assert.True(t, reloaded.Refunded)

	require.NoError(t, db.First(&reloaded, fresh.ID).Error)
	assert.Equal(t, models.RenderJobStatusPending, reloaded.Status)

	// One of the two deductions came back.
	assert.InDelta(t, 7.5, userBalance(t, db, user.ID), 0.001)
}
