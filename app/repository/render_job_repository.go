package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/JonasKellner/RenderForge/app/models"
)

// renderJobRepository implements the RenderJobRepository interface
type renderJobRepository struct {
	db *gorm.DB
}

// NewRenderJobRepository creates a new render job repository instance
func NewRenderJobRepository(db *gorm.DB) RenderJobRepository {
	return &renderJobRepository{db: db}
}

// Create creates a new render job in the database
func (r *renderJobRepository) Create(job *models.RenderJob) error {
	return r.db.Create(job).Error
}

// GetByID retrieves a render job by its ID
func (r *renderJobRepository) GetByID(id uint) (*models.RenderJob, error) {
	var job models.RenderJob
	err := r.db.First(&job, id).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetByUUID retrieves a render job by its public UUID
func (r *renderJobRepository) GetByUUID(uuid string) (*models.RenderJob, error) {
	var job models.RenderJob
	err := r.db.Where("uuid = ?", uuid).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetByUserID retrieves a paginated list of jobs owned by a user, newest first
func (r *renderJobRepository) GetByUserID(userID uint, offset, limit int) ([]models.RenderJob, error) {
	var jobs []models.RenderJob
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&jobs).Error
	return jobs, err
}

// GetActiveOlderThan retrieves pending and rendering jobs last touched before cutoff
func (r *renderJobRepository) GetActiveOlderThan(cutoff time.Time) ([]models.RenderJob, error) {
	var jobs []models.RenderJob
	err := r.db.Where("status IN ? AND updated_at < ?",
		[]models.RenderJobStatus{models.RenderJobStatusPending, models.RenderJobStatusRendering}, cutoff).
		Order("updated_at ASC").Find(&jobs).Error
	return jobs, err
}

// Update updates an existing render job in the database
func (r *renderJobRepository) Update(job *models.RenderJob) error {
	return r.db.Save(job).Error
}

// List retrieves a paginated list of all render jobs, newest first
func (r *renderJobRepository) List(offset, limit int) ([]models.RenderJob, error) {
	var jobs []models.RenderJob
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&jobs).Error
	return jobs, err
}

// Count returns the total number of render jobs
func (r *renderJobRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.RenderJob{}).Count(&count).Error
	return count, err
}

// CountByStatus returns the number of jobs currently in the given status
func (r *renderJobRepository) CountByStatus(status models.RenderJobStatus) (int64, error) {
	var count int64
	err := r.db.Model(&models.RenderJob{}).Where("status = ?", status).Count(&count).Error
	return count, err
}

// CountByUserID returns the number of jobs owned by a user
func (r *renderJobRepository) CountByUserID(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.RenderJob{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}
