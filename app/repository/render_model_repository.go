package repository

import (
	"gorm.io/gorm"

	"github.com/JonasKellner/RenderForge/app/models"
)

// renderModelRepository implements the RenderModelRepository interface
type renderModelRepository struct {
	db *gorm.DB
}

// NewRenderModelRepository creates a new render model repository instance
func NewRenderModelRepository(db *gorm.DB) RenderModelRepository {
	return &renderModelRepository{db: db}
}

// Create creates a new render model catalog entry
func (r *renderModelRepository) Create(model *models.RenderModel) error {
	return r.db.Create(model).Error
}

// GetByID retrieves a render model by its ID
func (r *renderModelRepository) GetByID(id uint) (*models.RenderModel, error) {
	var model models.RenderModel
	err := r.db.First(&model, id).Error
	if err != nil {
		return nil, err
	}
	return &model, nil
}

// GetByRecordID retrieves a render model by its public record ID
func (r *renderModelRepository) GetByRecordID(recordID string) (*models.RenderModel, error) {
	var model models.RenderModel
	err := r.db.Where("record_id = ?", recordID).First(&model).Error
	if err != nil {
		return nil, err
	}
	return &model, nil
}

// GetActive retrieves all models currently open for submissions
func (r *renderModelRepository) GetActive() ([]models.RenderModel, error) {
	var catalog []models.RenderModel
	err := r.db.Where("active = ?", true).Order("provider, name").Find(&catalog).Error
	return catalog, err
}

// GetByProvider retrieves all models of one provider
func (r *renderModelRepository) GetByProvider(provider string) ([]models.RenderModel, error) {
	var catalog []models.RenderModel
	err := r.db.Where("provider = ?", provider).Order("name").Find(&catalog).Error
	return catalog, err
}

// Update updates an existing render model catalog entry
func (r *renderModelRepository) Update(model *models.RenderModel) error {
	return r.db.Save(model).Error
}
