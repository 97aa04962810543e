package models

import (
	"time"

	"gorm.io/gorm"
)

// RenderJobStatus defines the lifecycle state of a render job
type RenderJobStatus string

const (
	RenderJobStatusPending   RenderJobStatus = "pending"
	RenderJobStatusRendering RenderJobStatus = "rendering"
	RenderJobStatusCompleted RenderJobStatus = "completed"
	RenderJobStatusFailed    RenderJobStatus = "failed"
)

// RenderJob tracks one submission to an external render provider from
// acceptance through webhook-driven completion or failure. Status moves only
// forward (pending -> rendering -> completed/failed); the single exception is
// an operator reset from failed back to pending for retry.
type RenderJob struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	UUID               string          `gorm:"type:char(36);uniqueIndex;not null" json:"uuid"`
	UserID             uint            `gorm:"index;not null" json:"user_id"`
	User               User            `gorm:"foreignKey:UserID" json:"-"`
	RenderModelID      uint            `gorm:"index" json:"render_model_id"`
	Provider           string          `gorm:"type:varchar(50);not null;index" json:"provider"`
	ProviderRenderID   string          `gorm:"type:varchar(191);index" json:"provider_render_id"`
	ProviderProjectRef string          `gorm:"type:varchar(191);index" json:"provider_project_ref"`
	Status             RenderJobStatus `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	Prompt             string          `gorm:"type:text" json:"prompt"`
	OutputURL          string          `gorm:"type:varchar(2048)" json:"output_url"`
	ArchiveKey         string          `gorm:"type:varchar(512)" json:"archive_key"`
	Cost               float64         `gorm:"type:decimal(12,2);not null" json:"cost"`
	Refunded           bool            `gorm:"default:false" json:"refunded"`
	ErrorMessage       string          `gorm:"type:text" json:"error_message"`
	CreatedAt          time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt        *time.Time      `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	DeletedAt          gorm.DeletedAt  `gorm:"index" json:"-"`
}

// IsTerminal reports whether no further automatic transition applies.
func (j *RenderJob) IsTerminal() bool {
	return j.Status == RenderJobStatusCompleted || j.Status == RenderJobStatusFailed
}

// IsActive reports whether the job still awaits a provider outcome.
func (j *RenderJob) IsActive() bool {
	return j.Status == RenderJobStatusPending || j.Status == RenderJobStatusRendering
}

// Age returns the elapsed time since the job was created.
func (j *RenderJob) Age(now time.Time) time.Duration {
	return now.Sub(j.CreatedAt)
}
