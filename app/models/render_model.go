package models

import (
	"time"

	"gorm.io/gorm"
)

// Render model content types
const (
	ContentTypePromptToImage = "prompt_to_image"
	ContentTypePromptToVideo = "prompt_to_video"
	ContentTypePromptToAudio = "prompt_to_audio"
	ContentTypeImageToVideo  = "image_to_video"
	ContentTypeImageEditing  = "image_editing"
)

// RenderModel is a catalog entry for a provider model the platform can render
// with. UseAPIKey names the environment variable holding the credential used
// for submissions with this model; some flagship models carry their own key
// separate from the provider/content-type default.
type RenderModel struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	RecordID      string         `gorm:"type:char(36);uniqueIndex;not null" json:"record_id"`
	Name          string         `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Provider      string         `gorm:"type:varchar(50);not null;index" json:"provider" validate:"required"`
	ContentType   string         `gorm:"type:varchar(50);not null;index" json:"content_type" validate:"required"`
	CostPerRender float64        `gorm:"type:decimal(12,2);not null" json:"cost_per_render" validate:"gte=0"`
	UseAPIKey     string         `gorm:"type:varchar(100)" json:"use_api_key"`
	Active        bool           `gorm:"default:true;index" json:"active"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// defaultAPIKeyEnvs maps provider + content type to the env var carrying the
// submission credential when a model record does not name its own.
var defaultAPIKeyEnvs = map[string]string{
	"kie_ai/" + ContentTypeImageEditing:   "KIE_AI_API_KEY_IMAGE_EDITING",
	"kie_ai/" + ContentTypeImageToVideo:   "KIE_AI_API_KEY_IMAGE_TO_VIDEO",
	"kie_ai/" + ContentTypePromptToImage:  "KIE_AI_API_KEY_PROMPT_TO_IMAGE",
	"kie_ai/" + ContentTypePromptToVideo:  "KIE_AI_API_KEY_PROMPT_TO_VIDEO",
	"kie_ai/" + ContentTypePromptToAudio:  "KIE_AI_API_KEY_PROMPT_TO_AUDIO",
	"runware/" + ContentTypePromptToImage: "RUNWARE_API_KEY_PROMPT_TO_IMAGE",
	"runware/" + ContentTypeImageEditing:  "RUNWARE_API_KEY_IMAGE_EDITING",
	"runware/" + ContentTypeImageToVideo:  "RUNWARE_API_KEY_IMAGE_TO_VIDEO",
}

// APIKeyEnv returns the env var name to use for submissions with this model.
func (m *RenderModel) APIKeyEnv() string {
	if m.UseAPIKey != "" {
		return m.UseAPIKey
	}
	if env, ok := defaultAPIKeyEnvs[m.Provider+"/"+m.ContentType]; ok && env != "" {
		return env
	}
	return ""
}
