package renderjob

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/JonasKellner/RenderForge/app/models"
)

// ErrJobNotFound signals that no job matched any correlation candidate. The
// webhook handler reports this as a 404 instead of silently dropping the
// callback.
var ErrJobNotFound = errors.New("no render job matches the webhook correlation keys")

// Correlate resolves a provider callback to a local job. Each candidate is
// tried against the provider render id first, then the project ref; the
// first hit wins.
func Correlate(ctx context.Context, db *gorm.DB, provider string, candidates []string) (*models.RenderJob, error) {
	if len(candidates) == 0 {
		return nil, ErrJobNotFound
	}

	for _, candidate := range candidates {
		var job models.RenderJob
		err := db.WithContext(ctx).
			Where("provider = ? AND (provider_render_id = ? OR provider_project_ref = ?)",
				provider, candidate, candidate).
			First(&job).Error
		if err == nil {
			return &job, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("job correlation lookup failed: %w", err)
		}
	}

	return nil, ErrJobNotFound
}
