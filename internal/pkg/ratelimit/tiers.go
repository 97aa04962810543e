package ratelimit

import "time"

// Tier is a named rate-limit policy. Callers pick a tier by name so limits
// can be tuned in one place instead of scattering raw numbers over handlers.
type Tier struct {
	Name          string
	MaxRequests   int
	Window        time.Duration
	BlockDuration time.Duration
}

const (
	TierStandard = "standard"
	TierStrict   = "strict"
	TierAuth     = "auth"
	TierWebhook  = "webhook"
)

var tiers = map[string]Tier{
	TierStandard: {Name: TierStandard, MaxRequests: 30, Window: time.Minute, BlockDuration: 5 * time.Minute},
	TierStrict:   {Name: TierStrict, MaxRequests: 5, Window: time.Minute, BlockDuration: 30 * time.Minute},
	TierAuth:     {Name: TierAuth, MaxRequests: 10, Window: time.Minute, BlockDuration: 15 * time.Minute},
	TierWebhook:  {Name: TierWebhook, MaxRequests: 120, Window: time.Minute, BlockDuration: time.Minute},
}

// GetTier resolves a tier by name, falling back to the standard tier for
// unknown names so a typo never disables limiting.
func GetTier(name string) Tier {
	if t, ok := tiers[name]; ok {
		return t
	}
	return tiers[TierStandard]
}
