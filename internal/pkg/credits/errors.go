package credits

import (
	"errors"
	"fmt"
)

// InsufficientCreditsError is a policy violation, not an infrastructure
// failure: the API layer maps it to HTTP 402 with the required/available
// amounts for client display.
type InsufficientCreditsError struct {
	Required  float64
	Available float64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %.2f, available %.2f", e.Required, e.Available)
}

// IsInsufficientCredits reports whether err is an insufficient-credits
// rejection and returns the typed error when it is.
func IsInsufficientCredits(err error) (*InsufficientCreditsError, bool) {
	var ice *InsufficientCreditsError
	if errors.As(err, &ice) {
		return ice, true
	}
	return nil, false
}
