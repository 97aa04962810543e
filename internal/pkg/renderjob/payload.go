package renderjob

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Outcome classifies what a provider callback reports about a job.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeProgress Outcome = "progress"
)

// WebhookPayload is the normalized shape of provider callbacks. Providers are
// inconsistent about field names, so both the correlation key and the status
// come in several synonymous forms.
type WebhookPayload struct {
	RenderID string   `json:"renderId,omitempty"`
	Project  string   `json:"project,omitempty"`
	ID       string   `json:"id,omitempty"`
	Status   string   `json:"status,omitempty"`
	Success  *bool    `json:"success,omitempty"`
	URL      string   `json:"url,omitempty"`
	Error    string   `json:"error,omitempty"`
	Progress *float64 `json:"progress,omitempty"`
}

// ParseWebhookPayload decodes a raw provider callback body.
func ParseWebhookPayload(raw []byte) (*WebhookPayload, error) {
	var p WebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	return &p, nil
}

var successStatuses = map[string]struct{}{
	"done":      {},
	"success":   {},
	"succeeded": {},
	"completed": {},
	"complete":  {},
	"finished":  {},
}

var failureStatuses = map[string]struct{}{
	"failed":    {},
	"failure":   {},
	"error":     {},
	"errored":   {},
	"cancelled": {},
	"canceled":  {},
}

// Outcome maps the payload's status indicators onto a single result. A
// boolean success flag wins over the status string when both are present,
// and an error message forces a failure reading.
func (p *WebhookPayload) Outcome() Outcome {
	if p.Success != nil {
		if *p.Success {
			return OutcomeSuccess
		}
		return OutcomeFailure
	}

	status := strings.ToLower(strings.TrimSpace(p.Status))
	if _, ok := successStatuses[status]; ok {
		return OutcomeSuccess
	}
	if _, ok := failureStatuses[status]; ok {
		return OutcomeFailure
	}
	if p.Error != "" {
		return OutcomeFailure
	}
	return OutcomeProgress
}

// ErrorReason returns the failure description to store on the job record.
func (p *WebhookPayload) ErrorReason() string {
	if strings.TrimSpace(p.Error) != "" {
		return strings.TrimSpace(p.Error)
	}
	if status := strings.TrimSpace(p.Status); status != "" {
		return "provider reported status: " + status
	}
	return "provider reported failure"
}

// CorrelationCandidates returns the payload fields that may carry the
// provider-side job reference, in lookup priority order. The order is a
// contract: renderId is the most specific, project the provider's grouping
// ref, id the most ambiguous fallback.
func (p *WebhookPayload) CorrelationCandidates() []string {
	candidates := make([]string, 0, 3)
	for _, v := range []string{p.RenderID, p.Project, p.ID} {
		if s := strings.TrimSpace(v); s != "" {
			candidates = append(candidates, s)
		}
	}
	return candidates
}
