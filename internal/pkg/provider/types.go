package provider

import "errors"

// Provider identifiers as stored on render models and jobs.
const (
	ProviderKieAI   = "kie_ai"
	ProviderRunware = "runware"
)

// ErrMissingAPIKey signals that the env var a model names for its submission
// credential is unset. Submissions fail fast instead of burning a provider
// call that would 401.
var ErrMissingAPIKey = errors.New("provider api key is not configured")

// ErrUnknownProvider signals a model whose provider has no registered client.
var ErrUnknownProvider = errors.New("unknown render provider")

// SubmitRequest carries everything a provider needs to start a render.
type SubmitRequest struct {
	Model       string `json:"model"`
	ContentType string `json:"content_type"`
	Prompt      string `json:"prompt"`
	CallbackURL string `json:"callback_url,omitempty"`
	Reference   string `json:"reference,omitempty"`
}

// SubmitResponse carries the provider-side identifiers for a started render.
// RenderID and ProjectRef become the correlation keys for webhook matching.
type SubmitResponse struct {
	RenderID   string `json:"render_id"`
	ProjectRef string `json:"project_ref"`
	Status     string `json:"status"`
}

// StatusResponse is the result of polling a provider for a render's state.
type StatusResponse struct {
	RenderID string  `json:"render_id"`
	Status   string  `json:"status"`
	URL      string  `json:"url,omitempty"`
	Error    string  `json:"error,omitempty"`
	Progress float64 `json:"progress,omitempty"`
}
