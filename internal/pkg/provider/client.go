package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JonasKellner/RenderForge/app/models"
	"github.com/JonasKellner/RenderForge/internal/pkg/env"
)

const (
	defaultKieAIBaseURL   = "https://api.kie.ai/v1"
	defaultRunwareBaseURL = "https://api.runware.ai/v1"

	defaultPollInterval = 5 * time.Second
	defaultPollAttempts = 12
)

// Client talks to one render provider's REST API. Webhooks are the primary
// completion signal; polling exists as an explicit, bounded fallback.
type Client struct {
	Provider string
	BaseURL  string

	HTTPClient *http.Client
}

// NewClient builds a client for the named provider, reading its base URL
// override from the environment.
func NewClient(providerName string) (*Client, error) {
	var baseURL string
	switch providerName {
	case ProviderKieAI:
		baseURL = strings.TrimSpace(env.GetEnv("KIE_AI_API_BASE_URL", defaultKieAIBaseURL))
	case ProviderRunware:
		baseURL = strings.TrimSpace(env.GetEnv("RUNWARE_API_BASE_URL", defaultRunwareBaseURL))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerName)
	}

	return &Client{
		Provider: providerName,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}, nil
}

// ResolveAPIKey reads the submission credential for a model from the env var
// the model names. Flagship models carry their own key; others use the
// provider/content-type default.
func ResolveAPIKey(model *models.RenderModel) (string, error) {
	envName := model.APIKeyEnv()
	if envName == "" {
		return "", fmt.Errorf("%w: no api key mapping for %s/%s", ErrMissingAPIKey, model.Provider, model.ContentType)
	}
	key := strings.TrimSpace(env.GetEnv(envName, ""))
	if key == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrMissingAPIKey, envName)
	}
	return key, nil
}

// Submit starts a render and returns the provider-side identifiers.
func (c *Client) Submit(ctx context.Context, apiKey string, req SubmitRequest) (*SubmitResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal submit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/renders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build submit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s submit failed: %w", c.Provider, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s submit read failed: %w", c.Provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s submit returned status %d: %s", c.Provider, resp.StatusCode, truncate(payload, 256))
	}

	var out SubmitResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%s submit decode failed: %w", c.Provider, err)
	}
	if out.RenderID == "" && out.ProjectRef == "" {
		return nil, fmt.Errorf("%s submit response carries no render identifier", c.Provider)
	}
	return &out, nil
}

// GetStatus polls the provider once for a render's current state.
func (c *Client) GetStatus(ctx context.Context, apiKey, renderID string) (*StatusResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/renders/"+renderID, nil)
	if err != nil {
		return nil, fmt.Errorf("build status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s status failed: %w", c.Provider, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s status read failed: %w", c.Provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s status returned status %d: %s", c.Provider, resp.StatusCode, truncate(payload, 256))
	}

	var out StatusResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("%s status decode failed: %w", c.Provider, err)
	}
	return &out, nil
}

// IsTerminalStatus reports whether a polled status string means the provider
// is done with the render.
func IsTerminalStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "done", "success", "succeeded", "completed", "complete", "finished", "failed", "error":
		return true
	}
	return false
}

// PollUntilTerminal polls the provider at interval until the render reaches a
// terminal status or attempts run out. A nil result with nil error means the
// render was still in flight after the last attempt.
func (c *Client) PollUntilTerminal(ctx context.Context, apiKey, renderID string, interval time.Duration, attempts int) (*StatusResponse, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if attempts <= 0 {
		attempts = defaultPollAttempts
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < attempts; i++ {
		status, err := c.GetStatus(ctx, apiKey, renderID)
		if err != nil {
			return nil, err
		}
		if IsTerminalStatus(status.Status) {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return nil, nil
}

func truncate(b []byte, max int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
