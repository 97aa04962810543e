package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonasKellner/RenderForge/internal/pkg/env"
)

func TestWebhookSignatureHeaderName(t *testing.T) {
	app := fiber.New()

	var got string
	app.Post("/webhooks/render/:provider", func(c *fiber.Ctx) error {
		got = webhookSignatureHeader(c, c.Params("provider"))
		return c.SendString("ok")
	})

	req := httptest.NewRequest("POST", "/webhooks/render/kie_ai", strings.NewReader("{}"))
	req.Header.Set("X-Kie-Ai-Signature", "abc123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc123", got)

	// Generic fallback header
	req = httptest.NewRequest("POST", "/webhooks/render/runware", strings.NewReader("{}"))
	req.Header.Set("X-Webhook-Signature", "def456")
	resp, err = app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "def456", got)
}

func TestWebhookSecretResolution(t *testing.T) {
	if env.Env == nil {
		env.Env = map[string]string{}
	}
	env.Env["WEBHOOK_SECRET_KIE_AI"] = "provider-secret"
	env.Env["RENDER_WEBHOOK_SECRET"] = "shared-secret"
	t.Cleanup(func() {
		delete(env.Env, "WEBHOOK_SECRET_KIE_AI")
		delete(env.Env, "RENDER_WEBHOOK_SECRET")
	})

	assert.Equal(t, "provider-secret", webhookSecret("kie_ai"))
	assert.Equal(t, "shared-secret", webhookSecret("runware"))
}

func TestHandleWebhookHealth(t *testing.T) {
	app := fiber.New()
	app.Get("/webhooks/render/:provider", HandleWebhookHealth)

	req := httptest.NewRequest("GET", "/webhooks/render/kie_ai", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "OK", payload["status"])
	assert.Equal(t, webhookServiceName, payload["service"])
	assert.Equal(t, "kie_ai", payload["provider"])
	assert.NotEmpty(t, payload["timestamp"])
}

func TestHandleRenderWebhookRejectsMissingSignature(t *testing.T) {
	app := fiber.New()
	app.Post("/webhooks/render/:provider", HandleRenderWebhook)

	req := httptest.NewRequest("POST", "/webhooks/render/kie_ai", strings.NewReader(`{"id":"r-1","status":"done"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "SIGNATURE_REQUIRED", payload["code"])
}

func TestHandleRenderWebhookRejectsInvalidSignature(t *testing.T) {
	if env.Env == nil {
		env.Env = map[string]string{}
	}
	env.Env["RENDER_WEBHOOK_SECRET"] = "test-secret"
	t.Cleanup(func() { delete(env.Env, "RENDER_WEBHOOK_SECRET") })

	app := fiber.New()
	app.Post("/webhooks/render/:provider", HandleRenderWebhook)

	body := `{"id":"r-1","status":"done"}`

	// Sign a different payload so the signature is well-formed but wrong.
	mac := hmac.New(sha256.New, []byte("test-secret"))
	mac.Write([]byte(`{"id":"r-1","status":"failed"}`))
	wrongSig := hex.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest("POST", "/webhooks/render/kie_ai", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", wrongSig)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "SIGNATURE_INVALID", payload["code"])
}

func TestHandleRenderWebhookFailsClosedWithoutSecret(t *testing.T) {
	if env.Env == nil {
		env.Env = map[string]string{}
	}
	delete(env.Env, "RENDER_WEBHOOK_SECRET")
	delete(env.Env, "WEBHOOK_SECRET_KIE_AI")

	app := fiber.New()
	app.Post("/webhooks/render/:provider", HandleRenderWebhook)

	req := httptest.NewRequest("POST", "/webhooks/render/kie_ai", strings.NewReader(`{"id":"r-1","status":"done"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", "deadbeef")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "SIGNATURE_UNAVAILABLE", payload["code"])
}
