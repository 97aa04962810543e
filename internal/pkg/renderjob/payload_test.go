package renderjob

import (
	"testing"
)

func TestWebhookPayloadOutcome(t *testing.T) {
	truth := true
	falsehood := false
	progress := 42.0

	tests := []struct {
		name    string
		payload WebhookPayload
		want    Outcome
	}{
		{name: "status done", payload: WebhookPayload{Status: "done"}, want: OutcomeSuccess},
		{name: "status success", payload: WebhookPayload{Status: "success"}, want: OutcomeSuccess},
		{name: "status completed", payload: WebhookPayload{Status: "Completed"}, want: OutcomeSuccess},
		{name: "status finished", payload: WebhookPayload{Status: "finished"}, want: OutcomeSuccess},
		{name: "status failed", payload: WebhookPayload{Status: "failed"}, want: OutcomeFailure},
		{name: "status error", payload: WebhookPayload{Status: "error"}, want: OutcomeFailure},
		{name: "success flag true", payload: WebhookPayload{Success: &truth}, want: OutcomeSuccess},
		{name: "success flag false", payload: WebhookPayload{Success: &falsehood}, want: OutcomeFailure},
		{name: "success flag beats status", payload: WebhookPayload{Success: &falsehood, Status: "done"}, want: OutcomeFailure},
		{name: "error message only", payload: WebhookPayload{Error: "render exploded"}, want: OutcomeFailure},
		{name: "progress only", payload: WebhookPayload{Status: "rendering", Progress: &progress}, want: OutcomeProgress},
		{name: "empty payload", payload: WebhookPayload{}, want: OutcomeProgress},
	}

	for _, tt := range tests {
		if got := tt.payload.Outcome(); got != tt.want {
			t.Fatalf("%s: Outcome() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestWebhookPayloadCorrelationCandidates(t *testing.T) {
	p := WebhookPayload{RenderID: "r_1", Project: "p_2", ID: "i_3"}
	got := p.CorrelationCandidates()
	want := []string{"r_1", "p_2", "i_3"}
	if len(got) != len(want) {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("candidate[%d] = %q, want %q (priority order is a contract)", i, got[i], want[i])
		}
	}

	// Blank fields are skipped, order preserved.
	p = WebhookPayload{Project: "  ", ID: "only"}
	got = p.CorrelationCandidates()
	if len(got) != 1 || got[0] != "only" {
		t.Fatalf("candidates = %v, want [only]", got)
	}

	p = WebhookPayload{}
	if got := p.CorrelationCandidates(); len(got) != 0 {
		t.Fatalf("expected no candidates for empty payload, got %v", got)
	}
}

func TestWebhookPayloadErrorReason(t *testing.T) {
	p := WebhookPayload{Error: " boom "}
	if got := p.ErrorReason(); got != "boom" {
		t.Fatalf("ErrorReason() = %q, want %q", got, "boom")
	}
	p = WebhookPayload{Status: "failed"}
	if got := p.ErrorReason(); got != "provider reported status: failed" {
		t.Fatalf("ErrorReason() = %q", got)
	}
	p = WebhookPayload{}
	if got := p.ErrorReason(); got != "provider reported failure" {
		t.Fatalf("ErrorReason() = %q", got)
	}
}

func TestParseWebhookPayload(t *testing.T) {
	raw := []byte(`{"project":"p_123","status":"done","url":"https://cdn.example.com/out.mp4","progress":100}`)
	p, err := ParseWebhookPayload(raw)
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if p.Project != "p_123" || p.Status != "done" || p.URL == "" {
		t.Fatalf("unexpected payload: %+v", p)
	}

	if _, err := ParseWebhookPayload([]byte("{not json")); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}
