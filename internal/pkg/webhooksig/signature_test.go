package webhooksig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestValidate(t *testing.T) {
	payload := []byte(`{"project":"p_123","status":"done"}`)
	secret := "top-secret"
	validSig := signPayload(payload, secret)

	ok, err := Validate(payload, validSig, secret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected signature to validate")
	}

	// Prefixed digest form must be accepted as well.
	ok, err = Validate(payload, "sha256="+validSig, secret)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected prefixed signature to validate")
	}

	if ok, _ := Validate(payload, "deadbeef", secret); ok {
		t.Fatalf("expected invalid signature to fail")
	}
	if ok, _ := Validate(payload, "not-hex!", secret); ok {
		t.Fatalf("expected malformed signature to fail")
	}
	if ok, _ := Validate(payload, "", secret); ok {
		t.Fatalf("expected missing signature to fail")
	}
}

func TestValidate_TamperedPayload(t *testing.T) {
	payload := []byte(`{"project":"p_123","status":"done"}`)
	secret := "top-secret"
	validSig := signPayload(payload, secret)

	tampered := append([]byte(nil), payload...)
	tampered[len(tampered)-2] = 'X'

	if ok, _ := Validate(tampered, validSig, secret); ok {
		t.Fatalf("expected tampered payload to fail validation")
	}

	// The exact original payload with its original signature still passes.
	if ok, _ := Validate(payload, validSig, secret); !ok {
		t.Fatalf("expected original payload to keep validating")
	}
}

func TestValidate_MissingSecretFailsClosed(t *testing.T) {
	payload := []byte(`{}`)
	sig := signPayload(payload, "anything")

	ok, err := Validate(payload, sig, "")
	if ok {
		t.Fatalf("expected missing secret to reject")
	}
	if !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}
