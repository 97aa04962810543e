package webhooksig

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrNoSecret signals a missing webhook secret. Signature verification
// protects payload authenticity, so an unconfigured secret rejects every
// request instead of silently degrading.
var ErrNoSecret = errors.New("webhook secret is not configured")

// Validate verifies an HMAC-SHA256 signature over the raw, unparsed request
// body. It must run before any JSON parsing; re-serialized payloads are not
// byte-for-byte identical to what the provider signed.
func Validate(payload []byte, signatureHeader, secret string) (bool, error) {
	if strings.TrimSpace(secret) == "" {
		return false, ErrNoSecret
	}

	sig := strings.TrimSpace(signatureHeader)
	if sig == "" {
		return false, nil
	}

	// Providers prefix the hex digest inconsistently ("sha256=<hex>" vs bare hex).
	sig = strings.TrimPrefix(strings.ToLower(sig), "sha256=")

	decodedSig, err := hex.DecodeString(sig)
	if err != nil {
		return false, nil
	}

	mac := hmac.New(sha256.New, []byte(strings.TrimSpace(secret)))
	mac.Write(payload)
	return hmac.Equal(mac.Sum(nil), decodedSig), nil
}
