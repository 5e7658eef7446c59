package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

const signaturePrefix = "sha256="

// verifySignature verifies the X-Hub-Signature-256 header against the raw
// request body. The header must be "sha256=<hex>" carrying an HMAC-SHA256 of
// the body under the shared app secret.
//
// The comparison is constant-time (crypto/subtle), and all failures return the
// same generic error so responses leak nothing about why verification failed.
//
// Callers must pass the raw body bytes as received on the wire: re-serializing
// a parsed payload can change byte-for-byte content and invalidate the digest.
func verifySignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return fmt.Errorf("signature verification failed")
	}

	if !strings.HasPrefix(signature, signaturePrefix) {
		return fmt.Errorf("signature verification failed")
	}
	provided, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return fmt.Errorf("signature verification failed")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, provided) != 1 {
		return fmt.Errorf("signature verification failed")
	}
	return nil
}

// SignBody computes the X-Hub-Signature-256 header value for a body. Used by
// tests and by operators replaying captured deliveries.
func SignBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
