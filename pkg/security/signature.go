package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignPayload returns the hex encoded HMAC-SHA256 of body under secret.
func SignPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares a received signature header against the expected
// HMAC in constant time. An optional "sha256=" prefix is accepted.
func VerifySignature(secret string, body []byte, received string) bool {
	received = strings.TrimSpace(received)
	received = strings.TrimPrefix(received, "sha256=")
	if secret == "" || received == "" {
		return false
	}
	got, err := hex.DecodeString(received)
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(SignPayload(secret, body))
	return hmac.Equal(got, want)
}
