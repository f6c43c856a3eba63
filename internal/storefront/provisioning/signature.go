package provisioning

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sign returns the hex HMAC-SHA256 of payload, the format of the X-Salla-Signature header.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(payload []byte, signature, secret string) bool {
	expected := Sign(payload, secret)
	signature = strings.ToLower(strings.TrimSpace(signature))
	if signature == "" {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(expected))
}
