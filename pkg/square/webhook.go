package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignatureHeader carries the base64 HMAC-SHA256 of notification URL + body.
const SignatureHeader = "x-square-hmacsha256-signature"

// VerifySignature recomputes the webhook signature and compares it in
// constant time. An empty key never verifies.
func VerifySignature(key, notificationURL string, body []byte, header string) bool {
	header = strings.TrimSpace(header)
	if key == "" || header == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(header))
}
