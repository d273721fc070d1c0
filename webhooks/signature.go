package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// VerifySquareSignature checks Square's webhook signature: base64 of
// HMAC-SHA256 over the notification URL concatenated with the raw body,
// keyed by the subscription's signature key.
func VerifySquareSignature(signature, notificationURL string, body []byte, signatureKey string) bool {
	if signature == "" || signatureKey == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(signatureKey))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyCloverSignature checks Clover's webhook signature: hex of HMAC-SHA256
// over "appId:rawBody", keyed by the app secret.
func VerifyCloverSignature(signature, appId string, body []byte, appSecret string) bool {
	if signature == "" || appSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write([]byte(appId))
	mac.Write([]byte(":"))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
