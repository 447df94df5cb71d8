package workflow

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// replayWindow bounds how far a callback's timestamp may drift from
// now before it is treated as a replay.
const replayWindow = 5 * time.Minute

// VerifyCallbackSignature checks an incoming callback's
// `x-*-signature` header against the shared secret using constant-time
// HMAC-SHA256 comparison, and rejects timestamps outside the replay
// window. signature is expected to be a hex-encoded digest over
// "timestamp.body".
func VerifyCallbackSignature(secret []byte, body []byte, timestamp, signature string, now time.Time) error {
	if len(secret) == 0 {
		return fmt.Errorf("callback signing key is not configured")
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid callback timestamp: %w", err)
	}
	callbackTime := time.Unix(ts, 0)
	if now.Sub(callbackTime) > replayWindow || callbackTime.Sub(now) > replayWindow {
		return fmt.Errorf("callback timestamp outside replay window")
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("invalid callback signature encoding: %w", err)
	}
	if !hmac.Equal(expected, got) {
		return fmt.Errorf("callback signature mismatch")
	}
	return nil
}

// SignCallback is the inverse of VerifyCallbackSignature, used by
// tests and by any component that simulates the external service.
func SignCallback(secret []byte, body []byte, timestamp string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
