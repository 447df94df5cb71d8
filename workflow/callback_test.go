package workflow

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerifyCallbackSignatureAccepts(t *testing.T) {
	secret := []byte("shared-secret")
	body := []byte(`{"status":"completed"}`)
	now := time.Unix(1700000000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := SignCallback(secret, body, ts)

	require.NoError(t, VerifyCallbackSignature(secret, body, ts, sig, now))
}

func TestVerifyCallbackSignatureRejectsTamperedBody(t *testing.T) {
	secret := []byte("shared-secret")
	now := time.Unix(1700000000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	sig := SignCallback(secret, []byte(`{"status":"completed"}`), ts)

	err := VerifyCallbackSignature(secret, []byte(`{"status":"failed"}`), ts, sig, now)
	require.Error(t, err)
}

func TestVerifyCallbackSignatureRejectsReplay(t *testing.T) {
	secret := []byte("shared-secret")
	body := []byte(`{"status":"completed"}`)
	issuedAt := time.Unix(1700000000, 0)
	ts := strconv.FormatInt(issuedAt.Unix(), 10)
	sig := SignCallback(secret, body, ts)

	tooLate := issuedAt.Add(10 * time.Minute)
	err := VerifyCallbackSignature(secret, body, ts, sig, tooLate)
	require.Error(t, err)
}

func TestVerifyCallbackSignatureAcceptsWithinWindow(t *testing.T) {
	secret := []byte("shared-secret")
	body := []byte(`{"status":"completed"}`)
	issuedAt := time.Unix(1700000000, 0)
	ts := strconv.FormatInt(issuedAt.Unix(), 10)
	sig := SignCallback(secret, body, ts)

	slightlyLate := issuedAt.Add(4 * time.Minute)
	require.NoError(t, VerifyCallbackSignature(secret, body, ts, sig, slightlyLate))
}
