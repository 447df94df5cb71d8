package stream

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeFrameBelowThresholdIsPlainText(t *testing.T) {
	payload, binary, err := encodeFrame(Frame{Type: FrameHeartbeat}, CompressionThreshold, true)
	require.NoError(t, err)
	require.False(t, binary)
	require.Contains(t, string(payload), "heartbeat")
}

func TestEncodeDecodeFrameRoundTripAboveThreshold(t *testing.T) {
	big := map[string]string{"data": strings.Repeat("x", 2048)}
	payload, binary, err := encodeFrame(big, CompressionThreshold, true)
	require.NoError(t, err)
	require.True(t, binary)
	require.True(t, strings.HasPrefix(string(payload), compressedPrefix))

	decoded, err := decodeFrame(payload)
	require.NoError(t, err)
	require.Contains(t, string(decoded), strings.Repeat("x", 2048))
}

func TestEncodeFrameSkipsCompressionWhenPeerDoesNotSupportIt(t *testing.T) {
	big := map[string]string{"data": strings.Repeat("y", 2048)}
	payload, binary, err := encodeFrame(big, CompressionThreshold, false)
	require.NoError(t, err)
	require.False(t, binary)
	require.Contains(t, string(payload), "yyyy")
}

func TestDecodeFrameWithoutPrefixIsPassthrough(t *testing.T) {
	out, err := decodeFrame([]byte(`{"type":"heartbeat"}`))
	require.NoError(t, err)
	require.Equal(t, `{"type":"heartbeat"}`, string(out))
}
