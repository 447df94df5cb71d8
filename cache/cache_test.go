package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *Engine {
	log := zerolog.New(io.Discard)
	return NewEngine(log, nil, time.Hour, 1024)
}

func TestGetAfterSetHits(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.Set(ctx, "ns", "k1", []byte("hello"), SetOptions{TTL: time.Minute})

	v, ok := e.Get(ctx, "ns", "k1")
	require.True(t, ok)
	require.Equal(t, []byte("hello"), v)
}

func TestGetMissAfterTTLExpires(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.Set(ctx, "ns", "k1", []byte("hello"), SetOptions{TTL: time.Millisecond})
	time.Sleep(5 * time.Millisecond)

	_, ok := e.Get(ctx, "ns", "k1")
	require.False(t, ok)
}

func TestInvalidateGroupRemovesTaggedAndDependents(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	e.Set(ctx, "ns", "base", []byte("v1"), SetOptions{TTL: time.Minute, Groups: []string{"g1"}})
	e.Set(ctx, "ns", "derived", []byte("v2"), SetOptions{TTL: time.Minute, Dependencies: []string{"base"}})

	n := e.InvalidateGroup(ctx, "g1")
	require.Equal(t, 2, n)

	_, ok1 := e.Get(ctx, "ns", "base")
	_, ok2 := e.Get(ctx, "ns", "derived")
	require.False(t, ok1)
	require.False(t, ok2)
}

func TestInvalidateGroupIsIdempotent(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.Set(ctx, "ns", "k1", []byte("v"), SetOptions{TTL: time.Minute, Groups: []string{"g"}})

	require.Equal(t, 1, e.InvalidateGroup(ctx, "g"))
	require.Equal(t, 0, e.InvalidateGroup(ctx, "g"))
}

func TestNamespacedKeysDoNotCollide(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.Set(ctx, "team-a", "k", []byte("a"), SetOptions{})
	e.Set(ctx, "team-b", "k", []byte("b"), SetOptions{})

	va, _ := e.Get(ctx, "team-a", "k")
	vb, _ := e.Get(ctx, "team-b", "k")
	require.Equal(t, []byte("a"), va)
	require.Equal(t, []byte("b"), vb)
}

func TestStatsMonotonic(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()
	e.Set(ctx, "ns", "k", []byte("v"), SetOptions{})
	e.Get(ctx, "ns", "k")
	e.Get(ctx, "ns", "missing")

	s := e.Stats()
	require.Equal(t, int64(1), s.Hits)
	require.Equal(t, int64(1), s.Misses)
}

func TestEncodeDecodeRoundTripAboveThreshold(t *testing.T) {
	big := make([]byte, 2048)
	for i := range big {
		big[i] = byte(i % 251)
	}
	enc := encode(big, 1024)
	require.Equal(t, compressedMarker, enc[0])
	dec, err := decode(enc)
	require.NoError(t, err)
	require.Equal(t, big, dec)
}

func TestEncodeDecodeRoundTripBelowThreshold(t *testing.T) {
	small := []byte("tiny")
	enc := encode(small, 1024)
	require.NotEqual(t, compressedMarker, enc[0])
	dec, err := decode(enc)
	require.NoError(t, err)
	require.Equal(t, small, dec)
}
