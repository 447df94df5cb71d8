package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDedupCacheDropsRepeatedHash(t *testing.T) {
	d := newDedupCache()
	hash := contentHash([]byte("hello"))

	require.False(t, d.Seen(hash))
	require.True(t, d.Seen(hash))
}

func TestDedupCacheEvictsOldestBeyondCapacity(t *testing.T) {
	d := newDedupCache()
	d.capacity = 3

	require.False(t, d.Seen("a"))
	require.False(t, d.Seen("b"))
	require.False(t, d.Seen("c"))
	// "a" evicted once "d" is inserted.
	require.False(t, d.Seen("d"))
	require.False(t, d.Seen("a"))
}

func TestContentHashStableForEqualInput(t *testing.T) {
	require.Equal(t, contentHash([]byte("x")), contentHash([]byte("x")))
	require.NotEqual(t, contentHash([]byte("x")), contentHash([]byte("y")))
}
