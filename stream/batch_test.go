package stream

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBatcherFlushesAtMaxSize(t *testing.T) {
	var mu sync.Mutex
	var flushed [][]Frame
	b := newBatcher(func(frames []Frame) {
		mu.Lock()
		flushed = append(flushed, frames)
		mu.Unlock()
	})

	for i := 0; i < batchMaxFrames; i++ {
		b.Add(Frame{Type: FrameResponse})
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, flushed, 1)
	require.Len(t, flushed[0], batchMaxFrames)
}

func TestBatcherFlushesOnWindowTimeout(t *testing.T) {
	flushedCh := make(chan []Frame, 1)
	b := newBatcher(func(frames []Frame) {
		flushedCh <- frames
	})

	b.Add(Frame{Type: FrameResponse})

	select {
	case frames := <-flushedCh:
		require.Len(t, frames, 1)
	case <-time.After(time.Second):
		t.Fatal("batch was not flushed within the window")
	}
}

func TestBatcherCloseDiscardsBuffer(t *testing.T) {
	called := false
	b := newBatcher(func(frames []Frame) { called = true })
	b.Add(Frame{Type: FrameResponse})
	b.Close()

	time.Sleep(150 * time.Millisecond)
	require.False(t, called)
	require.Equal(t, 0, b.QueuedLen())
}
