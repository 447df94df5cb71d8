package stream

import (
	"sync"
	"time"
)

const (
	batchMaxFrames = 50
	batchWindow    = 100 * time.Millisecond
)

// batcher accumulates outbound frames for one connection and flushes
// them when the batch reaches batchMaxFrames or batchWindow has
// elapsed since the first frame in the current batch, whichever comes
// first.
type batcher struct {
	mu      sync.Mutex
	buffer  []Frame
	timer   *time.Timer
	flushFn func([]Frame)
	closed  bool
}

func newBatcher(flushFn func([]Frame)) *batcher {
	return &batcher{flushFn: flushFn}
}

// Add appends a frame to the current batch, flushing immediately if
// this fills it, and arming the window timer on the first frame.
func (b *batcher) Add(f Frame) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.buffer = append(b.buffer, f)
	if len(b.buffer) == 1 {
		b.timer = time.AfterFunc(batchWindow, b.flushOnTimer)
	}
	full := len(b.buffer) >= batchMaxFrames
	b.mu.Unlock()

	if full {
		b.Flush()
	}
}

func (b *batcher) flushOnTimer() {
	b.Flush()
}

// Flush sends whatever is currently buffered, if anything.
func (b *batcher) Flush() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return
	}
	batch := b.buffer
	b.buffer = nil
	b.mu.Unlock()

	b.flushFn(batch)
}

// QueuedLen reports how many frames are currently buffered.
func (b *batcher) QueuedLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

// Close stops the pending timer and discards the buffer without
// flushing, matching a connection close dropping its batch buffer.
func (b *batcher) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.buffer = nil
}
