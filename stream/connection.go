package stream

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrBackpressure is returned (and the connection closed) when a
// client's outbound batch buffer would exceed the queued-frame limit.
var ErrBackpressure = errors.New("client outbound queue exceeded backpressure limit")

const backpressureLimit = 1000

// CompressionThreshold is the payload size, in bytes, above which a
// frame is sent compressed (when the peer supports it).
const CompressionThreshold = 1024

// Close codes used by the stream surface, beyond the standard set.
const (
	CloseCodePolicyViolation = 1008
	CloseCodeBackpressure    = 1009
	CloseCodeTryAgainLater   = 1013
)

// Conn is one admitted bidirectional stream connection.
type Conn struct {
	ID                 string
	ws                 *websocket.Conn
	acceptsCompression bool

	mu           sync.Mutex
	groups       map[string]struct{}
	lastActivity time.Time
	closed       bool

	dedup   *dedupCache
	batch   *batcher
	writeMu sync.Mutex

	onClose func(c *Conn)
}

// NewConn wraps an accepted websocket connection with the fabric's
// state: dedup cache, batcher, and group membership.
func NewConn(id string, ws *websocket.Conn, acceptsCompression bool, initialGroups []string) *Conn {
	c := &Conn{
		ID:                 id,
		ws:                 ws,
		acceptsCompression: acceptsCompression,
		groups:             make(map[string]struct{}),
		lastActivity:       time.Now(),
		dedup:              newDedupCache(),
	}
	for _, g := range initialGroups {
		c.groups[g] = struct{}{}
	}
	if len(c.groups) == 0 {
		c.groups["default"] = struct{}{}
	}
	c.batch = newBatcher(c.flushBatch)
	return c
}

// Touch records activity, extending the idle TTL.
func (c *Conn) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity reports the last recorded activity time.
func (c *Conn) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// JoinGroup adds the connection to a routing group.
func (c *Conn) JoinGroup(group string) {
	c.mu.Lock()
	c.groups[group] = struct{}{}
	c.mu.Unlock()
}

// LeaveGroup removes the connection from a routing group.
func (c *Conn) LeaveGroup(group string) {
	c.mu.Lock()
	delete(c.groups, group)
	c.mu.Unlock()
}

// InGroup reports whether the connection belongs to group.
func (c *Conn) InGroup(group string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.groups[group]
	return ok
}

// Groups returns a snapshot of joined groups.
func (c *Conn) Groups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.groups))
	for g := range c.groups {
		out = append(out, g)
	}
	return out
}

// Send routes f through the batcher, unless it carries the bypass
// flag in which case it is written immediately and skips dedup.
func (c *Conn) Send(f Frame) error {
	if c.isClosed() {
		return errors.New("connection closed")
	}
	if f.Bypass {
		return c.writeFrame(f)
	}
	if c.batch.QueuedLen() >= backpressureLimit {
		_ = c.Close(CloseCodeBackpressure, "outbound queue exceeded limit")
		return ErrBackpressure
	}
	c.batch.Add(f)
	return nil
}

// flushBatch is the batcher's flush callback: it deduplicates by
// content hash, then sends the survivors as a single frame (if only
// one remains) or a wrapped batch frame (if more than one).
func (c *Conn) flushBatch(frames []Frame) {
	survivors := make([]Frame, 0, len(frames))
	for _, f := range frames {
		raw, err := json.Marshal(f)
		if err != nil {
			continue
		}
		if c.dedup.Seen(contentHash(raw)) {
			continue
		}
		survivors = append(survivors, f)
	}
	if len(survivors) == 0 {
		return
	}
	if len(survivors) == 1 {
		_ = c.writeFrame(survivors[0])
		return
	}
	_ = c.writeFrame(BatchFrame{Type: FrameBatch, Messages: survivors})
}

func (c *Conn) writeFrame(f interface{}) error {
	payload, binary, err := encodeFrame(f, CompressionThreshold, c.acceptsCompression)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if binary {
		return c.ws.WriteMessage(websocket.BinaryMessage, payload)
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close marks the connection closed, drops its batch buffer and dedup
// cache, sends a final close frame with the given code, and notifies
// the registered close hook (used by the Hub to release the
// admission permit and remove group membership).
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.batch.Close()

	c.writeMu.Lock()
	deadline := time.Now().Add(time.Second)
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	closeErr := c.ws.Close()
	c.writeMu.Unlock()

	if c.onClose != nil {
		c.onClose(c)
	}
	return closeErr
}

// ReadMessage blocks for the next client-originated message, touching
// the idle-activity clock on success. The caller owns unmarshaling —
// this package only knows the envelope, not per-type client payloads.
func (c *Conn) ReadMessage() ([]byte, error) {
	_, payload, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	c.Touch()
	return payload, nil
}
