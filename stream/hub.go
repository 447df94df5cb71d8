package stream

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	heartbeatInterval = 30 * time.Second
	cleanupInterval   = 5 * time.Minute
	idleTTL           = 30 * time.Minute
)

// Hub owns the connection table: admission, group membership,
// broadcast fan-out, heartbeats, and idle cleanup.
type Hub struct {
	logger zerolog.Logger
	pool   *AdmissionPool

	mu          sync.RWMutex
	connections map[string]*Conn

	heartbeats map[string]context.CancelFunc

	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(logger zerolog.Logger, capacity int) *Hub {
	return &Hub{
		logger:      logger.With().Str("component", "stream_hub").Logger(),
		pool:        NewAdmissionPool(capacity),
		connections: make(map[string]*Conn),
		heartbeats:  make(map[string]context.CancelFunc),
		done:        make(chan struct{}),
	}
}

// Start begins the background idle-cleanup loop.
func (h *Hub) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go h.cleanupLoop(ctx)
}

// Stop cancels the cleanup loop and every connection's heartbeat.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
	<-h.done

	h.mu.Lock()
	for _, stop := range h.heartbeats {
		stop()
	}
	h.mu.Unlock()
}

// Admit registers an accepted websocket connection, assigning a
// client id if none was supplied. Returns ErrPoolFull if the
// admission pool is at capacity, without registering anything.
func (h *Hub) Admit(ws *websocket.Conn, clientID string, acceptsCompression bool, groups []string) (*Conn, error) {
	if err := h.pool.Acquire(); err != nil {
		return nil, err
	}

	if clientID == "" {
		clientID = uuid.NewString()
	}

	conn := NewConn(clientID, ws, acceptsCompression, groups)
	conn.onClose = h.handleClose

	h.mu.Lock()
	h.connections[clientID] = conn
	ctx, cancel := context.WithCancel(context.Background())
	h.heartbeats[clientID] = cancel
	h.mu.Unlock()

	go h.heartbeatLoop(ctx, conn)

	welcome := bypassFrame(FrameConnection, ConnectionInfo{
		ClientID:   clientID,
		Groups:     conn.Groups(),
		ServerTime: time.Now(),
	})
	_ = conn.Send(welcome)

	h.logger.Info().Str("client_id", clientID).Int("active", h.pool.Active()).Msg("connection admitted")
	return conn, nil
}

// handleClose is invoked by a Conn when it closes: it stops the
// connection's heartbeat, removes it from the table, and releases its
// admission permit.
func (h *Hub) handleClose(c *Conn) {
	h.mu.Lock()
	delete(h.connections, c.ID)
	if stop, ok := h.heartbeats[c.ID]; ok {
		stop()
		delete(h.heartbeats, c.ID)
	}
	h.mu.Unlock()
	h.pool.Release()
}

func (h *Hub) heartbeatLoop(ctx context.Context, c *Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Send(bypassFrame(FrameHeartbeat, nil)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) cleanupLoop(ctx context.Context) {
	defer close(h.done)
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sweepIdle()
		}
	}
}

func (h *Hub) sweepIdle() {
	now := time.Now()
	h.mu.RLock()
	var idle []*Conn
	for _, c := range h.connections {
		if now.Sub(c.LastActivity()) > idleTTL {
			idle = append(idle, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range idle {
		_ = c.Send(bypassFrame(FrameDisconnect, map[string]string{"reason": "idle timeout"}))
		_ = c.Close(websocket.CloseNormalClosure, "idle timeout")
		h.logger.Info().Str("client_id", c.ID).Msg("disconnected idle client")
	}
}

// Broadcast fans a frame out to every connection in group in parallel,
// one goroutine per target. It returns only after every send has
// completed or failed; a target whose Send fails is disconnected.
func (h *Hub) Broadcast(group string, f Frame) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.connections))
	for _, c := range h.connections {
		if c.InGroup(group) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	var wg sync.WaitGroup
	wg.Add(len(targets))
	for _, c := range targets {
		go func(c *Conn) {
			defer wg.Done()
			if err := c.Send(f); err != nil {
				h.logger.Warn().Str("client_id", c.ID).Err(err).Msg("broadcast send failed, disconnecting")
				_ = c.Close(websocket.CloseInternalServerErr, "broadcast send failed")
			}
		}(c)
	}
	wg.Wait()
}

// Get returns the connection for a client id, if still admitted.
func (h *Hub) Get(clientID string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.connections[clientID]
	return c, ok
}

// ActiveCount reports the number of currently admitted connections.
func (h *Hub) ActiveCount() int {
	return h.pool.Active()
}
