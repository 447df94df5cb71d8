package handler

import (
	"encoding/json"
	"net/http"

	"github.com/axiagw/gateway/analyticsclient"
	"github.com/axiagw/gateway/middleware"
	"github.com/axiagw/gateway/modelrouter"
	"github.com/axiagw/gateway/stream"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// StreamHandler serves the bidirectional chat surface at WS /ws/chat,
// pumping client frames into the model router and the analytics
// dataset client and relaying results back through the connection's
// batching writer.
type StreamHandler struct {
	hub      *stream.Hub
	router   *modelrouter.Router
	datasets *analyticsclient.Client
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new stream handler. allowedOrigins mirrors
// the CORS allowlist so the websocket handshake enforces the same
// origin policy as the rest of the HTTP surface.
func NewStreamHandler(hub *stream.Hub, router *modelrouter.Router, datasets *analyticsclient.Client, allowedOrigins []string, logger zerolog.Logger) *StreamHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		origins[o] = true
	}

	return &StreamHandler{
		hub:      hub,
		router:   router,
		datasets: datasets,
		logger:   logger.With().Str("component", "stream_handler").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || origins[origin]
			},
		},
	}
}

// clientEnvelope is the wire shape of a client-originated frame: the
// type tag plus its raw, not-yet-typed payload.
type clientEnvelope struct {
	Type stream.FrameType `json:"type"`
	Data json.RawMessage  `json:"data"`
}

// Chat upgrades the request to a websocket connection and pumps
// inbound frames until the client disconnects or the connection is
// closed for a policy reason (idle timeout, backpressure).
func (h *StreamHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn, err := h.hub.Admit(ws, userID, acceptsCompression(r), []string{"default"})
	if err != nil {
		h.logger.Warn().Err(err).Msg("connection admission rejected")
		_ = ws.Close()
		return
	}

	h.logger.Info().Str("client_id", conn.ID).Str("user_id", userID).Msg("chat connection admitted")

	for {
		raw, err := conn.ReadMessage()
		if err != nil {
			h.logger.Debug().Err(err).Str("client_id", conn.ID).Msg("connection read loop ended")
			break
		}
		h.dispatch(r, conn, raw)
	}

	_ = conn.Close(websocket.CloseNormalClosure, "read loop ended")
}

func (h *StreamHandler) dispatch(r *http.Request, conn *stream.Conn, raw []byte) {
	var env clientEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		_ = conn.Send(stream.Frame{Type: stream.FrameError, Data: map[string]string{"message": "malformed frame"}, Bypass: true})
		return
	}

	switch env.Type {
	case stream.FrameChat:
		h.handleChat(r, conn, env.Data)
	case stream.FrameQueryData:
		h.handleQueryData(r, conn, env.Data)
	case stream.FrameGetDatasetInfo:
		h.handleDatasetInfo(r, conn)
	case stream.FrameClientHeartbeat:
		// Touch already happened in conn.ReadMessage; nothing else to do.
	default:
		_ = conn.Send(stream.Frame{Type: stream.FrameError, Data: map[string]string{"message": "unknown frame type"}, Bypass: true})
	}
}

func (h *StreamHandler) handleChat(r *http.Request, conn *stream.Conn, data json.RawMessage) {
	var frame stream.ChatClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		_ = conn.Send(stream.Frame{Type: stream.FrameError, Data: map[string]string{"message": "invalid chat frame"}, Bypass: true})
		return
	}

	in := modelrouter.ChatInput{
		Content:        frame.Message,
		ConversationID: frame.ConversationID,
		Context:        frame.Context,
		Stream:         frame.Stream,
	}

	if !frame.Stream {
		out := h.router.Dispatch(r.Context(), in)
		_ = conn.Send(stream.Frame{Type: stream.FrameResponse, Data: map[string]interface{}{
			"content":         out.Content,
			"variant":         out.Variant,
			"cache_hit":       out.CacheHit,
			"conversation_id": frame.ConversationID,
		}})
		return
	}

	respStream, variant, err := h.router.DispatchStream(r.Context(), in)
	if err != nil {
		_ = conn.Send(stream.Frame{Type: stream.FrameError, Data: map[string]string{"message": "upstream streaming error"}, Bypass: true})
		return
	}
	defer respStream.Close()

	_ = conn.Send(stream.Frame{Type: stream.FrameTyping, Data: map[string]string{"variant": string(variant)}, Bypass: true})
	for {
		chunk, err := respStream.Next()
		if err != nil {
			break
		}
		_ = conn.Send(stream.Frame{Type: stream.FrameStream, Data: map[string]string{"delta": string(chunk)}})
	}
	_ = conn.Send(stream.Frame{Type: stream.FrameStreamEnd, Data: map[string]string{"conversation_id": frame.ConversationID}, Bypass: true})
}

func (h *StreamHandler) handleQueryData(r *http.Request, conn *stream.Conn, data json.RawMessage) {
	var frame stream.QueryDataClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		_ = conn.Send(stream.Frame{Type: stream.FrameError, Data: map[string]string{"message": "invalid query_data frame"}, Bypass: true})
		return
	}

	result, err := h.datasets.Query(r.Context(), frame.Query)
	if err != nil {
		_ = conn.Send(stream.Frame{Type: stream.FrameError, Data: map[string]string{"message": "analytics query failed"}, Bypass: true})
		return
	}
	_ = conn.Send(stream.Frame{Type: stream.FrameDataResult, Data: result})
}

func (h *StreamHandler) handleDatasetInfo(r *http.Request, conn *stream.Conn) {
	health := h.datasets.HealthCheck(r.Context())
	_ = conn.Send(stream.Frame{Type: stream.FrameDatasetInfo, Data: map[string]interface{}{
		"healthy": health.Healthy,
		"latency_ms": health.Latency.Milliseconds(),
	}})
}

func acceptsCompression(r *http.Request) bool {
	for _, v := range r.Header.Values("Sec-WebSocket-Extensions") {
		if v != "" {
			return true
		}
	}
	return r.URL.Query().Get("compression") == "1"
}
