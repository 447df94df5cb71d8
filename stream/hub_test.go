package stream

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestHubServer(t *testing.T, hub *Hub) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn, err := hub.Admit(ws, "", false, []string{"default"})
		if err != nil {
			_ = ws.Close()
			return
		}
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				_ = conn.Close(websocket.CloseNormalClosure, "client gone")
				return
			}
			conn.Touch()
		}
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return ws
}

func TestHubAdmitSendsWelcomeFrame(t *testing.T) {
	hub := NewHub(zerolog.New(io.Discard), 10)
	hub.Start()
	defer hub.Stop()

	srv, wsURL := newTestHubServer(t, hub)
	defer srv.Close()

	ws := dial(t, wsURL)
	defer ws.Close()

	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), `"connection"`)
	require.Equal(t, 1, hub.ActiveCount())
}

func TestHubBroadcastDeliversToGroupMembers(t *testing.T) {
	hub := NewHub(zerolog.New(io.Discard), 10)
	hub.Start()
	defer hub.Stop()

	srv, wsURL := newTestHubServer(t, hub)
	defer srv.Close()

	ws := dial(t, wsURL)
	defer ws.Close()

	_, _, err := ws.ReadMessage() // welcome
	require.NoError(t, err)

	hub.Broadcast("default", Frame{Type: FrameResponse, Data: "hi"})

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), "\"response\"")
}

func TestHubBroadcastDeliversToAllTargetsInParallel(t *testing.T) {
	hub := NewHub(zerolog.New(io.Discard), 10)
	hub.Start()
	defer hub.Stop()

	srv, wsURL := newTestHubServer(t, hub)
	defer srv.Close()

	const n = 5
	conns := make([]*websocket.Conn, n)
	for i := 0; i < n; i++ {
		ws := dial(t, wsURL)
		defer ws.Close()
		_, _, err := ws.ReadMessage() // welcome
		require.NoError(t, err)
		conns[i] = ws
	}
	require.Equal(t, n, hub.ActiveCount())

	start := time.Now()
	hub.Broadcast("default", Frame{Type: FrameResponse, Data: "hi"})
	elapsed := time.Since(start)
	require.Less(t, elapsed, 500*time.Millisecond)

	for _, ws := range conns {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := ws.ReadMessage()
		require.NoError(t, err)
		require.Contains(t, string(msg), "\"response\"")
	}
}

func TestHubBroadcastAfterForcedCloseReleasesPermit(t *testing.T) {
	hub := NewHub(zerolog.New(io.Discard), 10)
	hub.Start()
	defer hub.Stop()

	srv, wsURL := newTestHubServer(t, hub)
	defer srv.Close()

	ws := dial(t, wsURL)
	defer ws.Close()
	_, welcome, err := ws.ReadMessage() // welcome
	require.NoError(t, err)
	require.Equal(t, 1, hub.ActiveCount())

	var envelope struct {
		Data ConnectionInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(welcome, &envelope))

	conn, ok := hub.Get(envelope.Data.ClientID)
	require.True(t, ok)
	require.NoError(t, conn.Close(websocket.CloseNormalClosure, "forced for test"))

	hub.Broadcast("default", Frame{Type: FrameResponse, Data: "hi"})

	require.Eventually(t, func() bool {
		return hub.ActiveCount() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHubReleasesPermitOnClose(t *testing.T) {
	hub := NewHub(zerolog.New(io.Discard), 10)
	hub.Start()
	defer hub.Stop()

	srv, wsURL := newTestHubServer(t, hub)
	defer srv.Close()

	ws := dial(t, wsURL)
	_, _, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, 1, hub.ActiveCount())

	require.NoError(t, ws.Close())

	require.Eventually(t, func() bool {
		return hub.ActiveCount() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestHubRefusesBeyondCapacity(t *testing.T) {
	hub := NewHub(zerolog.New(io.Discard), 1)
	hub.Start()
	defer hub.Stop()

	srv, wsURL := newTestHubServer(t, hub)
	defer srv.Close()

	first := dial(t, wsURL)
	defer first.Close()
	_, _, err := first.ReadMessage()
	require.NoError(t, err)

	second := dial(t, wsURL)
	defer second.Close()
	_, _, err = second.ReadMessage()
	require.Error(t, err) // server closed the upgraded connection without admitting
}
