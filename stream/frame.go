// Package stream implements the connection & session fabric (C6): pool
// admission, per-client batching/compression/deduplication, fan-out
// broadcast, heartbeats, and idle cleanup over bidirectional
// websocket connections.
package stream

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/klauspost/compress/gzip"
)

// compressedPrefix marks a binary frame whose payload is gzip-compressed.
// 11 bytes, per the wire contract.
const compressedPrefix = "COMPRESSED:"

// FrameType identifies a stream frame's purpose.
type FrameType string

const (
	// Server-originated.
	FrameConnection FrameType = "connection"
	FrameTyping     FrameType = "typing"
	FrameStream     FrameType = "stream"
	FrameStreamEnd  FrameType = "stream_end"
	FrameResponse   FrameType = "response"
	FrameDataResult FrameType = "data_result"
	FrameDatasetInfo FrameType = "dataset_info"
	FrameError      FrameType = "error"
	FrameHeartbeat  FrameType = "heartbeat"
	FrameDisconnect FrameType = "disconnect"
	FrameBatch      FrameType = "batch"

	// Client-originated.
	FrameChat          FrameType = "chat"
	FrameQueryData     FrameType = "query_data"
	FrameGetDatasetInfo FrameType = "get_dataset_info"
	FrameClientHeartbeat FrameType = "heartbeat"
)

// Frame is a single stream message. Fields beyond Type are populated
// according to the documented per-type schema; callers type-assert or
// re-marshal Data as needed.
type Frame struct {
	Type FrameType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
	// Bypass marks a frame that must skip batching entirely (welcome,
	// heartbeat, typing indicator, error).
	Bypass bool `json:"-"`
}

func bypassFrame(typ FrameType, data interface{}) Frame {
	return Frame{Type: typ, Data: data, Bypass: true}
}

// BatchFrame wraps several frames sent together.
type BatchFrame struct {
	Type     FrameType `json:"type"`
	Messages []Frame   `json:"messages"`
}

// ChatClientFrame is the client-originated "chat" payload.
type ChatClientFrame struct {
	Message        string                 `json:"message"`
	Stream         bool                   `json:"stream,omitempty"`
	Context        map[string]interface{} `json:"context,omitempty"`
	ConversationID string                 `json:"conversation_id,omitempty"`
}

// QueryDataClientFrame is the client-originated "query_data" payload.
type QueryDataClientFrame struct {
	Query string `json:"query"`
}

// ConnectionInfo is the payload of the welcome "connection" frame.
type ConnectionInfo struct {
	ClientID  string    `json:"client_id"`
	Groups    []string  `json:"groups"`
	ServerTime time.Time `json:"server_time"`
}

// encodeFrame marshals a frame to its wire representation: if the JSON
// payload exceeds the compression threshold and the peer advertised
// compression support, gzip it and prefix with the 11-byte marker,
// returning (payload, binary=true); otherwise return raw JSON text.
func encodeFrame(f interface{}, compressThreshold int, peerAcceptsCompression bool) (payload []byte, binary bool, err error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, false, err
	}
	if len(raw) <= compressThreshold || !peerAcceptsCompression {
		return raw, false, nil
	}

	var buf bytes.Buffer
	buf.WriteString(compressedPrefix)
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, false, err
	}
	if err := gw.Close(); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), true, nil
}

// decodeFrame reverses encodeFrame: if payload starts with the
// compressed marker it is gunzipped first.
func decodeFrame(payload []byte) ([]byte, error) {
	if len(payload) >= len(compressedPrefix) && string(payload[:len(compressedPrefix)]) == compressedPrefix {
		gr, err := gzip.NewReader(bytes.NewReader(payload[len(compressedPrefix):]))
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		var out bytes.Buffer
		if _, err := out.ReadFrom(gr); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	}
	return payload, nil
}
