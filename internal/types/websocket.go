package types

import "time"

// WsState is the lifecycle state of the WebSocket session
type WsState int

const (
	WsUninitialized WsState = iota
	WsConnecting
	WsOpen
	WsClosed
)

func (s WsState) String() string {
	switch s {
	case WsUninitialized:
		return "uninitialized"
	case WsConnecting:
		return "connecting"
	case WsOpen:
		return "open"
	case WsClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// WsDirection tells who produced a log entry
type WsDirection string

const (
	WsSent     WsDirection = "sent"
	WsReceived WsDirection = "received"
	WsSystem   WsDirection = "system"
	WsError    WsDirection = "error"
)

// WsMessage is one entry of the session's shared message log
type WsMessage struct {
	Direction WsDirection `json:"direction"`
	Type      string      `json:"type"` // "text" | "binary" | "ping" | "pong" | "close" | "system"
	Content   string      `json:"content"`
	Size      int         `json:"size,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
