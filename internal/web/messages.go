package web

// Message types
const (
	// Server to client
	MessageTypeMessage      = "message"
	MessageTypeConnected    = "connected"
	MessageTypeDisconnected = "disconnected"
	MessageTypeSent         = "sent"
	MessageTypeStatus       = "status"
	MessageTypeError        = "error"

	// Client to server
	MessageTypeSend        = "send"
	MessageTypeShareRoster = "share_roster"
	MessageTypeResetPeers  = "reset_peers"
	MessageTypeGetStatus   = "get_status"
)

// WebMessage represents a message sent over WebSocket
type WebMessage struct {
	Type      string      `json:"type"`
	Sender    string      `json:"sender,omitempty"`
	Body      string      `json:"body,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	AckID     uint64      `json:"ack_id,omitempty"`
	Relayed   bool        `json:"relayed,omitempty"`
	Reached   int         `json:"reached,omitempty"`
	Error     string      `json:"error,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}
