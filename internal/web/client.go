package web

import (
	"context"
	"encoding/json"
	"time"

	"github.com/codefionn/wifichat/internal/consts"
	"github.com/codefionn/wifichat/internal/logger"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

// Client represents a WebSocket client
type Client struct {
	ID      string
	hub     *Hub
	conn    *websocket.Conn
	send    chan *WebMessage
	backend Backend
	log     *logger.Logger
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, backend Backend, log *logger.Logger) *Client {
	id := uuid.NewString()
	if log == nil {
		log = logger.Component("web")
	}
	return &Client{
		ID:      id,
		hub:     hub,
		conn:    conn,
		send:    make(chan *WebMessage, consts.WebSendBuffer),
		backend: backend,
		log:     log.WithPrefix(id[:8]),
	}
}

// ReadPump pumps messages from the WebSocket connection to the backend
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket read error: %v", err)
			}
			break
		}

		var msg WebMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			c.log.Warn("failed to unmarshal message: %v", err)
			c.sendResponse(&WebMessage{Type: MessageTypeError, Error: "invalid message"})
			continue
		}

		c.log.Debug("websocket received: %s", msg.Type)
		c.handleMessage(&msg)
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.log.Error("failed to marshal message: %v", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.log.Debug("failed to write message: %v", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles incoming messages from the client
func (c *Client) handleMessage(msg *WebMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), consts.DefaultRequestTimeout)
	defer cancel()

	switch msg.Type {
	case MessageTypeSend:
		res, err := c.backend.SubmitOutgoingMessage(ctx, msg.Body)
		if err != nil {
			c.sendResponse(&WebMessage{Type: MessageTypeError, Body: msg.Body, Error: err.Error()})
			return
		}
		c.sendResponse(&WebMessage{
			Type:    MessageTypeSent,
			Body:    msg.Body,
			AckID:   res.AckID,
			Relayed: res.Relayed,
			Reached: res.Reached,
		})

	case MessageTypeShareRoster:
		if err := c.backend.ShareRoster(ctx); err != nil {
			c.sendResponse(&WebMessage{Type: MessageTypeError, Error: err.Error()})
		}

	case MessageTypeResetPeers:
		if err := c.backend.ResetPeers(ctx); err != nil {
			c.sendResponse(&WebMessage{Type: MessageTypeError, Error: err.Error()})
		}

	case MessageTypeGetStatus:
		status, err := c.backend.Status(ctx)
		if err != nil {
			c.sendResponse(&WebMessage{Type: MessageTypeError, Error: err.Error()})
			return
		}
		c.sendResponse(&WebMessage{Type: MessageTypeStatus, Data: status})

	default:
		c.log.Warn("unknown message type: %s", msg.Type)
		c.sendResponse(&WebMessage{Type: MessageTypeError, Error: "unknown message type " + msg.Type})
	}
}

// sendResponse sends a response message to this client only
func (c *Client) sendResponse(msg *WebMessage) {
	defer func() {
		// send is closed once the hub drops the client
		_ = recover()
	}()
	select {
	case c.send <- msg:
	default:
		c.log.Warn("client send channel full, dropping message")
	}
}
