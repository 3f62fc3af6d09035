package web

import (
	"sync"

	"github.com/codefionn/wifichat/internal/actor"
	"github.com/codefionn/wifichat/internal/consts"
	"github.com/codefionn/wifichat/internal/logger"
	"github.com/codefionn/wifichat/internal/metrics"
	"github.com/codefionn/wifichat/internal/wire"
)

// Hub maintains the set of active clients and broadcasts chat events to
// them. It is the browser side of the connection actor's UI.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *WebMessage
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	quit       chan struct{}
	stopOnce   sync.Once
	log        *logger.Logger
}

var _ actor.UI = (*Hub)(nil)

// NewHub creates a new hub
func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Component("web")
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *WebMessage, consts.WebSendBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		quit:       make(chan struct{}),
		log:        log,
	}
}

// Run starts the hub
func (h *Hub) Run() {
	h.log.Debug("websocket hub started")
	defer h.log.Debug("websocket hub stopped")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			metrics.WebClients.Set(float64(len(h.clients)))
			h.mu.Unlock()
			h.log.Debug("client registered: %s", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			h.log.Debug("client unregistered: %s", client.ID)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client, drop it
					h.remove(client)
				}
			}
			h.mu.Unlock()

		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		metrics.WebClients.Set(float64(len(h.clients)))
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.quit)
	})
}

// Register registers a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
		close(client.send)
	}
}

// Unregister unregisters a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// Broadcast broadcasts a message to all clients
func (h *Hub) Broadcast(message *WebMessage) {
	select {
	case h.broadcast <- message:
	default:
		h.log.Warn("broadcast channel full, dropping %s event", message.Type)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnMessageReceived implements actor.UI.
func (h *Hub) OnMessageReceived(row wire.Row) {
	h.Broadcast(&WebMessage{
		Type:      MessageTypeMessage,
		Sender:    row.Sender,
		Body:      row.Body,
		Timestamp: row.Timestamp,
	})
}

// OnConnectionEstablished implements actor.UI.
func (h *Hub) OnConnectionEstablished() {
	h.Broadcast(&WebMessage{Type: MessageTypeConnected})
}

// OnConnectionLost implements actor.UI.
func (h *Hub) OnConnectionLost() {
	h.Broadcast(&WebMessage{Type: MessageTypeDisconnected})
}
