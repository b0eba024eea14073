package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/ZacxDev/video-compositor/pkg/types"
	"github.com/gofiber/contrib/websocket"
)

// WebSocket message types
const (
	MessageTypeState  = "state"
	MessageTypeExport = "export"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
)

// Message is the JSON envelope of every text frame
type Message struct {
	Type string `json:"type"`
}

// StateMessage announces a session state transition
type StateMessage struct {
	Type  string             `json:"type"`
	State types.SessionState `json:"state"`
}

// ExportMessage reports the progress of an export job
type ExportMessage struct {
	Type   string             `json:"type"`
	Status types.ExportStatus `json:"status"`
	Result interface{}        `json:"result,omitempty"`
	Error  string             `json:"error,omitempty"`
}

type outbound struct {
	kind int
	data []byte
}

// Client is one connected preview viewer
type Client struct {
	Conn *websocket.Conn
	Send chan outbound
}

// Hub fans preview frames and events out to every connected client
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan outbound
	done       chan struct{}

	logger *slog.Logger
	mu     sync.RWMutex
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan outbound, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("preview client registered", slog.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("preview client unregistered", slog.Int("clients", n))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.Send <- msg:
				default:
					// A slow viewer skips preview frames but must not miss events.
					if msg.kind == websocket.BinaryMessage {
						continue
					}
					close(client.Send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// reply queues a message for one client, unless the hub already dropped it
func (h *Hub) reply(client *Client, msg outbound) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.Send <- msg:
	default:
	}
}

// Len returns the number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastFrame sends one encoded preview frame. It is dropped when the hub is backed up.
func (h *Hub) BroadcastFrame(jpeg []byte) {
	select {
	case h.broadcast <- outbound{kind: websocket.BinaryMessage, data: jpeg}:
	default:
	}
}

// BroadcastState announces a session state change
func (h *Hub) BroadcastState(state types.SessionState) {
	h.broadcastJSON(StateMessage{Type: MessageTypeState, State: state})
}

// BroadcastExport reports an export status change
func (h *Hub) BroadcastExport(status types.ExportStatus, result interface{}, err error) {
	msg := ExportMessage{Type: MessageTypeExport, Status: status, Result: result}
	if err != nil {
		msg.Error = err.Error()
	}
	h.broadcastJSON(msg)
}

func (h *Hub) broadcastJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("failed to marshal message", slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- outbound{kind: websocket.TextMessage, data: data}:
	case <-h.done:
	}
}

// HandleConnection serves a websocket until the peer goes away
func (h *Hub) HandleConnection(c *websocket.Conn) {
	client := &Client{
		Conn: c,
		Send: make(chan outbound, 16),
	}

	h.Register(client)
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case msg, ok := <-client.Send:
				if !ok {
					_ = c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(msg.kind, msg.data); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket error", slog.String("error", err.Error()))
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == MessageTypePing {
			data, _ := json.Marshal(Message{Type: MessageTypePong})
			h.reply(client, outbound{kind: websocket.TextMessage, data: data})
		}
	}
}
