// Package ws provides the websocket job-status feed. The producer pushes a
// JobStatus frame after every accumulated delta and on terminal transitions;
// connected clients use the frames as the live half of their reconciliation
// input.
package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Connection represents a single WebSocket connection subscribed to one chat.
type Connection struct {
	ID     string
	ChatID string
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub manages all WebSocket connections.
type Hub struct {
	// Connections indexed by connection ID
	connections map[string]*Connection

	// chats maps chat_id to set of connection IDs
	chats map[string]map[string]bool

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *chatMessage

	mu sync.RWMutex
}

// chatMessage is used to broadcast a payload to a chat's subscribers.
type chatMessage struct {
	ChatID string
	Data   []byte
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		chats:       make(map[string]map[string]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		broadcast:   make(chan *chatMessage, 256),
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			if conn.ChatID != "" {
				if h.chats[conn.ChatID] == nil {
					h.chats[conn.ChatID] = make(map[string]bool)
				}
				h.chats[conn.ChatID][conn.ID] = true
			}
			h.mu.Unlock()
			log.Printf("INFO: connection registered: %s (chat: %s)", conn.ID, conn.ChatID)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				if conn.ChatID != "" && h.chats[conn.ChatID] != nil {
					delete(h.chats[conn.ChatID], conn.ID)
					if len(h.chats[conn.ChatID]) == 0 {
						delete(h.chats, conn.ChatID)
					}
				}
				close(conn.Send)
			}
			h.mu.Unlock()
			log.Printf("INFO: connection unregistered: %s", conn.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if connIDs, ok := h.chats[msg.ChatID]; ok {
				for connID := range connIDs {
					if conn, exists := h.connections[connID]; exists {
						select {
						case conn.Send <- msg.Data:
						default:
							// Buffer full, close the connection
							log.Printf("WARN: connection %s buffer full, closing", connID)
							go h.Unregister(conn)
						}
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// NewConnection creates a new connection for a chat subscription.
func (h *Hub) NewConnection(ws *websocket.Conn, chatID string) *Connection {
	return &Connection{
		ID:     uuid.New().String(),
		ChatID: chatID,
		Conn:   ws,
		Send:   make(chan []byte, 256),
	}
}

// Register registers a connection with the hub.
func (h *Hub) Register(conn *Connection) {
	h.register <- conn
}

// Unregister removes a connection from the hub.
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Publish marshals payload and broadcasts it to the chat's subscribers.
// Publish never blocks the caller: if the broadcast queue is full the frame
// is dropped, since a newer snapshot will follow shortly.
func (h *Hub) Publish(chatID string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: failed to marshal broadcast payload: %v", err)
		return
	}
	select {
	case h.broadcast <- &chatMessage{ChatID: chatID, Data: data}:
	default:
		log.Printf("WARN: broadcast queue full, dropping frame for chat %s", chatID)
	}
}

// Subscribers returns the number of live subscribers for a chat.
func (h *Hub) Subscribers(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.chats[chatID])
}
