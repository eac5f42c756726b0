package broadcast

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"github.com/example/docshare/domain/share"
)

// Frame is the envelope written to WebSocket clients.
type Frame struct {
	Type    string         `json:"type"`
	RoomID  string         `json:"room_id,omitempty"`
	Message *share.Message `json:"message,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

// Frame types.
const (
	FrameMessage    = "message"
	FrameRoomClosed = "room_closed"
)

// Conn is the writable side of a WebSocket connection.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one WebSocket connection attached to a single room for its
// whole lifetime. Re-entering a room means a new connection.
type Client struct {
	ID     string
	UserID string
	RoomID string
	Conn   Conn

	writeMu sync.Mutex
}

// Write sends one text frame. The connection permits a single writer
// at a time, so the hub loop and the connection's reader goroutine
// both write through this lock.
func (c *Client) Write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

// WriteJSON marshals v and sends it as one text frame.
func (c *Client) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Write(data)
}

// Hub fans committed messages out to the WebSocket connections of each
// room. Delivery order follows the commit events it consumes.
type Hub struct {
	clients    map[string]*Client
	rooms      map[string]map[string]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Frame
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Frame, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop. It accepts a context for graceful shutdown.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Println("[hub] Shutting down...")
			h.closeAllClients()
			close(h.done)
			return
		case client := <-h.register:
			h.handleRegister(client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case frame := <-h.broadcast:
			h.handleBroadcast(frame)
		}
	}
}

// Wait blocks until the hub has stopped.
func (h *Hub) Wait() {
	<-h.done
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		_ = client.Conn.Close()
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]bool)
}

func (h *Hub) handleRegister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	if h.rooms[client.RoomID] == nil {
		h.rooms[client.RoomID] = make(map[string]bool)
	}
	h.rooms[client.RoomID][client.ID] = true
	log.Printf("[hub] Client %s attached to room %s", client.ID, client.RoomID)
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(client.ID)
}

func (h *Hub) detachLocked(clientID string) {
	client, ok := h.clients[clientID]
	if !ok {
		return
	}
	delete(h.clients, clientID)
	if h.rooms[client.RoomID] != nil {
		delete(h.rooms[client.RoomID], clientID)
		if len(h.rooms[client.RoomID]) == 0 {
			delete(h.rooms, client.RoomID)
		}
	}
	log.Printf("[hub] Client %s detached from room %s", clientID, client.RoomID)
}

func (h *Hub) handleBroadcast(frame *Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("[hub] Failed to marshal frame: %v", err)
		return
	}

	for clientID := range h.rooms[frame.RoomID] {
		if client, ok := h.clients[clientID]; ok {
			h.sendToClient(client, data)
		}
	}
}

func (h *Hub) sendToClient(client *Client, data []byte) {
	if err := client.Write(data); err != nil {
		log.Printf("[hub] Failed to send to client %s: %v", client.ID, err)
	}
}

// Register attaches a client to its room.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister detaches a client.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastMessage delivers a committed message to the room's clients.
func (h *Hub) BroadcastMessage(msg share.Message) {
	h.broadcast <- &Frame{
		Type:    FrameMessage,
		RoomID:  msg.RoomID,
		Message: &msg,
	}
}

// CloseRoom tells a room's clients the room is gone and evicts them.
// The closing notice itself was already delivered as an ordinary
// message before the room deactivated.
func (h *Hub) CloseRoom(roomID, reason string) {
	data, err := json.Marshal(&Frame{Type: FrameRoomClosed, RoomID: roomID, Reason: reason})
	if err != nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for clientID := range h.rooms[roomID] {
		client, ok := h.clients[clientID]
		if !ok {
			continue
		}
		h.sendToClient(client, data)
		_ = client.Conn.Close()
		delete(h.clients, clientID)
	}
	delete(h.rooms, roomID)
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomClientCount returns the number of clients attached to a room.
func (h *Hub) RoomClientCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}
