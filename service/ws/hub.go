package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is the envelope for every frame pushed over a websocket connection.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID uint
}

// Hub owns all live websocket connections: the per-user presence map and the
// per-consultant topic subscriptions. It is created at server start and torn
// down at shutdown; nothing in it is persisted.
type Hub struct {
	mu              sync.RWMutex
	clients         map[uint]*Client
	consultantRooms map[uint]map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		clients:         make(map[uint]*Client),
		consultantRooms: make(map[uint]map[*Client]bool),
	}
}

// Register adds a client to the presence map and reports whether it replaced
// an existing connection for the same user. The replaced connection's Send
// channel is closed, which makes its WritePump exit and close the socket.
func (h *Hub) Register(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	old, replaced := h.clients[client.UserID]
	if replaced && old != client {
		close(old.Send)
		h.removeFromRoomsLocked(old)
	}
	h.clients[client.UserID] = client
	return replaced
}

// Unregister removes a client from the presence map and every consultant
// topic it joined.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.clients[client.UserID]; ok && current == client {
		delete(h.clients, client.UserID)
		close(client.Send)
	}
	h.removeFromRoomsLocked(client)
}

func (h *Hub) removeFromRoomsLocked(client *Client) {
	for consultantID, members := range h.consultantRooms {
		if members[client] {
			delete(members, client)
			if len(members) == 0 {
				delete(h.consultantRooms, consultantID)
			}
		}
	}
}

func (h *Hub) IsOnline(userID uint) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// JoinConsultantRoom subscribes a connection to a consultant's topic so it
// receives new-query and update-query events.
func (h *Hub) JoinConsultantRoom(consultantID uint, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.consultantRooms[consultantID]
	if !ok {
		members = make(map[*Client]bool)
		h.consultantRooms[consultantID] = members
	}
	members[client] = true
}

// SendToUser delivers an event to a single user if connected. Returns whether
// a delivery was attempted; disconnected recipients are skipped silently.
func (h *Hub) SendToUser(userID uint, event string, data interface{}) bool {
	h.mu.RLock()
	client, ok := h.clients[userID]
	h.mu.RUnlock()

	if !ok {
		return false
	}
	h.deliver(client, event, data)
	return true
}

// EmitToConsultant publishes an event on a consultant's topic. Events to
// topics with no subscribers are dropped.
func (h *Hub) EmitToConsultant(consultantID uint, event string, data interface{}) {
	h.mu.RLock()
	members := make([]*Client, 0, len(h.consultantRooms[consultantID]))
	for client := range h.consultantRooms[consultantID] {
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		h.deliver(client, event, data)
	}
}

// Broadcast sends an event to every connected client.
func (h *Hub) Broadcast(event string, data interface{}) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		h.deliver(client, event, data)
	}
}

// deliver queues an event for one client. The send happens under the read
// lock after re-checking that this exact client is still registered: Send is
// only ever closed under the write lock together with its removal from the
// map, so a registered client's channel cannot close mid-send.
func (h *Hub) deliver(client *Client, event string, data interface{}) {
	payload, err := json.Marshal(Event{Event: event, Data: data})
	if err != nil {
		log.Printf("error marshaling %s event: %v", event, err)
		return
	}

	h.mu.RLock()
	current := h.clients[client.UserID] == client
	if current {
		select {
		case client.Send <- payload:
			h.mu.RUnlock()
			return
		default:
		}
	}
	h.mu.RUnlock()

	if current {
		// Slow consumer, drop the connection.
		h.Unregister(client)
	}
}

// Close tears down every connection. Called on server shutdown; each
// WritePump closes its own socket when its Send channel closes.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, client := range h.clients {
		close(client.Send)
		delete(h.clients, userID)
	}
	h.consultantRooms = make(map[uint]map[*Client]bool)
}

// WritePump pumps queued events to the websocket connection and keeps it
// alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
