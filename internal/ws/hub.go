// Package ws pushes engine and authoring events to org-scoped
// websocket subscribers.
package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MessageType represents the type of a hub payload.
type MessageType string

const (
	MessageTriggerFired         MessageType = "TriggerFired"
	MessageRulePublished        MessageType = "RulePublished"
	MessageRuleArchived         MessageType = "RuleArchived"
	MessageBusinessHoursUpdated MessageType = "BusinessHoursUpdated"
)

// Event is the envelope every broadcast carries.
type Event struct {
	Type      MessageType `json:"type"`
	OrgID     string      `json:"org_id"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data,omitempty"`
}

type outbound struct {
	orgID   string
	payload []byte
}

// Hub owns the client set. All mutation happens on the Run goroutine;
// the channels are the only way in.
type Hub struct {
	clients map[*Client]struct{}
	join    chan *Client
	leave   chan *Client
	send    chan outbound
}

// NewHub builds a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		join:    make(chan *Client),
		leave:   make(chan *Client),
		send:    make(chan outbound),
	}
}

// Run processes membership changes and broadcasts until the process
// exits.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.join:
			h.clients[client] = struct{}{}
		case client := <-h.leave:
			h.drop(client)
		case msg := <-h.send:
			h.fanout(msg)
		}
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.Send)
	}
}

// fanout delivers to every subscriber of the message's org. A client
// whose send buffer is full is dropped rather than allowed to stall
// the hub.
func (h *Hub) fanout(msg outbound) {
	for client := range h.clients {
		if client.OrgID() != msg.orgID {
			continue
		}
		select {
		case client.Send <- msg.payload:
		default:
			h.drop(client)
		}
	}
}

// Register adds a client to the hub.
func (h *Hub) Register(c *Client) {
	h.join <- c
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) {
	h.leave <- c
}

// Broadcast sends a raw payload to all clients in an org.
func (h *Hub) Broadcast(orgID string, payload []byte) {
	h.send <- outbound{orgID: orgID, payload: payload}
}

// BroadcastEvent wraps data in the typed envelope and broadcasts it.
func (h *Hub) BroadcastEvent(orgID string, messageType MessageType, data any) {
	payload, err := json.Marshal(Event{
		Type:      messageType,
		OrgID:     orgID,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		log.Printf("warning: failed to marshal %s event: %v", messageType, err)
		return
	}
	h.Broadcast(orgID, payload)
}

// Client is one websocket connection. Its org subscription may change
// over the connection's lifetime, so reads go through a lock.
type Client struct {
	Conn *websocket.Conn
	Hub  *Hub
	Send chan []byte

	mu    sync.RWMutex
	orgID string
}

// NewClient returns a client ready for registration.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		Conn: conn,
		Hub:  hub,
		Send: make(chan []byte, 256),
	}
}

// OrgID returns the current org subscription, "" when unsubscribed.
func (c *Client) OrgID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.orgID
}

// SetOrgID updates the org subscription.
func (c *Client) SetOrgID(orgID string) {
	c.mu.Lock()
	c.orgID = orgID
	c.mu.Unlock()
}
