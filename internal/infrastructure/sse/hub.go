package sse

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/geocheckin/geocheckin/internal/domain/attendance"
)

// EventAttendance is the event name of an admitted check-in.
const EventAttendance = "attendance"

var (
	ErrClientNotFound = errors.New("sse client not found")
	ErrChannelFull    = errors.New("sse client channel full")
)

// Message is one server-sent event.
type Message struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a message with a fresh id.
func NewMessage(event string, data json.RawMessage) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Client is a host connection following one session.
type Client struct {
	ClientID    string
	SessionID   uuid.UUID
	ConnectedAt time.Time
	MessageChan chan *Message
}

// NewClient creates a client with a buffered channel.
func NewClient(clientID string, sessionID uuid.UUID) *Client {
	return &Client{
		ClientID:    clientID,
		SessionID:   sessionID,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *Message, 100),
	}
}

// Close closes the client's message channel.
func (c *Client) Close() {
	close(c.MessageChan)
}

// RecordEncoder renders a record as the event payload.
type RecordEncoder func(r *attendance.Record) ([]byte, error)

type clientKey struct {
	sessionID uuid.UUID
	clientID  string
}

func (c *Client) key() clientKey {
	return clientKey{sessionID: c.SessionID, clientID: c.ClientID}
}

// Hub manages SSE clients and fans attendance records out to the clients of
// the record's session. It implements attendance.Feed.
type Hub struct {
	mu      sync.RWMutex
	clients map[clientKey]*Client
	stopped bool
	encode  RecordEncoder
}

// NewHub creates a hub. A nil encoder marshals the record as is.
func NewHub(encode RecordEncoder) *Hub {
	if encode == nil {
		encode = func(r *attendance.Record) ([]byte, error) { return json.Marshal(r) }
	}
	return &Hub{
		clients: make(map[clientKey]*Client),
		encode:  encode,
	}
}

// Register adds client, replacing and closing any client with the same id on
// the same session. After Stop the client is closed immediately.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		client.Close()
		return
	}
	if old, ok := h.clients[client.key()]; ok && old != client {
		old.Close()
	}
	h.clients[client.key()] = client
}

// Unregister removes client if it is still the registered one for its key.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[client.key()]; ok && c == client {
		c.Close()
		delete(h.clients, client.key())
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToSession sends message to every client following sessionID.
// Clients whose buffer is full miss the message.
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, message *Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for k, c := range h.clients {
		if k.sessionID == sessionID && trySend(c, message) {
			sent++
		}
	}
	return sent
}

func (h *Hub) SendToClient(sessionID uuid.UUID, clientID string, message *Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.clients[clientKey{sessionID: sessionID, clientID: clientID}]
	if c == nil {
		return ErrClientNotFound
	}
	if !trySend(c, message) {
		return ErrChannelFull
	}
	return nil
}

// Publish broadcasts an admitted record to its session's followers.
func (h *Hub) Publish(r *attendance.Record) {
	data, err := h.encode(r)
	if err != nil {
		return
	}
	h.BroadcastToSession(r.SessionID, NewMessage(EventAttendance, data))
}

// Stop closes every client. Later registrations are closed on arrival.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	for k, c := range h.clients {
		c.Close()
		delete(h.clients, k)
	}
}

func trySend(c *Client, msg *Message) bool {
	select {
	case c.MessageChan <- msg:
		return true
	default:
		return false
	}
}
