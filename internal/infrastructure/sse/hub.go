// Package sse fans petition and invalidation events out to connected admin clients.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/petition-hub/petition-hub/internal/domain/notification"
)

var (
	ErrClientNotFound = errors.New("sse client not found")
	ErrChannelFull    = errors.New("sse client channel full")
)

const clientBuffer = 100

// Message is one server-sent event.
type Message struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewMessage(event string, data json.RawMessage) *Message {
	return &Message{
		ID:        uuid.New().String(),
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Client is an open event stream. A non-nil PetitionID limits the stream to that
// petition's events.
type Client struct {
	ClientID    string
	PetitionID  *int64
	ConnectedAt time.Time
	Messages    chan *Message
}

func NewClient(clientID string, petitionID *int64) *Client {
	return &Client{
		ClientID:    clientID,
		PetitionID:  petitionID,
		ConnectedAt: time.Now().UTC(),
		Messages:    make(chan *Message, clientBuffer),
	}
}

// Hub manages SSE clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register adds a client, replacing and closing any previous client with the same id.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if prev, ok := h.clients[client.ClientID]; ok {
		close(prev.Messages)
	}
	h.clients[client.ClientID] = client
}

// Unregister removes the client only if it is still the registered one.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[client.ClientID]; ok && c == client {
		close(c.Messages)
		delete(h.clients, client.ClientID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast delivers message to every client subscribed to petitionID. Clients whose
// buffer is full miss the message. It returns how many clients received it.
func (h *Hub) Broadcast(petitionID int64, message *Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for _, c := range h.clients {
		if c.PetitionID != nil && *c.PetitionID != petitionID {
			continue
		}
		if trySend(c, message) {
			sent++
		}
	}
	return sent
}

func (h *Hub) SendToClient(clientID string, message *Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c := h.clients[clientID]
	if c == nil {
		return ErrClientNotFound
	}
	if !trySend(c, message) {
		return ErrChannelFull
	}
	return nil
}

// Stop disconnects every client.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		close(c.Messages)
		delete(h.clients, id)
	}
}

func trySend(c *Client, msg *Message) bool {
	select {
	case c.Messages <- msg:
		return true
	default:
		return false
	}
}

// Dispatcher is the notification.Dispatcher shipped with the server: it logs each
// event and broadcasts it on the hub.
type Dispatcher struct {
	hub    *Hub
	logger zerolog.Logger
}

func NewDispatcher(hub *Hub, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		hub:    hub,
		logger: logger.With().Str("service", "dispatcher").Logger(),
	}
}

func (d *Dispatcher) Dispatch(_ context.Context, event notification.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	sent := d.hub.Broadcast(event.PetitionID, NewMessage(string(event.Type), data))
	d.logger.Info().
		Str("event", string(event.Type)).
		Int64("petition_id", event.PetitionID).
		Int64("invalidation_id", event.InvalidationID).
		Str("detail", event.Detail).
		Int("clients", sent).
		Msg("notification dispatched")
	return nil
}
