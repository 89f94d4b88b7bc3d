// Package events pushes account-mutation notifications to open admin
// panels over WebSocket. The push stream is a hint for a prompt roster
// refresh; the 30-second polling loop stays authoritative, so a dropped
// message is never a correctness problem.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event notifies admin panels that the roster changed.
type Event struct {
	Type      string `json:"type"`
	AccountID string `json:"accountId,omitempty"`
	Username  string `json:"username,omitempty"`
	Message   string `json:"message,omitempty"`
}

const (
	AccountCreated   = "account_created"
	AccountActivated = "account_activated"
	AccountExtended  = "account_extended"
	AccountUpdated   = "account_updated"
	AccountDeleted   = "account_deleted"
	ExpiredPurged    = "expired_purged"
)

// Hub maintains the set of connected admin panels and broadcasts events.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds a connected panel to the hub.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister removes a panel from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends an event to every connected panel. Panels with a full
// send buffer miss the event and catch up on their next poll.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("marshal event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ClientCount returns the number of connected panels.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
