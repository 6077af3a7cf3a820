package ws

import (
	"context"
	"encoding/json"
	"sync"

	"RigWatch/internal/domain/models"
	"RigWatch/pkg/logger"
)

// Hub maintains the set of live alert subscribers and fans escalated events
// out to them. A slow subscriber is dropped rather than allowed to stall the
// broadcast path.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	log        *logger.Logger
	mu         sync.RWMutex
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
}

// Run blocks serving hub events until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("alert subscriber connected", logger.String("remote", client.remoteAddr()))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.log.Debug("alert subscriber disconnected", logger.String("remote", client.remoteAddr()))
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					delete(h.clients, client)
					close(client.send)
					h.log.Warn("dropping slow alert subscriber", logger.String("remote", client.remoteAddr()))
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast pushes an escalated event to every subscriber. Non-blocking: if
// the hub itself is backed up the event is dropped, the durable sinks already
// have it.
func (h *Hub) Broadcast(e *models.AnomalyEvent) {
	msg, err := json.Marshal(map[string]interface{}{"type": "alert", "payload": e})
	if err != nil {
		h.log.Error("marshal alert broadcast", logger.Error(err))
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("alert broadcast queue full, dropping", logger.String("event_id", e.EventID))
	}
}

// Subscribers returns the current subscriber count.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
