package websocket

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans mutation events out to the websocket clients of a single owner.
type Hub struct {
	clients    map[string]map[*Client]bool
	mu         sync.RWMutex
	Register   chan *Client
	Unregister chan *Client
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.OwnerID]; !ok {
		h.clients[client.OwnerID] = make(map[*Client]bool)
	}
	h.clients[client.OwnerID][client] = true
	log.Debug().Str("owner_id", client.OwnerID).Msg("websocket client registered")
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ownerClients, ok := h.clients[client.OwnerID]; ok {
		if _, ok := ownerClients[client]; ok {
			delete(ownerClients, client)
			close(client.send)
			if len(ownerClients) == 0 {
				delete(h.clients, client.OwnerID)
			}
			log.Debug().Str("owner_id", client.OwnerID).Msg("websocket client unregistered")
		}
	}
}

func (h *Hub) PublishEvent(ownerID string, eventData []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if ownerClients, ok := h.clients[ownerID]; ok {
		for client := range ownerClients {
			select {
			case client.send <- eventData:
			default:
				log.Warn().Str("owner_id", ownerID).Msg("client send buffer full, dropping message")
			}
		}
	}
}
