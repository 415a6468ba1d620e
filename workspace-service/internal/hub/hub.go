package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/weiawesome/wes-io-live/pkg/log"
)

// Hub tracks the open connections of one room.
type Hub struct {
	clients map[uint64]*Client
	nextID  uint64
	mu      sync.RWMutex
	logger  zerolog.Logger
	onDrop  func(n int)
}

func NewHub(roomID string) *Hub {
	return &Hub{
		clients: make(map[uint64]*Client),
		logger:  log.Room(roomID),
	}
}

// Register adds client and assigns its sequential connection id.
func (h *Hub) Register(client *Client) uint64 {
	h.mu.Lock()
	h.nextID++
	client.ID = h.nextID
	h.clients[client.ID] = client
	h.mu.Unlock()

	h.logger.Debug().Uint64(log.FieldConnectionID, client.ID).Msg("client registered")
	return client.ID
}

// Unregister removes client and closes its send channel, which makes the
// write pump close the socket. It reports whether the client was present.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	_, ok := h.clients[client.ID]
	if ok {
		delete(h.clients, client.ID)
		close(client.Send)
	}
	h.mu.Unlock()

	if ok {
		h.logger.Debug().Uint64(log.FieldConnectionID, client.ID).Msg("client unregistered")
	}
	return ok
}

func (h *Hub) RecordActivity(client *Client, now time.Time) {
	client.Session.Touch(now)
}

func (h *Hub) Identify(client *Client, clientID, displayName string) {
	client.Session.Identify(clientID, displayName)
	h.logger.Debug().
		Uint64(log.FieldConnectionID, client.ID).
		Str(log.FieldClientID, clientID).
		Str(log.FieldUser, displayName).
		Msg("client identified")
}

// OpenConnections returns the registered clients ordered by connection id.
func (h *Hub) OpenConnections() []*Client {
	h.mu.RLock()
	out := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	h.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// OnDrop registers fn, called with the number of clients Broadcast just
// dropped for being too slow.
func (h *Hub) OnDrop(fn func(n int)) {
	h.onDrop = fn
}

// Send delivers message to a single client. A full buffer drops the frame.
func (h *Hub) Send(client *Client, message interface{}) error {
	data, err := encode(message)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.ID]; !ok {
		return nil
	}
	select {
	case client.Send <- data:
	default:
		h.logger.Warn().Uint64(log.FieldConnectionID, client.ID).Msg("send buffer full, frame dropped")
	}
	return nil
}

// Broadcast delivers message to every client. Clients whose buffer is full
// are dropped and reported to the OnDrop callback.
func (h *Hub) Broadcast(message interface{}) error {
	data, err := encode(message)
	if err != nil {
		return err
	}

	var slow []*Client
	h.mu.RLock()
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	dropped := 0
	for _, client := range slow {
		h.logger.Warn().Uint64(log.FieldConnectionID, client.ID).Msg("dropping slow client")
		if h.Unregister(client) {
			dropped++
		}
	}
	if dropped > 0 && h.onDrop != nil {
		h.onDrop(dropped)
	}
	return nil
}

// CloseAll unregisters every client.
func (h *Hub) CloseAll() {
	for _, c := range h.OpenConnections() {
		h.Unregister(c)
	}
}
