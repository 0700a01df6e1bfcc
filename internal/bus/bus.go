// Package bus is the event transport: it tracks websocket connections,
// groups them into room channels, and delivers room broadcasts, targeted
// emits and per-request acks. Delivery is best-effort and unordered across
// recipients but FIFO per recipient.
package bus

import (
	"sync"

	"github.com/rs/zerolog"
)

// Bus fans events out to connections and room channels.
type Bus struct {
	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[string]*Client
	log     zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		log:     log,
	}
}

// Register adds a connection to the bus.
func (b *Bus) Register(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c.ID] = c
}

func (b *Bus) unregister(c *Client) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.clients[c.ID]; !ok {
		return
	}
	delete(b.clients, c.ID)
	for code, members := range b.rooms {
		if _, ok := members[c.ID]; ok {
			delete(members, c.ID)
			if len(members) == 0 {
				delete(b.rooms, code)
			}
		}
	}
	c.closeSend()
}

// JoinRoom subscribes a connection to a room channel.
func (b *Bus) JoinRoom(connID, roomCode string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.clients[connID]
	if !ok {
		return
	}
	members, ok := b.rooms[roomCode]
	if !ok {
		members = make(map[string]*Client)
		b.rooms[roomCode] = members
	}
	members[connID] = c
}

// LeaveRoom unsubscribes a connection from a room channel.
func (b *Bus) LeaveRoom(connID, roomCode string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.rooms[roomCode]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(b.rooms, roomCode)
	}
}

// BroadcastRoom delivers an event to every subscriber of a room channel.
func (b *Bus) BroadcastRoom(roomCode, event string, payload any) {
	frame, err := encodeFrame(event, 0, payload)
	if err != nil {
		b.log.Error().Err(err).Str("event", event).Str("room", roomCode).Msg("drop unencodable broadcast")
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, c := range b.rooms[roomCode] {
		c.enqueue(frame)
	}
}

// EmitTo delivers an event to one connection. Returns false when the
// connection is gone.
func (b *Bus) EmitTo(connID, event string, payload any) bool {
	b.mu.RLock()
	c, ok := b.clients[connID]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	c.SendEvent(event, payload)
	return true
}

// Client looks a connection up by id.
func (b *Bus) Client(connID string) (*Client, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.clients[connID]
	return c, ok
}

// RoomSize reports the number of subscribers in a room channel.
func (b *Bus) RoomSize(roomCode string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[roomCode])
}

// CloseAll drops every connection; used on shutdown.
func (b *Bus) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, c := range b.clients {
		delete(b.clients, id)
		c.closeSend()
	}
	b.rooms = make(map[string]map[string]*Client)
}
