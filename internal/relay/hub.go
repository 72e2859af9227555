package relay

import (
	"sync"
)

// Hub tracks live connections and their channel membership. A connection
// belongs to at most one channel at a time. Empty channels are discarded.
type Hub struct {
	mu         sync.RWMutex
	conns      map[string]*Connection
	channels   map[string]map[string]*Connection // channel -> conn ID -> conn
	membership map[string]string                 // conn ID -> channel
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		conns:      make(map[string]*Connection),
		channels:   make(map[string]map[string]*Connection),
		membership: make(map[string]string),
	}
}

// Add registers a freshly accepted connection with no channel.
func (h *Hub) Add(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
}

// Join places c in channel, replacing any previous membership. Joining the
// channel c is already in is a no-op. It returns the previous channel.
func (h *Hub) Join(c *Connection, channel string) (previous string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	previous = h.membership[c.id]
	if previous == channel {
		return previous
	}
	if previous != "" {
		h.leaveLocked(c.id, previous)
	}

	members, ok := h.channels[channel]
	if !ok {
		members = make(map[string]*Connection)
		h.channels[channel] = members
	}
	members[c.id] = c
	h.membership[c.id] = channel
	return previous
}

// Channel returns the channel connID is a member of.
func (h *Hub) Channel(connID string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ch, ok := h.membership[connID]
	return ch, ok
}

// Peers returns every member of channel except the connection exceptID.
func (h *Hub) Peers(channel, exceptID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	members := h.channels[channel]
	out := make([]*Connection, 0, len(members))
	for id, c := range members {
		if id != exceptID {
			out = append(out, c)
		}
	}
	return out
}

// Remove forgets connID entirely.
func (h *Hub) Remove(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.membership[connID]; ok {
		h.leaveLocked(connID, ch)
	}
	delete(h.conns, connID)
}

func (h *Hub) leaveLocked(connID, channel string) {
	delete(h.membership, connID)
	if members, ok := h.channels[channel]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
}

// Counts returns the number of connections and non-empty channels.
func (h *Hub) Counts() (conns, channels int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns), len(h.channels)
}

// CloseAll closes every connection and clears the hub.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.conns = make(map[string]*Connection)
	h.channels = make(map[string]map[string]*Connection)
	h.membership = make(map[string]string)
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
