package chat

import (
	"log"
	"sort"
	"sync"

	"github.com/shahnawazAlam3641/geekZone/internal/metrics"
)

// Hub is the process-wide presence registry and room multiplexer. Presence
// maps a user identity to its live connections (multi-tab, multi-device);
// rooms map a room name to the connections joined to it. A user's own
// identity doubles as a room name for direct pushes; conversation rooms are
// namespaced with the conv: prefix so the two key spaces cannot collide.
//
// All state lives behind one mutex. A presence mutation and the online-set
// broadcast it triggers happen inside a single critical section, so no
// broadcast ever reflects a stale set.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*Client]bool
	presence map[string]map[*Client]bool
	rooms    map[string]map[*Client]bool

	// Set when an eviction inside sendLocked empties a presence set; the
	// public entry points flush it once their own fan-out is done, so a
	// stale snapshot is never queued after the corrected one.
	presenceDirty bool
}

func NewHub() *Hub {
	return &Hub{
		clients:  make(map[*Client]bool),
		presence: make(map[string]map[*Client]bool),
		rooms:    make(map[string]map[*Client]bool),
	}
}

// Register adds a freshly upgraded connection. Presence is not touched until
// the client announces itself with user-online.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	metrics.ConnectionsTotal.Inc()
}

// Announce records the connection under the given identity, joins it to the
// user's own room, and broadcasts the updated online set to every client.
func (h *Hub) Announce(c *Client, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[c] {
		return
	}
	c.UserID = userID
	if h.presence[userID] == nil {
		h.presence[userID] = make(map[*Client]bool)
	}
	h.presence[userID][c] = true
	h.joinLocked(c, userID)
	h.presenceDirty = true
	h.flushPresenceLocked()
}

// Unregister removes a connection from every room and from presence. When
// the last connection of a user goes away, the shrunken online set is
// broadcast.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)

	for room := range c.rooms {
		h.leaveLocked(c, room)
	}

	if c.UserID != "" {
		if set, ok := h.presence[c.UserID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.presence, c.UserID)
				h.presenceDirty = true
			}
		}
	}
	h.flushPresenceLocked()
	h.mu.Unlock()

	c.closeSend()
	metrics.ConnectionsTotal.Dec()
}

// Join adds the connection to a named room.
func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	h.joinLocked(c, room)
	h.mu.Unlock()
}

// Leave removes the connection from a named room.
func (h *Hub) Leave(c *Client, room string) {
	h.mu.Lock()
	h.leaveLocked(c, room)
	h.mu.Unlock()
}

func (h *Hub) joinLocked(c *Client, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
	if c.rooms == nil {
		c.rooms = make(map[string]bool)
	}
	c.rooms[room] = true
}

func (h *Hub) leaveLocked(c *Client, room string) {
	if set, ok := h.rooms[room]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(c.rooms, room)
}

// BroadcastRoom delivers payload to every member of room, skipping except
// when non-nil.
func (h *Hub) BroadcastRoom(room string, payload []byte, except *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[room] {
		if c == except {
			continue
		}
		h.sendLocked(c, payload)
	}
	h.flushPresenceLocked()
}

// SendToUser pushes payload to every live connection of userID: connections
// announced into presence plus connections sitting in the user's identity
// room. The room members matter because every connection joins its identity
// room on upgrade, before any announce. Returns false when the user has no
// connection at all; callers treat delivery as best effort.
func (h *Hub) SendToUser(userID string, payload []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	targets := make(map[*Client]bool, len(h.presence[userID]))
	for c := range h.presence[userID] {
		targets[c] = true
	}
	for c := range h.rooms[userID] {
		targets[c] = true
	}
	if len(targets) == 0 {
		return false
	}
	for c := range targets {
		h.sendLocked(c, payload)
	}
	h.flushPresenceLocked()
	return true
}

// SendDirect pushes payload to a single connection, used for acks and error
// events that must not reach the rest of a room.
func (h *Hub) SendDirect(c *Client, payload []byte) {
	h.mu.Lock()
	h.sendLocked(c, payload)
	h.flushPresenceLocked()
	h.mu.Unlock()
}

// Online returns the sorted set of user ids with at least one connection.
func (h *Hub) Online() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onlineLocked()
}

func (h *Hub) onlineLocked() []string {
	users := make([]string, 0, len(h.presence))
	for uid := range h.presence {
		users = append(users, uid)
	}
	sort.Strings(users)
	return users
}

func (h *Hub) broadcastOnlineLocked() {
	payload := mustJSON(OnlineUsersMsg{Type: EventOnlineUsers, Users: h.onlineLocked()})
	for c := range h.clients {
		h.sendLocked(c, payload)
	}
	metrics.OnlineUsers.Set(float64(len(h.presence)))
}

// flushPresenceLocked rebroadcasts the online set while evictions keep
// invalidating it. Terminates: each extra pass requires another client to
// have been dropped.
func (h *Hub) flushPresenceLocked() {
	for h.presenceDirty {
		h.presenceDirty = false
		h.broadcastOnlineLocked()
	}
}

// sendLocked enqueues without blocking; a client whose send buffer is full
// is dropped from the hub maps and its pumps shut down via the closed
// channel.
func (h *Hub) sendLocked(c *Client, payload []byte) {
	if !h.clients[c] {
		// Already unregistered or dropped; its Send channel may be closed.
		return
	}
	select {
	case c.Send <- payload:
	default:
		log.Printf("[hub] dropped slow client user=%s", c.UserID)
		delete(h.clients, c)
		for room := range c.rooms {
			h.leaveLocked(c, room)
		}
		if c.UserID != "" {
			if set, ok := h.presence[c.UserID]; ok {
				delete(set, c)
				if len(set) == 0 {
					delete(h.presence, c.UserID)
					h.presenceDirty = true
				}
			}
		}
		c.closeSend()
		metrics.ConnectionsTotal.Dec()
	}
}
