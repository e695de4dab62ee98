package ws

import (
	"sync"
)

// Hub tracks live connections by user and by group room. Sends are
// non-blocking: a slow client drops frames rather than stalling a broadcast;
// fetch remains the durable delivery path.
type Hub struct {
	mu      sync.RWMutex
	byUser  map[string]map[*Connection]struct{}
	byGroup map[string]map[*Connection]struct{}
}

func NewHub() *Hub {
	return &Hub{
		byUser:  make(map[string]map[*Connection]struct{}),
		byGroup: make(map[string]map[*Connection]struct{}),
	}
}

func (h *Hub) Register(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byUser[c.userID]; !ok {
		h.byUser[c.userID] = make(map[*Connection]struct{})
	}
	h.byUser[c.userID][c] = struct{}{}
}

func (h *Hub) Unregister(c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.byUser[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byUser, c.userID)
		}
	}
	for groupID, set := range h.byGroup {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byGroup, groupID)
		}
	}
}

func (h *Hub) JoinGroup(groupID string, c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byGroup[groupID]; !ok {
		h.byGroup[groupID] = make(map[*Connection]struct{})
	}
	h.byGroup[groupID][c] = struct{}{}
}

func (h *Hub) LeaveGroup(groupID string, c *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.byGroup[groupID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.byGroup, groupID)
		}
	}
}

func (h *Hub) SendToUser(userID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byUser[userID] {
		c.trySend(msg)
	}
}

func (h *Hub) BroadcastToGroup(groupID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byGroup[groupID] {
		c.trySend(msg)
	}
}
