package handlers

import (
	"sync"

	"go.uber.org/zap"

	"github.com/darkconsole/console-chat/api"
)

// Subscriber is one relay connection that can receive room events
type Subscriber interface {
	ID() string
	Send(event string, payload interface{}) error
}

// Fanout forwards a room broadcast to another transport
type Fanout func(room, event string, payload interface{})

// Hub tracks which connections are in which rooms
type Hub struct {
	mu      sync.RWMutex
	rooms   map[string]map[string]Subscriber
	fanouts []Fanout
	metrics *api.Metrics
}

// NewHub creates an empty Hub. metrics may be nil.
func NewHub(metrics *api.Metrics) *Hub {
	return &Hub{
		rooms:   make(map[string]map[string]Subscriber),
		metrics: metrics,
	}
}

// AddFanout registers f to receive every broadcast
func (h *Hub) AddFanout(f Fanout) {
	h.mu.Lock()
	h.fanouts = append(h.fanouts, f)
	h.mu.Unlock()
}

// Join adds s to room. Joining twice is a no-op.
func (h *Hub) Join(room string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]Subscriber)
		h.rooms[room] = members
	}
	if _, ok := members[s.ID()]; ok {
		return
	}
	members[s.ID()] = s
	if h.metrics != nil {
		h.metrics.RoomMembers.Inc()
	}
}

// Leave removes s from room
func (h *Hub) Leave(room string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, s.ID())
}

// LeaveAll removes s from every room and returns the rooms it was in
func (h *Hub) LeaveAll(s Subscriber) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var left []string
	for room, members := range h.rooms {
		if _, ok := members[s.ID()]; ok {
			h.leaveLocked(room, s.ID())
			left = append(left, room)
		}
	}
	return left
}

func (h *Hub) leaveLocked(room, id string) {
	members := h.rooms[room]
	if _, ok := members[id]; !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	if h.metrics != nil {
		h.metrics.RoomMembers.Dec()
	}
}

// IsMember reports whether the connection with id is in room
func (h *Hub) IsMember(room, id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][id]
	return ok
}

// Members returns the number of websocket connections in room
func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast delivers event to every member of room and to every fanout. Members
// whose connection fails are dropped from the room.
func (h *Hub) Broadcast(room, event string, payload interface{}) {
	h.mu.RLock()
	members := make([]Subscriber, 0, len(h.rooms[room]))
	for _, s := range h.rooms[room] {
		members = append(members, s)
	}
	fanouts := append([]Fanout(nil), h.fanouts...)
	h.mu.RUnlock()

	for _, s := range members {
		if err := s.Send(event, payload); err != nil {
			zap.S().Warnw("dropping subscriber after failed send",
				"room", room,
				"subscriber", s.ID(),
				"error", err)
			h.Leave(room, s)
		}
	}
	for _, f := range fanouts {
		f(room, event, payload)
	}
}
