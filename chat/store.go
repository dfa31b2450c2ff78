package chat

import (
	"sort"
	"sync"
	"time"
)

// Store keeps one ordered, duplicate free message list per room.
//
// Lists are non-decreasing in CreatedAt. Messages with equal timestamps keep the
// order they arrived in. Every live arrival is stamped with an increasing arrival
// mark so a history merge can tell what arrived while its fetch was in flight.
type Store struct {
	mu      sync.RWMutex
	rooms   map[string][]Message
	seq     uint64
	arrived map[string]map[string]uint64
}

// NewStore returns an empty Store
func NewStore() *Store {
	return &Store{
		rooms:   make(map[string][]Message),
		arrived: make(map[string]map[string]uint64),
	}
}

// Mark returns the current arrival mark. Take it when a history fetch starts and
// hand it to Merge.
func (s *Store) Mark() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Seed replaces the room's list with history
func (s *Store) Seed(roomID string, history []Message) {
	list := sortedHistory(history)

	s.mu.Lock()
	s.rooms[roomID] = list
	delete(s.arrived, roomID)
	s.mu.Unlock()
}

// AppendLive adds a live message to its room. It returns false when the message
// was already present, which is how a sender's own echo collapses into one entry.
func (s *Store) AppendLive(roomID string, m Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.rooms[roomID]
	if indexOf(list, m) >= 0 {
		return false
	}
	s.rooms[roomID] = insertSorted(list, m)
	s.seq++
	if s.arrived[roomID] == nil {
		s.arrived[roomID] = make(map[string]uint64)
	}
	s.arrived[roomID][messageKey(m)] = s.seq
	return true
}

// Merge reseeds a room from a history fetch that started at arrival mark since.
//
// A message missing from history is kept when it arrived live after since, or when
// it is not newer than the oldest history entry and so lies outside the fetched
// page. Anything else missing was persisted before the fetch started and has been
// deleted since.
func (s *Store) Merge(roomID string, history []Message, since uint64) {
	list := sortedHistory(history)

	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest time.Time
	if len(list) > 0 {
		oldest = list[0].CreatedAt
	}
	arrived := s.arrived[roomID]
	for _, m := range s.rooms[roomID] {
		if indexOf(list, m) >= 0 {
			continue
		}
		switch {
		case arrived[messageKey(m)] > since:
			// arrived while the fetch was in flight
		case len(list) > 0 && !m.CreatedAt.After(oldest):
			// older than the fetched page
		default:
			continue
		}
		list = insertSorted(list, m)
	}
	s.rooms[roomID] = list

	for key := range arrived {
		if indexByKey(list, key) < 0 {
			delete(arrived, key)
		}
	}
}

// Remove drops the message with id from the room
func (s *Store) Remove(roomID, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(roomID, id)
}

// RemoveEverywhere drops the message with id from every room and returns the rooms
// that changed
func (s *Store) RemoveEverywhere(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var changed []string
	for roomID := range s.rooms {
		if s.removeLocked(roomID, id) {
			changed = append(changed, roomID)
		}
	}
	sort.Strings(changed)
	return changed
}

func (s *Store) removeLocked(roomID, id string) bool {
	if id == "" {
		return false
	}
	list := s.rooms[roomID]
	out := list[:0:0]
	for _, m := range list {
		if m.ID != id {
			out = append(out, m)
		}
	}
	if len(out) == len(list) {
		return false
	}
	s.rooms[roomID] = out
	delete(s.arrived[roomID], id)
	return true
}

// Clear forgets the room's messages
func (s *Store) Clear(roomID string) {
	s.mu.Lock()
	delete(s.rooms, roomID)
	delete(s.arrived, roomID)
	s.mu.Unlock()
}

// Messages returns a copy of the room's list
func (s *Store) Messages(roomID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.rooms[roomID]...)
}

func sortedHistory(history []Message) []Message {
	list := make([]Message, 0, len(history))
	for _, m := range history {
		if indexOf(list, m) >= 0 {
			continue
		}
		list = append(list, m)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

// messageKey is the id, or the client id for a message the relay has not stored
func messageKey(m Message) string {
	if m.ID != "" {
		return m.ID
	}
	return "client:" + m.ClientID
}

func indexByKey(list []Message, key string) int {
	for i := range list {
		if messageKey(list[i]) == key {
			return i
		}
	}
	return -1
}

func indexOf(list []Message, m Message) int {
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].sameAs(m) {
			return i
		}
	}
	return -1
}

// insertSorted places m after every message that is not later than it
func insertSorted(list []Message, m Message) []Message {
	i := len(list)
	for i > 0 && list[i-1].CreatedAt.After(m.CreatedAt) {
		i--
	}
	list = append(list, Message{})
	copy(list[i+1:], list[i:])
	list[i] = m
	return list
}
