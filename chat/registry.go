package chat

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/darkconsole/console-chat/logging"
	"github.com/darkconsole/console-chat/models"
)

// DefaultMaxRooms bounds how many rooms one session keeps open
const DefaultMaxRooms = 4

// Registry tracks the rooms a session is in and issues join/leave intents
type Registry struct {
	mu        sync.Mutex
	transport Transport
	viewer    models.Viewer
	auth      Authorizer
	maxRooms  int
	rooms     map[string]*Room
	log       *zap.SugaredLogger
}

// NewRegistry creates a Registry. A nil Authorizer admits nobody but staff and the
// community room.
func NewRegistry(t Transport, viewer models.Viewer, auth Authorizer, maxRooms int, log *zap.SugaredLogger) *Registry {
	if auth == nil {
		auth = Policy{}
	}
	if maxRooms <= 0 {
		maxRooms = DefaultMaxRooms
	}
	log = logging.Or(log, "chat.registry")
	return &Registry{
		transport: t,
		viewer:    viewer,
		auth:      auth,
		maxRooms:  maxRooms,
		rooms:     make(map[string]*Room),
		log:       log,
	}
}

// Enter joins the room described by d. Entering a room twice returns the same
// handle without a second join intent. Authorization is checked before anything is
// emitted.
func (r *Registry) Enter(d Descriptor) (*Room, error) {
	roomID, err := r.check(d)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[roomID]; ok {
		return room, nil
	}
	if len(r.rooms) >= r.maxRooms {
		return nil, errors.Wrapf(ErrTooManyRooms, "limit %d", r.maxRooms)
	}
	room := &Room{ID: roomID, Descriptor: d}
	r.rooms[roomID] = room
	if err := r.transport.Emit(models.EventJoinRoom, roomID); err != nil {
		// stay registered, Rejoin after reconnect repairs it
		r.log.Warnw("join intent not sent", "room", roomID, "error", err)
	}
	return room, nil
}

// check derives the room id and authorizes the viewer for it
func (r *Registry) check(d Descriptor) (string, error) {
	roomID, err := d.RoomID()
	if err != nil {
		return "", err
	}
	if err := r.auth.Authorize(r.viewer, d); err != nil {
		return "", err
	}
	return roomID, nil
}

// Leave leaves room. Leaving a room that is not entered is a no-op.
func (r *Registry) Leave(room *Room) {
	if room == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.ID]; !ok {
		return
	}
	delete(r.rooms, room.ID)
	if err := r.transport.Emit(models.EventLeaveRoom, room.ID); err != nil {
		r.log.Debugw("leave intent not sent", "room", room.ID, "error", err)
	}
}

// Rejoin re-issues join intents for every entered room
func (r *Registry) Rejoin() {
	for _, room := range r.Rooms() {
		if err := r.transport.Emit(models.EventJoinRoom, room.ID); err != nil {
			r.log.Warnw("rejoin failed", "room", room.ID, "error", err)
		}
	}
}

// Has reports whether roomID is entered
func (r *Registry) Has(roomID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Rooms lists entered rooms ordered by id
func (r *Registry) Rooms() []*Room {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ID < rooms[j].ID })
	return rooms
}
