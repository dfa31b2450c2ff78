package chat

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/darkconsole/console-chat/logging"
	"github.com/darkconsole/console-chat/models"
)

// Options tune a Session
type Options struct {
	Authorizer         Authorizer
	MaxRooms           int
	MaxAttachmentBytes int
	HistoryTimeout     time.Duration
	Logger             *zap.SugaredLogger
}

// Session is one viewer's chat overlay: the rooms it is in, their reconciled
// message lists, and the composer that writes into them. It is safe for use from
// the UI goroutine and the transport's delivery goroutine at the same time.
type Session struct {
	mu        sync.Mutex
	viewer    models.Viewer
	transport Transport
	registry  *Registry
	store     *Store
	history   HistoryLoader
	composer  *Composer
	timeout   time.Duration
	log       *zap.SugaredLogger

	active   string
	gens     map[string]uint64
	nextGen  uint64
	watchers []func(roomID string)
	off      []func()
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession wires a session onto t. Live handlers are registered here, before any
// room can be joined.
func NewSession(t Transport, history HistoryLoader, viewer models.Viewer, opts Options) *Session {
	log := logging.Or(opts.Logger, "chat")
	timeout := opts.HistoryTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		viewer:    viewer,
		transport: t,
		registry:  NewRegistry(t, viewer, opts.Authorizer, opts.MaxRooms, log),
		store:     NewStore(),
		history:   history,
		composer:  NewComposer(t, viewer, opts.MaxAttachmentBytes),
		timeout:   timeout,
		log:       log,
		gens:      make(map[string]uint64),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.off = append(s.off,
		t.On(models.EventReceiveMessage, s.onReceive),
		t.On(models.EventMessageDeleted, s.onDeleted),
		t.OnReconnect(s.onReconnect),
	)
	return s
}

// Viewer returns the session's viewer
func (s *Session) Viewer() models.Viewer {
	return s.viewer
}

// OnUpdate registers fn to be called after a room's message list changed. fn runs
// outside the session lock and may read the session.
func (s *Session) OnUpdate(fn func(roomID string)) {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
}

// Enter joins the room for d, makes it the active room and starts loading its
// history in the background
func (s *Session) Enter(d Descriptor) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enterLocked(d)
}

func (s *Session) enterLocked(d Descriptor) (*Room, error) {
	if s.closed {
		return nil, errors.New("chat: session closed")
	}
	roomID, err := s.registry.check(d)
	if err != nil {
		return nil, err
	}
	already := s.registry.Has(roomID)
	room, err := s.registry.Enter(d)
	if err != nil {
		return nil, err
	}
	s.active = room.ID
	if !already {
		s.store.Clear(room.ID)
		s.fetchLocked(room.ID)
	}
	return room, nil
}

// Leave leaves room and forgets its messages. Safe on rooms already left.
func (s *Session) Leave(room *Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaveLocked(room)
}

func (s *Session) leaveLocked(room *Room) {
	if room == nil {
		return
	}
	s.registry.Leave(room)
	s.store.Clear(room.ID)
	delete(s.gens, room.ID)
	if s.active == room.ID {
		s.active = ""
	}
}

// Switch leaves old and enters d as one step. The target is authorized first, so a
// refused switch leaves old untouched.
func (s *Session) Switch(old *Room, d Descriptor) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.registry.check(d); err != nil {
		return nil, err
	}
	s.leaveLocked(old)
	return s.enterLocked(d)
}

// Active returns the id of the room last entered, or "" after it was left
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Rooms lists the entered rooms
func (s *Session) Rooms() []*Room {
	return s.registry.Rooms()
}

// Messages returns the room's reconciled list annotated for this viewer
func (s *Session) Messages(roomID string) []View {
	return Annotate(s.store.Messages(roomID), s.viewer)
}

// Send emits the draft into roomID and clears it. The message becomes visible when
// the relay echoes it.
func (s *Session) Send(roomID string, d *Draft) (models.Envelope, error) {
	if !s.registry.Has(roomID) {
		return models.Envelope{}, errors.Wrapf(ErrNotEntered, "room %s", roomID)
	}
	return s.composer.Send(roomID, d)
}

// Delete asks the relay to delete a message. The local list changes when the
// message_deleted broadcast arrives.
func (s *Session) Delete(roomID, messageID string) error {
	if !s.registry.Has(roomID) {
		return errors.Wrapf(ErrNotEntered, "room %s", roomID)
	}
	return s.transport.Emit(models.EventDeleteMessage, models.DeleteRequest{Room: roomID, MessageID: messageID})
}

// Close leaves every room, detaches from the transport and waits for in-flight
// history fetches to finish
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, room := range s.registry.Rooms() {
		s.leaveLocked(room)
	}
	off := s.off
	s.off = nil
	s.mu.Unlock()

	for _, f := range off {
		f()
	}
	s.cancel()
	s.wg.Wait()
}

// fetchLocked starts a history load for roomID tagged with a fresh generation
func (s *Session) fetchLocked(roomID string) {
	s.nextGen++
	gen := s.nextGen
	s.gens[roomID] = gen
	since := s.store.Mark()

	s.wg.Add(1)
	go s.load(roomID, gen, since)
}

func (s *Session) load(roomID string, gen, since uint64) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	msgs, err := s.history.LoadHistory(ctx, roomID)

	s.mu.Lock()
	if s.closed || s.gens[roomID] != gen || !s.registry.Has(roomID) {
		s.mu.Unlock()
		s.log.Debugw("discarding stale history", "room", roomID)
		return
	}
	if err != nil {
		s.mu.Unlock()
		s.log.Warnw("history unavailable, room opens with live messages only", "room", roomID, "error", err)
		return
	}
	for i := range msgs {
		msgs[i].RoomID = roomID
	}
	s.store.Merge(roomID, msgs, since)
	s.mu.Unlock()

	s.notify(roomID)
}

func (s *Session) onReceive(data json.RawMessage) {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Warnw("dropping malformed message", "error", err)
		return
	}
	m := FromEnvelope(env)

	s.mu.Lock()
	// dispatch by the room the event names, never by the active room
	if s.closed || m.RoomID == "" || !s.registry.Has(m.RoomID) {
		s.mu.Unlock()
		return
	}
	added := s.store.AppendLive(m.RoomID, m)
	s.mu.Unlock()

	if added {
		s.notify(m.RoomID)
	}
}

func (s *Session) onDeleted(data json.RawMessage) {
	var notice models.DeletedNotice
	if err := json.Unmarshal(data, &notice); err != nil {
		// the community screen broadcast a bare id
		if err := json.Unmarshal(data, &notice.MessageID); err != nil {
			s.log.Warnw("dropping malformed deletion", "error", err)
			return
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var changed []string
	if notice.Room != "" {
		if s.registry.Has(notice.Room) && s.store.Remove(notice.Room, notice.MessageID) {
			changed = append(changed, notice.Room)
		}
	} else {
		changed = s.store.RemoveEverywhere(notice.MessageID)
	}
	s.mu.Unlock()

	for _, roomID := range changed {
		s.notify(roomID)
	}
}

// onReconnect re-asserts memberships and refetches history so messages sent while
// the connection was down are not silently lost
func (s *Session) onReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.registry.Rejoin()
	for _, room := range s.registry.Rooms() {
		s.fetchLocked(room.ID)
	}
	s.log.Infow("rejoined rooms after reconnect", "rooms", len(s.gens))
}

func (s *Session) notify(roomID string) {
	s.mu.Lock()
	watchers := append(([]func(string))(nil), s.watchers...)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(roomID)
	}
}
