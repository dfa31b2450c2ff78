package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"go.uber.org/zap"

	"github.com/darkconsole/console-chat/api"
	"github.com/darkconsole/console-chat/chat"
	"github.com/darkconsole/console-chat/models"
)

// Event names used by the storefront's Socket.IO screens
const (
	legacyJoinOrderChat          = "join_order_chat"
	legacySendOrderMessage       = "send_order_message"
	legacyJoinCommunity          = "join_community"
	legacySendCommunityMessage   = "send_community_message"
	legacyDeleteCommunityMessage = "delete_community_message"

	legacyReceiveOrderMessage     = "receive_order_message"
	legacyReceiveCommunityMessage = "receive_community_message"
)

const socketIOLabel = "socketio"

type broadcaster interface {
	BroadcastToRoom(namespace string, room, event string, args ...interface{}) bool
}

// SocketIO serves the relay to Socket.IO clients. Clients are joined to the same
// room names as websocket clients, and the hub fans every broadcast out to them.
type SocketIO struct {
	Relay  *Relay
	Auth   *api.Authenticator
	server *socketio.Server
}

// NewSocketIO builds the Socket.IO server and attaches it to the relay's hub
func NewSocketIO(relay *Relay, authn *api.Authenticator) *SocketIO {
	sio := &SocketIO{
		Relay: relay,
		Auth:  authn,
		server: socketio.NewServer(&engineio.Options{
			Transports: []transport.Transport{
				polling.Default,
				websocket.Default,
			},
		}),
	}
	sio.registerHandlers()
	relay.Hub.AddFanout(sio.fanout(sio.server))
	return sio
}

// Serve runs the Socket.IO event loop in the background
func (sio *SocketIO) Serve() {
	go func() {
		if err := sio.server.Serve(); err != nil {
			zap.S().Errorw("Socket.IO server error", "error", err)
		}
	}()
}

// Handler returns the http handler for /socket.io/
func (sio *SocketIO) Handler() http.Handler {
	return sio.server
}

// Close stops the Socket.IO server
func (sio *SocketIO) Close() error {
	return sio.server.Close()
}

func (sio *SocketIO) registerHandlers() {
	server := sio.server

	server.OnConnect("/", func(s socketio.Conn) error {
		u := s.URL()
		viewer, err := sio.Auth.ViewerFromRequest(&http.Request{Header: s.RemoteHeader(), URL: &u})
		if err != nil {
			zap.S().Warnw("Socket.IO connection refused", "client", s.ID(), "error", err)
			return err
		}
		s.SetContext(viewer)
		if m := sio.Relay.Metrics; m != nil {
			m.ActiveConnections.WithLabelValues(socketIOLabel).Inc()
		}
		zap.S().Debugw("Socket.IO client connected", "client", s.ID(), "viewer", viewer.ID)
		return nil
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		zap.S().Warnw("Socket.IO error", "error", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		if m := sio.Relay.Metrics; m != nil {
			m.ActiveConnections.WithLabelValues(socketIOLabel).Dec()
		}
		zap.S().Debugw("Socket.IO client disconnected", "client", s.ID(), "reason", reason)
	})

	server.OnEvent("/", models.EventJoinRoom, func(s socketio.Conn, arg interface{}) {
		sio.join(s, stringArg(arg, "room"))
	})
	server.OnEvent("/", models.EventLeaveRoom, func(s socketio.Conn, arg interface{}) {
		if room := stringArg(arg, "room"); room != "" {
			s.Leave(room)
		}
	})
	server.OnEvent("/", models.EventSendMessage, func(s socketio.Conn, msg map[string]interface{}) {
		sio.send(s, msg, "")
	})
	server.OnEvent("/", models.EventDeleteMessage, func(s socketio.Conn, msg map[string]interface{}) {
		sio.delete(s, stringArg(msg, "room"), stringArg(msg, "messageId"))
	})

	server.OnEvent("/", legacyJoinOrderChat, func(s socketio.Conn, arg interface{}) {
		room, err := chat.Descriptor{Kind: chat.OrderSupport, OrderID: stringArg(arg, "orderId")}.RoomID()
		if err != nil {
			s.Emit(models.EventError, models.ErrorEvent{Message: err.Error()})
			return
		}
		sio.join(s, room)
	})
	server.OnEvent("/", legacySendOrderMessage, func(s socketio.Conn, msg map[string]interface{}) {
		sio.send(s, msg, "")
	})
	server.OnEvent("/", legacyJoinCommunity, func(s socketio.Conn) {
		sio.join(s, chat.CommunityRoomID)
	})
	server.OnEvent("/", legacySendCommunityMessage, func(s socketio.Conn, msg map[string]interface{}) {
		sio.send(s, msg, chat.CommunityRoomID)
	})
	server.OnEvent("/", legacyDeleteCommunityMessage, func(s socketio.Conn, arg interface{}) {
		sio.delete(s, chat.CommunityRoomID, stringArg(arg, "messageId", "_id", "id"))
	})
}

func viewerOf(s socketio.Conn) models.Viewer {
	v, _ := s.Context().(models.Viewer)
	return v
}

func (sio *SocketIO) join(s socketio.Conn, room string) {
	if room == "" {
		s.Emit(models.EventError, models.ErrorEvent{Message: "join needs a room id"})
		return
	}
	if _, err := sio.Relay.Authorize(viewerOf(s), room); err != nil {
		s.Emit(models.EventError, models.ErrorEvent{Message: err.Error()})
		return
	}
	s.Join(room)
	zap.S().Debugw("Socket.IO client joined room", "client", s.ID(), "room", room)
}

func (sio *SocketIO) send(s socketio.Conn, msg map[string]interface{}, room string) {
	env, err := envelopeFromMap(msg)
	if err != nil {
		s.Emit(models.EventError, models.ErrorEvent{Message: "malformed message"})
		return
	}
	if room != "" {
		env.Room = room
	}
	ctx, cancel := api.WithQueryTimeout(context.Background())
	defer cancel()
	if _, err := sio.Relay.SendMessage(ctx, viewerOf(s), inRooms(s), env); err != nil {
		s.Emit(models.EventError, models.ErrorEvent{Message: err.Error()})
	}
}

func inRooms(s socketio.Conn) Joined {
	return func(room string) bool {
		for _, r := range s.Rooms() {
			if r == room {
				return true
			}
		}
		return false
	}
}

func (sio *SocketIO) delete(s socketio.Conn, room, id string) {
	ctx, cancel := api.WithQueryTimeout(context.Background())
	defer cancel()
	if err := sio.Relay.DeleteMessage(ctx, viewerOf(s), room, id); err != nil {
		s.Emit(models.EventError, models.ErrorEvent{Message: err.Error()})
	}
}

// fanout forwards hub broadcasts to the Socket.IO rooms of the same name. The
// community screen expects message_deleted to carry the bare id, and the order and
// community screens listen for their own receive event next to receive_message.
func (sio *SocketIO) fanout(b broadcaster) Fanout {
	return func(room, event string, payload interface{}) {
		if notice, ok := payload.(models.DeletedNotice); ok && room == chat.CommunityRoomID {
			payload = notice.MessageID
		}
		b.BroadcastToRoom("/", room, event, payload)
		if legacy := legacyReceiveEvent(room, event); legacy != "" {
			b.BroadcastToRoom("/", room, legacy, payload)
		}
	}
}

// legacyReceiveEvent names the screen specific twin of a receive_message broadcast
func legacyReceiveEvent(room, event string) string {
	if event != models.EventReceiveMessage {
		return ""
	}
	d, err := chat.ParseRoomID(room)
	if err != nil {
		return ""
	}
	switch d.Kind {
	case chat.OrderSupport:
		return legacyReceiveOrderMessage
	case chat.CommunityGlobal:
		return legacyReceiveCommunityMessage
	}
	return ""
}

// envelopeFromMap decodes a Socket.IO message object through the envelope's alias
// handling
func envelopeFromMap(msg map[string]interface{}) (models.Envelope, error) {
	var env models.Envelope
	b, err := json.Marshal(msg)
	if err != nil {
		return env, err
	}
	err = json.Unmarshal(b, &env)
	return env, err
}

// stringArg reads a string argument sent either bare or as one of keys of an object
func stringArg(arg interface{}, keys ...string) string {
	switch v := arg.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case map[string]interface{}:
		for _, k := range keys {
			if s := stringArg(v[k]); s != "" {
				return s
			}
		}
	}
	return ""
}
