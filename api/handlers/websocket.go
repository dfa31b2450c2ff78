package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/darkconsole/console-chat/api"
	"github.com/darkconsole/console-chat/models"
	"github.com/darkconsole/console-chat/transport"
)

const (
	writeWait      = 10 * time.Second
	maxFrameBytes  = 8 << 20
	transportLabel = "websocket"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChatSocket serves the /ws/chat endpoint
type ChatSocket struct {
	Relay *Relay
	Auth  *api.Authenticator
}

// wsClient is one websocket connection
type wsClient struct {
	id     string
	conn   *websocket.Conn
	viewer models.Viewer
	mu     sync.Mutex
}

func (c *wsClient) ID() string { return c.id }

// Send writes one {event, data} frame
func (c *wsClient) Send(event string, payload interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(map[string]interface{}{
		"event": event,
		"data":  payload,
	})
}

// HandleChatWebSocket upgrades the request and serves chat frames until the client
// goes away
func (cs ChatSocket) HandleChatWebSocket(w http.ResponseWriter, r *http.Request) {
	viewer, err := cs.Auth.ViewerFromRequest(r)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": "unauthorized"}`))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade error", "error", err)
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client := &wsClient{id: uuid.New().String(), conn: conn, viewer: viewer}
	zap.S().Debugw("client connected to /ws/chat", "client", client.id, "viewer", viewer.ID)
	if m := cs.Relay.Metrics; m != nil {
		m.ActiveConnections.WithLabelValues(transportLabel).Inc()
		defer m.ActiveConnections.WithLabelValues(transportLabel).Dec()
	}
	defer func() {
		rooms := cs.Relay.Hub.LeaveAll(client)
		conn.Close()
		zap.S().Debugw("client disconnected from /ws/chat", "client", client.id, "rooms", len(rooms))
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var f transport.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			cs.fail(client, "malformed frame")
			continue
		}
		cs.dispatch(r.Context(), client, f)
	}
}

func (cs ChatSocket) dispatch(ctx context.Context, c *wsClient, f transport.Frame) {
	switch f.Event {
	case models.EventJoinRoom:
		room, ok := roomArg(f.Data)
		if !ok {
			cs.fail(c, "join_room needs a room id")
			return
		}
		if err := cs.Relay.Join(c.viewer, room, c); err != nil {
			cs.fail(c, err.Error())
		}
	case models.EventLeaveRoom:
		if room, ok := roomArg(f.Data); ok {
			cs.Relay.Hub.Leave(room, c)
		}
	case models.EventSendMessage:
		var env models.Envelope
		if err := json.Unmarshal(f.Data, &env); err != nil {
			cs.fail(c, "malformed message")
			return
		}
		ctx, cancel := api.WithQueryTimeout(ctx)
		defer cancel()
		joined := func(room string) bool { return cs.Relay.Hub.IsMember(room, c.id) }
		if _, err := cs.Relay.SendMessage(ctx, c.viewer, joined, env); err != nil {
			zap.S().Debugw("send rejected", "viewer", c.viewer.ID, "room", env.Room, "error", err)
			cs.fail(c, err.Error())
		}
	case models.EventDeleteMessage:
		var req models.DeleteRequest
		if err := json.Unmarshal(f.Data, &req); err != nil {
			cs.fail(c, "malformed delete")
			return
		}
		ctx, cancel := api.WithQueryTimeout(ctx)
		defer cancel()
		if err := cs.Relay.DeleteMessage(ctx, c.viewer, req.Room, req.MessageID); err != nil {
			cs.fail(c, err.Error())
		}
	default:
		zap.S().Debugw("ignoring unknown event", "event", f.Event)
	}
}

func (cs ChatSocket) fail(c *wsClient, message string) {
	if err := c.Send(models.EventError, models.ErrorEvent{Message: message}); err != nil {
		zap.S().Debugw("error event not delivered", "client", c.id, "error", err)
	}
}

// roomArg accepts a bare room id or {"room": id}
func roomArg(data json.RawMessage) (string, bool) {
	var room string
	if err := json.Unmarshal(data, &room); err == nil {
		return room, room != ""
	}
	var obj struct {
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		return obj.Room, obj.Room != ""
	}
	return "", false
}
