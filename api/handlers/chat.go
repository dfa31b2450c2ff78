package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/darkconsole/console-chat/api"
	"github.com/darkconsole/console-chat/chat"
	"github.com/darkconsole/console-chat/config"
	"github.com/darkconsole/console-chat/models"
)

// Chat exported for testing purposes
type Chat struct {
	Relay *Relay
}

// ChatHistoryHandler returns the persisted messages of a room, oldest first
func (c Chat) ChatHistoryHandler(w http.ResponseWriter, r *http.Request) {
	c.history(w, r, mux.Vars(r)["roomId"])
}

// OrderMessagesHandler returns an order support thread. It is the path the
// storefront's order chat used.
func (c Chat) OrderMessagesHandler(w http.ResponseWriter, r *http.Request) {
	room, err := chat.Descriptor{Kind: chat.OrderSupport, OrderID: mux.Vars(r)["orderId"]}.RoomID()
	if err != nil {
		config.ErrorStatus("invalid order id", http.StatusBadRequest, w, err)
		return
	}
	c.history(w, r, room)
}

func (c Chat) history(w http.ResponseWriter, r *http.Request, room string) {
	zap.S().Debugf("roomId: %v", room)

	if _, err := c.Relay.Authorize(api.ViewerFromContext(r.Context()), room); err != nil {
		status := http.StatusForbidden
		if errors.Is(err, chat.ErrUnknownRoomKind) {
			status = http.StatusBadRequest
		}
		config.ErrorStatus("failed to authorize room", status, w, err)
		return
	}

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		config.ErrorStatus("invalid limit", http.StatusBadRequest, w, err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		config.ErrorStatus("invalid page", http.StatusBadRequest, w, errors.Errorf("page %q", r.URL.Query().Get("page")))
		return
	}

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	msgs, err := c.Relay.History(ctx, room, limit, page)
	if err != nil {
		config.ErrorStatus("failed to get chat messages", http.StatusInternalServerError, w, err)
		return
	}

	b, err := json.Marshal(msgs)
	if err != nil {
		config.ErrorStatus("failed to marshal response", http.StatusInternalServerError, w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// DeleteChatMessageHandler deletes one message and notifies the room
func (c Chat) DeleteChatMessageHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	room, id := vars["roomId"], vars["messageId"]

	ctx, cancel := api.WithQueryTimeout(r.Context())
	defer cancel()

	err := c.Relay.DeleteMessage(ctx, api.ViewerFromContext(r.Context()), room, id)
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrUnauthorized):
		config.ErrorStatus("not allowed to delete message", http.StatusForbidden, w, err)
		return
	case errors.Is(err, ErrMessageNotFound):
		config.ErrorStatus("failed to find message", http.StatusNotFound, w, err)
		return
	default:
		config.ErrorStatus("failed to delete message", http.StatusInternalServerError, w, err)
		return
	}

	b, _ := json.Marshal(models.DeletedNotice{Room: room, MessageID: id})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(b)
}

// queryInt reads a non-negative integer query parameter
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.Errorf("%s %q", key, v)
	}
	return n, nil
}
