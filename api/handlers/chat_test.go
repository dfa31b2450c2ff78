package handlers_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/darkconsole/console-chat/api"
	"github.com/darkconsole/console-chat/api/handlers"
	"github.com/darkconsole/console-chat/config"
	"github.com/darkconsole/console-chat/databases"
	mocksdb "github.com/darkconsole/console-chat/databases/mocks"
	"github.com/darkconsole/console-chat/models"
)

func newChat(db databases.ChatMessageDatabase) handlers.Chat {
	return handlers.Chat{Relay: handlers.NewRelay(db, handlers.NewHub(nil), nil, config.Config{HistoryLimit: 50})}
}

func withViewer(req *http.Request, v models.Viewer) *http.Request {
	return req.WithContext(api.WithViewer(req.Context(), v))
}

func TestChat_ChatHistoryHandler(t *testing.T) {
	req, err := http.NewRequest("GET", "/api/v1/chats/order:42?limit=10", nil)
	if err != nil {
		t.Fatal(err)
	}
	req = mux.SetURLVars(req, map[string]string{"roomId": "order:42"})
	req = withViewer(req, models.Viewer{ID: "alice"})

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	msg := models.NewChatMessage(models.Envelope{Room: "order:42", SenderID: "alice", SenderName: "Alice", Message: "hi"}, created)

	db := &mocksdb.ChatMessageDatabase{}
	db.On("Find", mock.Anything, bson.M{"roomId": "order:42"}, mock.Anything).Return([]models.ChatMessage{msg}, nil)

	rr := httptest.NewRecorder()
	http.HandlerFunc(newChat(db).ChatHistoryHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}
	b, _ := json.Marshal([]models.Envelope{msg.Envelope()})
	assert.JSONEq(t, string(b), rr.Body.String())
}

func TestChat_ChatHistoryHandlerEmptyRoom(t *testing.T) {
	req, _ := http.NewRequest("GET", "/api/v1/chats/community:global", nil)
	req = mux.SetURLVars(req, map[string]string{"roomId": "community:global"})

	db := &mocksdb.ChatMessageDatabase{}
	db.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	rr := httptest.NewRecorder()
	http.HandlerFunc(newChat(db).ChatHistoryHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "[]", rr.Body.String())
}

func TestChat_ChatHistoryHandlerGuestRefused(t *testing.T) {
	req, _ := http.NewRequest("GET", "/api/v1/chats/order:42", nil)
	req = mux.SetURLVars(req, map[string]string{"roomId": "order:42"})

	db := &mocksdb.ChatMessageDatabase{}
	rr := httptest.NewRecorder()
	http.HandlerFunc(newChat(db).ChatHistoryHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusForbidden {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusForbidden)
	}
	db.AssertNotCalled(t, "Find", mock.Anything, mock.Anything, mock.Anything)
}

func TestChat_ChatHistoryHandlerBadRoom(t *testing.T) {
	req, _ := http.NewRequest("GET", "/api/v1/chats/lobby", nil)
	req = mux.SetURLVars(req, map[string]string{"roomId": "lobby"})
	req = withViewer(req, models.Viewer{ID: "alice"})

	rr := httptest.NewRecorder()
	http.HandlerFunc(newChat(&mocksdb.ChatMessageDatabase{}).ChatHistoryHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChat_ChatHistoryHandlerBadLimit(t *testing.T) {
	req, _ := http.NewRequest("GET", "/api/v1/chats/community:global?limit=abc", nil)
	req = mux.SetURLVars(req, map[string]string{"roomId": "community:global"})

	rr := httptest.NewRecorder()
	http.HandlerFunc(newChat(&mocksdb.ChatMessageDatabase{}).ChatHistoryHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChat_ChatHistoryHandlerPaged(t *testing.T) {
	req, _ := http.NewRequest("GET", "/api/v1/chats/community:global?limit=20&page=3", nil)
	req = mux.SetURLVars(req, map[string]string{"roomId": "community:global"})

	db := &mocksdb.ChatMessageDatabase{}
	db.On("Find", mock.Anything, bson.M{"roomId": "community:global"}, mock.MatchedBy(func(o *options.FindOptions) bool {
		return o.Skip != nil && *o.Skip == 40 && o.Limit != nil && *o.Limit == 20
	})).Return([]models.ChatMessage{}, nil)

	rr := httptest.NewRecorder()
	http.HandlerFunc(newChat(db).ChatHistoryHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	db.AssertExpectations(t)
}

func TestChat_ChatHistoryHandlerBadPage(t *testing.T) {
	req, _ := http.NewRequest("GET", "/api/v1/chats/community:global?page=0", nil)
	req = mux.SetURLVars(req, map[string]string{"roomId": "community:global"})

	rr := httptest.NewRecorder()
	http.HandlerFunc(newChat(&mocksdb.ChatMessageDatabase{}).ChatHistoryHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChat_ChatHistoryHandlerFailedToFind(t *testing.T) {
	req, _ := http.NewRequest("GET", "/api/v1/chats/community:global", nil)
	req = mux.SetURLVars(req, map[string]string{"roomId": "community:global"})

	db := &mocksdb.ChatMessageDatabase{}
	db.On("Find", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("mocked-error"))

	rr := httptest.NewRecorder()
	http.HandlerFunc(newChat(db).ChatHistoryHandler).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusInternalServerError {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusInternalServerError)
	}
	expected := models.ErrorMessageResponse{Response: models.MessageError{Message: "failed to get chat messages", Error: "find messages: mocked-error"}}
	b, _ := json.Marshal(expected)
	if rr.Body.String() != string(b) {
		t.Errorf("handler returned unexpected body: \ngot: %v \nwant: %v", rr.Body.String(), expected)
	}
}

func TestChat_OrderMessagesHandler(t *testing.T) {
	req, _ := http.NewRequest("GET", "/api/v1/orders/42/messages", nil)
	req = mux.SetURLVars(req, map[string]string{"orderId": "42"})
	req = withViewer(req, models.Viewer{ID: "s1", Privileged: true})

	db := &mocksdb.ChatMessageDatabase{}
	db.On("Find", mock.Anything, bson.M{"roomId": "order:42"}, mock.Anything).Return([]models.ChatMessage{}, nil)

	rr := httptest.NewRecorder()
	http.HandlerFunc(newChat(db).OrderMessagesHandler).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	db.AssertExpectations(t)
}

func TestChat_DeleteChatMessageHandler(t *testing.T) {
	oid := primitive.NewObjectID()
	stored := &models.ChatMessage{ID: oid, RoomID: "community:global", SenderID: "bob"}

	tests := []struct {
		name   string
		viewer models.Viewer
		id     string
		find   func(db *mocksdb.ChatMessageDatabase)
		status int
	}{
		{
			name:   "staff deletes",
			viewer: models.Viewer{ID: "s1", Privileged: true},
			id:     oid.Hex(),
			find: func(db *mocksdb.ChatMessageDatabase) {
				db.On("FindOne", mock.Anything, mock.Anything).Return(stored, nil)
				db.On("DeleteOne", mock.Anything, mock.Anything).Return(int64(1), nil)
			},
			status: http.StatusOK,
		},
		{
			name:   "stranger refused",
			viewer: models.Viewer{ID: "alice"},
			id:     oid.Hex(),
			find: func(db *mocksdb.ChatMessageDatabase) {
				db.On("FindOne", mock.Anything, mock.Anything).Return(stored, nil)
			},
			status: http.StatusForbidden,
		},
		{
			name:   "unknown id",
			viewer: models.Viewer{ID: "s1", Privileged: true},
			id:     "1234",
			find:   func(db *mocksdb.ChatMessageDatabase) {},
			status: http.StatusNotFound,
		},
		{
			name:   "database down",
			viewer: models.Viewer{ID: "s1", Privileged: true},
			id:     oid.Hex(),
			find: func(db *mocksdb.ChatMessageDatabase) {
				db.On("FindOne", mock.Anything, mock.Anything).Return(nil, errors.New("mocked-error"))
			},
			status: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("DELETE", "/api/v1/chats/community:global/messages/"+tt.id, nil)
			req = mux.SetURLVars(req, map[string]string{"roomId": "community:global", "messageId": tt.id})
			req = withViewer(req, tt.viewer)

			db := &mocksdb.ChatMessageDatabase{}
			tt.find(db)

			rr := httptest.NewRecorder()
			http.HandlerFunc(newChat(db).DeleteChatMessageHandler).ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}
