package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/darkconsole/console-chat/api"
	"github.com/darkconsole/console-chat/chat"
	"github.com/darkconsole/console-chat/config"
	"github.com/darkconsole/console-chat/databases/mocks"
	"github.com/darkconsole/console-chat/models"
)

var (
	relayNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	alice    = models.Viewer{ID: "alice", DisplayName: "Alice"}
	ops      = models.Viewer{ID: "s1", DisplayName: "Ops", Privileged: true}
)

func newTestRelay(db *mocks.ChatMessageDatabase) *Relay {
	rl := NewRelay(db, NewHub(nil), api.NewMetrics(), config.Config{
		MaxAttachmentBytes: 64,
		SendRatePerSec:     1,
		SendBurst:          2,
		HistoryLimit:       100,
	})
	rl.now = func() time.Time { return relayNow }
	return rl
}

func anyRoom(string) bool { return true }

func TestRelay_SendMessageStampsIdentity(t *testing.T) {
	db := &mocks.ChatMessageDatabase{}
	db.On("InsertOne", mock.Anything, mock.AnythingOfType("models.ChatMessage")).Return(nil, nil)
	rl := newTestRelay(db)
	member := &recorder{id: "c1"}
	require.NoError(t, rl.Join(alice, "order:42", member))

	out, err := rl.SendMessage(context.Background(), alice, func(room string) bool {
		return rl.Hub.IsMember(room, member.ID())
	}, models.Envelope{
		ClientID:   "cid",
		Room:       "order:42",
		SenderID:   "mallory",
		SenderName: "Mallory",
		IsAdmin:    true,
		Message:    "  where is my order  ",
		CreatedAt:  relayNow.Add(-time.Hour),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, out.ID)
	assert.Equal(t, "cid", out.ClientID)
	assert.Equal(t, "alice", out.SenderID)
	assert.Equal(t, "Alice", out.SenderName)
	assert.False(t, out.IsAdmin)
	assert.Equal(t, "where is my order", out.Message)
	assert.Equal(t, relayNow, out.CreatedAt)
	assert.Equal(t, []sent{{models.EventReceiveMessage, out}}, member.events())
	db.AssertExpectations(t)
}

func TestRelay_SendMessageRejects(t *testing.T) {
	db := &mocks.ChatMessageDatabase{}
	rl := newTestRelay(db)
	big := "data:image/png;base64," + base64.StdEncoding.EncodeToString(make([]byte, 65))

	tests := []struct {
		name   string
		viewer models.Viewer
		env    models.Envelope
		want   error
	}{
		{"anonymous", models.Viewer{}, models.Envelope{Room: "community:global", Message: "hi"}, chat.ErrUnauthorized},
		{"bad room", alice, models.Envelope{Room: "lobby", Message: "hi"}, chat.ErrUnknownRoomKind},
		{"empty", alice, models.Envelope{Room: "community:global", Message: "   "}, chat.ErrEmptyMessage},
		{"oversized image", alice, models.Envelope{Room: "community:global", Image: big}, chat.ErrAttachmentTooLarge},
		{"not an image", alice, models.Envelope{Room: "community:global", Image: "https://x/y.png"}, chat.ErrInvalidAttachment},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rl.SendMessage(context.Background(), tt.viewer, anyRoom, tt.env)
			assert.True(t, pkgerrors.Is(err, tt.want), "got %v", err)
		})
	}
	db.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)
}

func TestRelay_SendMessageRateLimited(t *testing.T) {
	db := &mocks.ChatMessageDatabase{}
	db.On("InsertOne", mock.Anything, mock.Anything).Return(nil, nil)
	rl := newTestRelay(db)

	env := models.Envelope{Room: "community:global", Message: "spam"}
	for i := 0; i < 2; i++ {
		_, err := rl.SendMessage(context.Background(), alice, anyRoom, env)
		require.NoError(t, err)
	}
	_, err := rl.SendMessage(context.Background(), alice, anyRoom, env)
	assert.Equal(t, ErrRateLimited, err)

	// limits are per sender
	_, err = rl.SendMessage(context.Background(), ops, anyRoom, env)
	assert.NoError(t, err)
}

func TestRelay_SendMessageRequiresJoin(t *testing.T) {
	db := &mocks.ChatMessageDatabase{}
	db.On("InsertOne", mock.Anything, mock.Anything).Return(nil, nil)
	rl := newTestRelay(db)
	member := &recorder{id: "c1"}
	joined := func(room string) bool { return rl.Hub.IsMember(room, member.ID()) }
	env := models.Envelope{Room: "order:42", Message: "hi"}

	_, err := rl.SendMessage(context.Background(), alice, joined, env)
	assert.True(t, pkgerrors.Is(err, ErrNotJoined), "got %v", err)
	_, err = rl.SendMessage(context.Background(), alice, nil, env)
	assert.True(t, pkgerrors.Is(err, ErrNotJoined), "got %v", err)
	db.AssertNotCalled(t, "InsertOne", mock.Anything, mock.Anything)

	require.NoError(t, rl.Join(alice, "order:42", member))
	_, err = rl.SendMessage(context.Background(), alice, joined, env)
	require.NoError(t, err)

	rl.Hub.Leave("order:42", member)
	_, err = rl.SendMessage(context.Background(), alice, joined, env)
	assert.True(t, pkgerrors.Is(err, ErrNotJoined), "got %v", err)
	db.AssertNumberOfCalls(t, "InsertOne", 1)
}

func TestRelay_SendMessagePersistFailure(t *testing.T) {
	db := &mocks.ChatMessageDatabase{}
	db.On("InsertOne", mock.Anything, mock.Anything).Return(nil, errors.New("mocked-error"))
	rl := newTestRelay(db)
	member := &recorder{id: "c1"}
	rl.Hub.Join("community:global", member)

	_, err := rl.SendMessage(context.Background(), alice, anyRoom, models.Envelope{Room: "community:global", Message: "hi"})
	assert.EqualError(t, err, "persist message: mocked-error")
	assert.Empty(t, member.events())
}

func TestRelay_JoinRefusesGuestsOutsideCommunity(t *testing.T) {
	rl := newTestRelay(&mocks.ChatMessageDatabase{})
	guest := &recorder{id: "g"}
	assert.True(t, pkgerrors.Is(rl.Join(models.Viewer{}, "order:42", guest), chat.ErrUnauthorized))
	assert.NoError(t, rl.Join(models.Viewer{}, "community:global", guest))
}

func TestRelay_DeleteMessage(t *testing.T) {
	oid := primitive.NewObjectID()
	own := &models.ChatMessage{ID: oid, RoomID: "community:global", SenderID: "alice"}

	t.Run("author", func(t *testing.T) {
		db := &mocks.ChatMessageDatabase{}
		db.On("FindOne", mock.Anything, bson.M{"_id": oid, "roomId": "community:global"}).Return(own, nil)
		db.On("DeleteOne", mock.Anything, bson.M{"_id": oid}).Return(int64(1), nil)
		rl := newTestRelay(db)
		member := &recorder{id: "c1"}
		rl.Hub.Join("community:global", member)

		require.NoError(t, rl.DeleteMessage(context.Background(), alice, "community:global", oid.Hex()))
		assert.Equal(t, []sent{{models.EventMessageDeleted, models.DeletedNotice{Room: "community:global", MessageID: oid.Hex()}}}, member.events())
	})

	t.Run("someone else", func(t *testing.T) {
		db := &mocks.ChatMessageDatabase{}
		db.On("FindOne", mock.Anything, mock.Anything).Return(own, nil)
		rl := newTestRelay(db)
		err := rl.DeleteMessage(context.Background(), models.Viewer{ID: "bob"}, "community:global", oid.Hex())
		assert.True(t, pkgerrors.Is(err, chat.ErrUnauthorized))
		db.AssertNotCalled(t, "DeleteOne", mock.Anything, mock.Anything)
	})

	t.Run("staff", func(t *testing.T) {
		db := &mocks.ChatMessageDatabase{}
		db.On("FindOne", mock.Anything, mock.Anything).Return(own, nil)
		db.On("DeleteOne", mock.Anything, mock.Anything).Return(int64(1), nil)
		rl := newTestRelay(db)
		assert.NoError(t, rl.DeleteMessage(context.Background(), ops, "community:global", oid.Hex()))
	})

	t.Run("missing", func(t *testing.T) {
		db := &mocks.ChatMessageDatabase{}
		db.On("FindOne", mock.Anything, mock.Anything).Return(nil, mongo.ErrNoDocuments)
		rl := newTestRelay(db)
		err := rl.DeleteMessage(context.Background(), ops, "community:global", oid.Hex())
		assert.True(t, pkgerrors.Is(err, ErrMessageNotFound))

		err = rl.DeleteMessage(context.Background(), ops, "community:global", "nope")
		assert.True(t, pkgerrors.Is(err, ErrMessageNotFound))
	})
}

func TestRelay_HistoryOldestFirst(t *testing.T) {
	newer := models.NewChatMessage(models.Envelope{Room: "order:42", Message: "b"}, relayNow)
	older := models.NewChatMessage(models.Envelope{Room: "order:42", Message: "a"}, relayNow.Add(-time.Minute))
	db := &mocks.ChatMessageDatabase{}
	db.On("Find", mock.Anything, bson.M{"roomId": "order:42"}, mock.Anything).Return([]models.ChatMessage{newer, older}, nil)
	rl := newTestRelay(db)

	msgs, err := rl.History(context.Background(), "order:42", 500, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Message)
	assert.Equal(t, "b", msgs[1].Message)
}
