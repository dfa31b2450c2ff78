package handlers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/darkconsole/console-chat/api"
	"github.com/darkconsole/console-chat/chat"
	"github.com/darkconsole/console-chat/config"
	"github.com/darkconsole/console-chat/databases"
	"github.com/darkconsole/console-chat/models"
)

var (
	// ErrRateLimited is returned when a sender exceeds the send rate.
	ErrRateLimited = errors.New("sending too fast")
	// ErrMessageNotFound is returned when deleting a message that does not exist.
	ErrMessageNotFound = errors.New("message not found")
	// ErrNotJoined is returned when a connection sends to a room it has not joined.
	ErrNotJoined = errors.New("join the room before sending")
)

// Joined reports whether the sending connection is in room
type Joined func(room string) bool

// TrustedMembership admits every signed-in viewer to order and event rooms. Order
// ownership is checked by the storefront before it hands out room links.
type TrustedMembership struct{}

// OwnsOrder implements chat.Membership
func (TrustedMembership) OwnsOrder(viewerID, orderID string) bool { return true }

// JoinedEvent implements chat.Membership
func (TrustedMembership) JoinedEvent(viewerID, eventID string) bool { return true }

// Relay validates, persists and fans out chat traffic for every transport
type Relay struct {
	DB                 databases.ChatMessageDatabase
	Hub                *Hub
	Auth               chat.Authorizer
	Metrics            *api.Metrics
	MaxAttachmentBytes int
	HistoryLimit       int

	limiter *limiterPool
	now     func() time.Time
}

// NewRelay builds a Relay from the config
func NewRelay(db databases.ChatMessageDatabase, hub *Hub, metrics *api.Metrics, conf config.Config) *Relay {
	return &Relay{
		DB:                 db,
		Hub:                hub,
		Auth:               chat.Policy{Members: TrustedMembership{}},
		Metrics:            metrics,
		MaxAttachmentBytes: conf.MaxAttachmentBytes,
		HistoryLimit:       conf.HistoryLimit,
		limiter:            &limiterPool{rps: conf.SendRatePerSec, burst: conf.SendBurst},
		now:                time.Now,
	}
}

// Authorize checks that viewer may use room and returns its descriptor
func (rl *Relay) Authorize(viewer models.Viewer, room string) (chat.Descriptor, error) {
	d, err := chat.ParseRoomID(room)
	if err != nil {
		return chat.Descriptor{}, err
	}
	if err := rl.Auth.Authorize(viewer, d); err != nil {
		return chat.Descriptor{}, err
	}
	return d, nil
}

// Join subscribes s to room
func (rl *Relay) Join(viewer models.Viewer, room string, s Subscriber) error {
	if _, err := rl.Authorize(viewer, room); err != nil {
		return err
	}
	rl.Hub.Join(room, s)
	return nil
}

// SendMessage persists env and broadcasts it to its room, the sender included. The
// sending connection must have joined the room. The sender identity always comes
// from the authenticated viewer and the relay assigns the id and timestamp.
func (rl *Relay) SendMessage(ctx context.Context, viewer models.Viewer, joined Joined, env models.Envelope) (models.Envelope, error) {
	if viewer.Anonymous() {
		rl.reject("anonymous")
		return models.Envelope{}, chat.ErrUnauthorized
	}
	d, err := rl.Authorize(viewer, env.Room)
	if err != nil {
		rl.reject("room")
		return models.Envelope{}, err
	}
	if joined == nil || !joined(env.Room) {
		rl.reject("not_joined")
		return models.Envelope{}, errors.Wrapf(ErrNotJoined, "room %s", env.Room)
	}
	env.Message = strings.TrimSpace(env.Message)
	if env.Message == "" && env.Image == "" {
		rl.reject("empty")
		return models.Envelope{}, chat.ErrEmptyMessage
	}
	if env.Image != "" {
		if err := chat.ValidateAttachment(env.Image, rl.maxAttachmentBytes()); err != nil {
			rl.reject("attachment")
			return models.Envelope{}, err
		}
	}
	if !rl.limiter.Allow(viewer.ID) {
		rl.reject("rate")
		return models.Envelope{}, ErrRateLimited
	}

	env.SenderID = viewer.ID
	if viewer.DisplayName != "" {
		env.SenderName = viewer.DisplayName
	}
	env.IsAdmin = viewer.Privileged

	msg := models.NewChatMessage(env, rl.now().UTC())
	if _, err := rl.DB.InsertOne(ctx, msg); err != nil {
		return models.Envelope{}, errors.Wrap(err, "persist message")
	}

	out := msg.Envelope()
	rl.Hub.Broadcast(out.Room, models.EventReceiveMessage, out)
	if rl.Metrics != nil {
		rl.Metrics.MessagesRelayed.WithLabelValues(d.Kind.String()).Inc()
	}
	zap.S().Debugw("message relayed", "room", out.Room, "id", out.ID, "sender", out.SenderID)
	return out, nil
}

// DeleteMessage removes a message. Staff may delete anything; everyone else only
// their own messages.
func (rl *Relay) DeleteMessage(ctx context.Context, viewer models.Viewer, room, id string) error {
	if viewer.Anonymous() {
		return chat.ErrUnauthorized
	}
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return errors.Wrapf(ErrMessageNotFound, "id %q", id)
	}
	msg, err := rl.DB.FindOne(ctx, bson.M{"_id": oid, "roomId": room})
	if err == mongo.ErrNoDocuments {
		return errors.Wrapf(ErrMessageNotFound, "id %s", id)
	}
	if err != nil {
		return errors.Wrap(err, "find message")
	}
	if !viewer.Privileged && (msg.IsAdmin || msg.SenderID != viewer.ID) {
		return errors.Wrap(chat.ErrUnauthorized, "not the author")
	}
	if _, err := rl.DB.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return errors.Wrap(err, "delete message")
	}

	rl.Hub.Broadcast(room, models.EventMessageDeleted, models.DeletedNotice{Room: room, MessageID: id})
	if rl.Metrics != nil {
		rl.Metrics.MessagesDeleted.Inc()
	}
	return nil
}

// History returns one page of the room's messages, oldest first. Page 1 holds the
// most recent limit messages, higher pages reach further back.
func (rl *Relay) History(ctx context.Context, room string, limit, page int) ([]models.Envelope, error) {
	if limit <= 0 || (rl.HistoryLimit > 0 && limit > rl.HistoryLimit) {
		limit = rl.HistoryLimit
	}
	msgs, err := rl.DB.Find(ctx, bson.M{"roomId": room}, databases.HistoryPage(limit, page))
	if err != nil {
		return nil, errors.Wrap(err, "find messages")
	}
	out := make([]models.Envelope, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m.Envelope()
	}
	return out, nil
}

func (rl *Relay) maxAttachmentBytes() int {
	if rl.MaxAttachmentBytes > 0 {
		return rl.MaxAttachmentBytes
	}
	return chat.DefaultMaxAttachmentBytes
}

func (rl *Relay) reject(reason string) {
	if rl.Metrics != nil {
		rl.Metrics.MessagesRejected.WithLabelValues(reason).Inc()
	}
}

// limiterPool hands out one token bucket per sender
type limiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.m == nil {
		p.m = make(map[string]*rate.Limiter)
	}
	if l, ok := p.m[key]; ok {
		return l
	}
	rps := p.rps
	if rps <= 0 {
		rps = 5
	}
	burst := p.burst
	if burst <= 0 {
		burst = 10
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = l
	return l
}

// Allow reports whether key may send now
func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}
