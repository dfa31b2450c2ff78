package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ImagePlaceholder stands in for the body of an image-only message in reply previews
const ImagePlaceholder = "[image]"

// ChatMessage holds the structure for the chatmessages collection in mongo
type ChatMessage struct {
	ID         primitive.ObjectID `json:"_id" bson:"_id"`
	RoomID     string             `json:"roomId" bson:"roomId"`
	ClientID   string             `json:"clientId,omitempty" bson:"clientId,omitempty"`
	SenderID   string             `json:"senderId" bson:"senderId"`
	SenderName string             `json:"senderName" bson:"senderName"`
	IsAdmin    bool               `json:"isAdmin" bson:"isAdmin"`
	Message    string             `json:"message,omitempty" bson:"message,omitempty"`
	Image      string             `json:"image,omitempty" bson:"image,omitempty"` // data URI
	ReplyTo    *ReplySnapshot     `json:"replyTo,omitempty" bson:"replyTo,omitempty"`
	CreatedAt  primitive.DateTime `json:"createdAt" bson:"createdAt"`
}

// ReplySnapshot is the denormalized preview of the message being replied to. It is
// captured at compose time and never re-resolved.
type ReplySnapshot struct {
	SenderName string `json:"senderName" bson:"senderName"`
	Body       string `json:"body" bson:"body"`
}

// Envelope converts the stored message to its wire shape
func (m ChatMessage) Envelope() Envelope {
	return Envelope{
		ID:         m.ID.Hex(),
		ClientID:   m.ClientID,
		Room:       m.RoomID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		IsAdmin:    m.IsAdmin,
		Message:    m.Message,
		Image:      m.Image,
		ReplyTo:    m.ReplyTo,
		CreatedAt:  m.CreatedAt.Time().UTC(),
	}
}

// NewChatMessage builds a storable message from an inbound envelope, assigning the
// id and the server timestamp
func NewChatMessage(env Envelope, now time.Time) ChatMessage {
	return ChatMessage{
		ID:         primitive.NewObjectIDFromTimestamp(now),
		RoomID:     env.Room,
		ClientID:   env.ClientID,
		SenderID:   env.SenderID,
		SenderName: env.SenderName,
		IsAdmin:    env.IsAdmin,
		Message:    env.Message,
		Image:      env.Image,
		ReplyTo:    env.ReplyTo,
		CreatedAt:  primitive.NewDateTimeFromTime(now),
	}
}
