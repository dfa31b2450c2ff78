package chat

import (
	"strings"
	"time"

	"github.com/darkconsole/console-chat/models"
)

// Message is a chat message as the client engine holds it
type Message struct {
	ID         string
	ClientID   string
	RoomID     string
	SenderID   string
	SenderName string
	Privileged bool
	Body       string
	Attachment string
	ReplyTo    *models.ReplySnapshot
	CreatedAt  time.Time
}

// FromEnvelope converts a normalized wire envelope
func FromEnvelope(e models.Envelope) Message {
	return Message{
		ID:         e.ID,
		ClientID:   e.ClientID,
		RoomID:     e.Room,
		SenderID:   e.SenderID,
		SenderName: e.SenderName,
		Privileged: e.IsAdmin,
		Body:       e.Message,
		Attachment: e.Image,
		ReplyTo:    e.ReplyTo,
		CreatedAt:  e.CreatedAt,
	}
}

// Snapshot captures the reply preview of m
func (m Message) Snapshot() models.ReplySnapshot {
	body := m.Body
	if strings.TrimSpace(body) == "" && m.Attachment != "" {
		body = models.ImagePlaceholder
	}
	return models.ReplySnapshot{SenderName: m.SenderName, Body: body}
}

// sameAs reports whether m and o are the same logical message
func (m Message) sameAs(o Message) bool {
	if m.ID != "" && m.ID == o.ID {
		return true
	}
	return m.ClientID != "" && m.ClientID == o.ClientID
}
