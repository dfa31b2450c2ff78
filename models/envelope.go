package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event names carried over the relay
const (
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventDeleteMessage  = "delete_message"
	EventMessageDeleted = "message_deleted"
	EventError          = "error"
)

// Envelope is the one wire shape of a chat message. Decoding accepts the field
// aliases the storefront screens used (author, username, userId, attachment, time,
// orderId) and folds them onto the canonical fields.
type Envelope struct {
	ID         string         `json:"_id,omitempty"`
	ClientID   string         `json:"clientId,omitempty"`
	Room       string         `json:"room"`
	SenderID   string         `json:"senderId"`
	SenderName string         `json:"senderName"`
	IsAdmin    bool           `json:"isAdmin"`
	Message    string         `json:"message,omitempty"`
	Image      string         `json:"image,omitempty"`
	ReplyTo    *ReplySnapshot `json:"replyTo,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// DeletedNotice is the payload of a message_deleted broadcast
type DeletedNotice struct {
	Room      string `json:"room,omitempty"`
	MessageID string `json:"messageId"`
}

// DeleteRequest is the payload of a delete_message intent
type DeleteRequest struct {
	Room      string `json:"room"`
	MessageID string `json:"messageId"`
}

// ErrorEvent is sent back to a relay connection whose intent was rejected
type ErrorEvent struct {
	Message string `json:"message"`
}

type wireEnvelope struct {
	ID         string          `json:"_id"`
	AltID      string          `json:"id"`
	ClientID   string          `json:"clientId"`
	Room       string          `json:"room"`
	OrderID    string          `json:"orderId"`
	SenderID   string          `json:"senderId"`
	UserID     string          `json:"userId"`
	SenderName string          `json:"senderName"`
	Author     string          `json:"author"`
	Username   string          `json:"username"`
	IsAdmin    bool            `json:"isAdmin"`
	Message    string          `json:"message"`
	Type       string          `json:"type"`
	Image      string          `json:"image"`
	Attachment string          `json:"attachment"`
	ReplyTo    json.RawMessage `json:"replyTo"`
	CreatedAt  json.RawMessage `json:"createdAt"`
	Time       json.RawMessage `json:"time"`
}

// UnmarshalJSON normalizes every known variant of the message payload
func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	created, err := parseTimestamp(w.CreatedAt)
	if err != nil {
		return err
	}
	if created.IsZero() {
		if created, err = parseTimestamp(w.Time); err != nil {
			return err
		}
	}

	room := w.Room
	if room == "" && w.OrderID != "" {
		room = "order:" + w.OrderID
	}

	image := firstNonEmpty(w.Image, w.Attachment)
	body := w.Message
	if w.Type == "image" && image != "" {
		// image sends carried a filler caption
		body = ""
	}

	*e = Envelope{
		ID:         firstNonEmpty(w.ID, w.AltID),
		ClientID:   w.ClientID,
		Room:       room,
		SenderID:   firstNonEmpty(w.SenderID, w.UserID),
		SenderName: firstNonEmpty(w.SenderName, w.Author, w.Username),
		IsAdmin:    w.IsAdmin,
		Message:    body,
		Image:      image,
		ReplyTo:    parseReply(w.ReplyTo),
		CreatedAt:  created,
	}
	return nil
}

// Preview returns the text shown when this message is quoted in a reply
func (e Envelope) Preview() string {
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	if e.Image != "" {
		return ImagePlaceholder
	}
	return ""
}

// parseReply accepts either an embedded snapshot or a whole quoted message. A bare id
// string carries nothing to preview and is dropped.
func parseReply(raw json.RawMessage) *ReplySnapshot {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil
	}
	var q struct {
		SenderName string `json:"senderName"`
		Author     string `json:"author"`
		Username   string `json:"username"`
		Body       string `json:"body"`
		Message    string `json:"message"`
		Image      string `json:"image"`
		Attachment string `json:"attachment"`
	}
	if err := json.Unmarshal(raw, &q); err != nil {
		return nil
	}
	body := firstNonEmpty(q.Body, q.Message)
	if body == "" && firstNonEmpty(q.Image, q.Attachment) != "" {
		body = ImagePlaceholder
	}
	return &ReplySnapshot{
		SenderName: firstNonEmpty(q.SenderName, q.Author, q.Username),
		Body:       body,
	}
}

// parseTimestamp reads RFC 3339 strings or unix milliseconds
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		return t.UTC(), nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %s: %w", raw, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
