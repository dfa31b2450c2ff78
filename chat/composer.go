package chat

import (
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/darkconsole/console-chat/models"
)

// DefaultMaxAttachmentBytes caps decoded image size, matching the order slip limit
const DefaultMaxAttachmentBytes = 5 << 20

// Draft is the transient compose state of one chat input
type Draft struct {
	mu         sync.Mutex
	Text       string
	Attachment string // data URI
	ReplyTo    *Message
}

// Set replaces the draft contents
func (d *Draft) Set(text, attachment string, replyTo *Message) {
	d.mu.Lock()
	d.Text, d.Attachment, d.ReplyTo = text, attachment, replyTo
	d.mu.Unlock()
}

func (d *Draft) snapshot() (string, string, *Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Text, d.Attachment, d.ReplyTo
}

// Clear empties the draft
func (d *Draft) Clear() {
	d.Set("", "", nil)
}

// Empty reports whether the draft holds nothing sendable
func (d *Draft) Empty() bool {
	text, attachment, _ := d.snapshot()
	return strings.TrimSpace(text) == "" && attachment == ""
}

// Composer turns drafts into outbound envelopes stamped with the viewer's identity
type Composer struct {
	transport          Transport
	viewer             models.Viewer
	maxAttachmentBytes int
	now                func() time.Time
	newID              func() string
}

// NewComposer creates a Composer. maxAttachmentBytes <= 0 selects the default cap.
func NewComposer(t Transport, viewer models.Viewer, maxAttachmentBytes int) *Composer {
	if maxAttachmentBytes <= 0 {
		maxAttachmentBytes = DefaultMaxAttachmentBytes
	}
	return &Composer{
		transport:          t,
		viewer:             viewer,
		maxAttachmentBytes: maxAttachmentBytes,
		now:                time.Now,
		newID:              func() string { return uuid.New().String() },
	}
}

// Compose validates the draft and builds the envelope for roomID. It does not
// touch the network.
func (c *Composer) Compose(roomID string, d *Draft) (models.Envelope, error) {
	text, attachment, replyTo := d.snapshot()
	text = strings.TrimSpace(text)
	if text == "" && attachment == "" {
		return models.Envelope{}, ErrEmptyMessage
	}
	if attachment != "" {
		if err := ValidateAttachment(attachment, c.maxAttachmentBytes); err != nil {
			return models.Envelope{}, err
		}
	}

	env := models.Envelope{
		ClientID:   c.newID(),
		Room:       roomID,
		SenderID:   c.viewer.ID,
		SenderName: c.viewer.DisplayName,
		IsAdmin:    c.viewer.Privileged,
		Message:    text,
		Image:      attachment,
		CreatedAt:  c.now().UTC(),
	}
	if replyTo != nil {
		snap := replyTo.Snapshot()
		env.ReplyTo = &snap
	}
	return env, nil
}

// Send composes the draft and emits it. The draft is cleared only once the
// transport accepted the frame. Nothing is added locally; the message shows up
// when the relay echoes it back.
func (c *Composer) Send(roomID string, d *Draft) (models.Envelope, error) {
	env, err := c.Compose(roomID, d)
	if err != nil {
		return models.Envelope{}, err
	}
	if err := c.transport.Emit(models.EventSendMessage, env); err != nil {
		return models.Envelope{}, errors.Wrap(err, "emit send_message")
	}
	d.Clear()
	return env, nil
}

// ValidateAttachment checks that uri is a base64 image data URI whose payload
// decodes to at most max bytes
func ValidateAttachment(uri string, max int) error {
	const prefix = "data:image/"
	if !strings.HasPrefix(uri, prefix) {
		return ErrInvalidAttachment
	}
	comma := strings.IndexByte(uri, ',')
	if comma < 0 || !strings.HasSuffix(uri[:comma], ";base64") {
		return ErrInvalidAttachment
	}
	payload := uri[comma+1:]
	if base64.StdEncoding.DecodedLen(len(payload)) > max+2 {
		return errors.Wrapf(ErrAttachmentTooLarge, "limit %d bytes", max)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return errors.Wrap(ErrInvalidAttachment, err.Error())
	}
	if len(raw) == 0 {
		return ErrInvalidAttachment
	}
	if len(raw) > max {
		return errors.Wrapf(ErrAttachmentTooLarge, "%d bytes, limit %d", len(raw), max)
	}
	return nil
}
