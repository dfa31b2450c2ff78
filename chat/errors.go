package chat

import "github.com/pkg/errors"

var (
	// ErrEmptyMessage is returned when a draft has neither text nor an attachment.
	ErrEmptyMessage = errors.New("chat: message has no text and no attachment")

	// ErrUnauthorized is returned when the viewer has no standing in a room. It is the
	// one error class that callers are expected to show to the user.
	ErrUnauthorized = errors.New("chat: viewer may not enter this room")

	// ErrAttachmentTooLarge is returned when a decoded image exceeds the configured cap.
	ErrAttachmentTooLarge = errors.New("chat: attachment exceeds size limit")

	// ErrInvalidAttachment is returned for anything that is not a base64 image data URI.
	ErrInvalidAttachment = errors.New("chat: attachment is not a base64 image data URI")

	// ErrTooManyRooms is returned when entering would exceed the registry's room cap.
	ErrTooManyRooms = errors.New("chat: too many open rooms")

	// ErrUnknownRoomKind is returned for descriptors or room ids that do not map to a room.
	ErrUnknownRoomKind = errors.New("chat: unknown room")

	// ErrHistoryFetchFailed marks a failed backlog fetch. Rooms still open, empty.
	ErrHistoryFetchFailed = errors.New("chat: history fetch failed")

	// ErrNotEntered is returned when sending into a room the session has not entered.
	ErrNotEntered = errors.New("chat: room not entered")
)
