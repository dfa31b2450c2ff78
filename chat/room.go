package chat

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/darkconsole/console-chat/models"
)

// Kind is the kind of conversation a room carries
type Kind int

const (
	// OrderSupport is the customer/staff thread attached to one order.
	OrderSupport Kind = iota
	// CommunityGlobal is the single public community room.
	CommunityGlobal
	// EventGlobal is the room shared by everyone in a tournament event.
	EventGlobal
	// EventAdminSupport is the private thread between an event leader and staff.
	EventAdminSupport
)

// CommunityRoomID is the id of the one community room
const CommunityRoomID = "community:global"

func (k Kind) String() string {
	switch k {
	case OrderSupport:
		return "order"
	case CommunityGlobal:
		return "community"
	case EventGlobal:
		return "event"
	case EventAdminSupport:
		return "event-support"
	default:
		return "unknown"
	}
}

// ParseKind maps the names returned by Kind.String back to a Kind
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "order":
		return OrderSupport, nil
	case "community":
		return CommunityGlobal, nil
	case "event":
		return EventGlobal, nil
	case "event-support", "support":
		return EventAdminSupport, nil
	}
	return 0, errors.Wrapf(ErrUnknownRoomKind, "kind %q", s)
}

// Descriptor names a room by its business context
type Descriptor struct {
	Kind    Kind
	OrderID string
	EventID string
}

// RoomID derives the transport room name for the descriptor
func (d Descriptor) RoomID() (string, error) {
	switch d.Kind {
	case OrderSupport:
		if d.OrderID == "" {
			return "", errors.Wrap(ErrUnknownRoomKind, "order room needs an order id")
		}
		return "order:" + d.OrderID, nil
	case CommunityGlobal:
		return CommunityRoomID, nil
	case EventGlobal:
		if d.EventID == "" {
			return "", errors.Wrap(ErrUnknownRoomKind, "event room needs an event id")
		}
		return "event:" + d.EventID + ":global", nil
	case EventAdminSupport:
		if d.EventID == "" || d.OrderID == "" {
			return "", errors.Wrap(ErrUnknownRoomKind, "event support room needs event and order ids")
		}
		return "event:" + d.EventID + ":support:" + d.OrderID, nil
	}
	return "", errors.Wrapf(ErrUnknownRoomKind, "kind %d", d.Kind)
}

// ParseRoomID is the inverse of Descriptor.RoomID
func ParseRoomID(roomID string) (Descriptor, error) {
	if roomID == CommunityRoomID {
		return Descriptor{Kind: CommunityGlobal}, nil
	}
	parts := strings.Split(roomID, ":")
	switch {
	case len(parts) == 2 && parts[0] == "order" && parts[1] != "":
		return Descriptor{Kind: OrderSupport, OrderID: parts[1]}, nil
	case len(parts) == 3 && parts[0] == "event" && parts[1] != "" && parts[2] == "global":
		return Descriptor{Kind: EventGlobal, EventID: parts[1]}, nil
	case len(parts) == 4 && parts[0] == "event" && parts[1] != "" && parts[2] == "support" && parts[3] != "":
		return Descriptor{Kind: EventAdminSupport, EventID: parts[1], OrderID: parts[3]}, nil
	}
	return Descriptor{}, errors.Wrapf(ErrUnknownRoomKind, "room %q", roomID)
}

// Room is a handle to an entered room
type Room struct {
	ID         string
	Descriptor Descriptor
}

// Kind returns the kind of the room
func (r *Room) Kind() Kind {
	return r.Descriptor.Kind
}

// Membership answers who has standing in order and event rooms. It is backed by
// the order/event collaborator.
type Membership interface {
	OwnsOrder(viewerID, orderID string) bool
	JoinedEvent(viewerID, eventID string) bool
}

// Authorizer decides whether a viewer may enter a room
type Authorizer interface {
	Authorize(v models.Viewer, d Descriptor) error
}

// Policy is the default Authorizer.
//
// Staff may enter every room. Guests may only read the community room. Order and
// event support rooms belong to the customer who owns the order (for events, the
// leader who paid). Event global rooms are open to everyone who joined the event.
type Policy struct {
	Members Membership
}

// Authorize implements Authorizer
func (p Policy) Authorize(v models.Viewer, d Descriptor) error {
	if _, err := d.RoomID(); err != nil {
		return err
	}
	if v.Privileged || d.Kind == CommunityGlobal {
		return nil
	}
	if v.Anonymous() || p.Members == nil {
		return errors.Wrapf(ErrUnauthorized, "%s room", d.Kind)
	}
	switch d.Kind {
	case OrderSupport, EventAdminSupport:
		if p.Members.OwnsOrder(v.ID, d.OrderID) {
			return nil
		}
	case EventGlobal:
		if p.Members.JoinedEvent(v.ID, d.EventID) {
			return nil
		}
	}
	return errors.Wrapf(ErrUnauthorized, "%s room", d.Kind)
}

// AllowAll is an Authorizer that admits everyone, for trusted tools
type AllowAll struct{}

// Authorize implements Authorizer
func (AllowAll) Authorize(_ models.Viewer, d Descriptor) error {
	_, err := d.RoomID()
	return err
}
