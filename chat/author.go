package chat

import "github.com/darkconsole/console-chat/models"

// Role is the badge shown next to a message
type Role string

// Roles
const (
	RoleStaff       Role = "staff"
	RoleParticipant Role = "participant"
)

// Side tells a renderer where a message goes and how to badge it
type Side struct {
	IsSelf bool
	Role   Role
}

// ResolveSide places m relative to viewer v.
//
// Staff viewers own every staff-authored message. Everyone else owns only the
// non-staff messages carrying their own id. The same stored message therefore lands
// on opposite sides for the customer and for staff in a support thread.
func ResolveSide(m Message, v models.Viewer) Side {
	side := Side{Role: RoleParticipant}
	if m.Privileged {
		side.Role = RoleStaff
	}
	if v.Privileged {
		side.IsSelf = m.Privileged
	} else {
		side.IsSelf = !m.Privileged && !v.Anonymous() && m.SenderID == v.ID
	}
	return side
}

// View is a message annotated for rendering
type View struct {
	Message
	Side Side
}

// Annotate resolves the side of every message for v
func Annotate(msgs []Message, v models.Viewer) []View {
	views := make([]View, len(msgs))
	for i, m := range msgs {
		views[i] = View{Message: m, Side: ResolveSide(m, v)}
	}
	return views
}
