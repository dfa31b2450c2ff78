package chat

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkconsole/console-chat/models"
)

func TestDescriptor_RoomID(t *testing.T) {
	tests := []struct {
		name string
		d    Descriptor
		want string
	}{
		{"order", Descriptor{Kind: OrderSupport, OrderID: "42"}, "order:42"},
		{"community", Descriptor{Kind: CommunityGlobal}, "community:global"},
		{"event", Descriptor{Kind: EventGlobal, EventID: "e1"}, "event:e1:global"},
		{"event support", Descriptor{Kind: EventAdminSupport, EventID: "e1", OrderID: "42"}, "event:e1:support:42"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.d.RoomID()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			back, err := ParseRoomID(got)
			require.NoError(t, err)
			assert.Equal(t, tt.d, back)
		})
	}
}

func TestDescriptor_RoomIDMissingIDs(t *testing.T) {
	for _, d := range []Descriptor{
		{Kind: OrderSupport},
		{Kind: EventGlobal},
		{Kind: EventAdminSupport, EventID: "e1"},
		{Kind: Kind(99)},
	} {
		_, err := d.RoomID()
		assert.True(t, errors.Is(err, ErrUnknownRoomKind), "%+v", d)
	}
}

func TestParseRoomID_Invalid(t *testing.T) {
	for _, id := range []string{"", "order:", "event:e1", "event:e1:support:", "lobby"} {
		_, err := ParseRoomID(id)
		assert.True(t, errors.Is(err, ErrUnknownRoomKind), id)
	}
}

func TestParseKind(t *testing.T) {
	for _, k := range []Kind{OrderSupport, CommunityGlobal, EventGlobal, EventAdminSupport} {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("lobby")
	assert.True(t, errors.Is(err, ErrUnknownRoomKind))
}

func TestPolicy_Authorize(t *testing.T) {
	p := Policy{Members: members{
		orders: map[string]string{"42": "alice"},
		events: map[string][]string{"e1": {"alice", "bob"}},
	}}
	alice := models.Viewer{ID: "alice", DisplayName: "Alice"}
	bob := models.Viewer{ID: "bob", DisplayName: "Bob"}
	staff := models.Viewer{ID: "s1", DisplayName: "Ops", Privileged: true}
	guest := models.Viewer{}

	order := Descriptor{Kind: OrderSupport, OrderID: "42"}
	event := Descriptor{Kind: EventGlobal, EventID: "e1"}
	support := Descriptor{Kind: EventAdminSupport, EventID: "e1", OrderID: "42"}
	community := Descriptor{Kind: CommunityGlobal}

	tests := []struct {
		name   string
		viewer models.Viewer
		d      Descriptor
		ok     bool
	}{
		{"owner enters order room", alice, order, true},
		{"stranger refused order room", bob, order, false},
		{"staff enters order room", staff, order, true},
		{"guest refused order room", guest, order, false},
		{"participant enters event room", bob, event, true},
		{"guest refused event room", guest, event, false},
		{"leader enters support room", alice, support, true},
		{"participant refused support room", bob, support, false},
		{"guest reads community", guest, community, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := p.Authorize(tt.viewer, tt.d)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.True(t, errors.Is(err, ErrUnauthorized), "got %v", err)
			}
		})
	}
}

func TestPolicy_NoMembership(t *testing.T) {
	err := Policy{}.Authorize(models.Viewer{ID: "alice"}, Descriptor{Kind: OrderSupport, OrderID: "42"})
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.NoError(t, AllowAll{}.Authorize(models.Viewer{}, Descriptor{Kind: OrderSupport, OrderID: "42"}))
}
