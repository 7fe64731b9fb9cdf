package realtime

import (
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-activity-api/internal/domain"
)

func newTestRegistry(buffer int) *Registry {
	return NewRegistry(buffer, zerolog.New(io.Discard))
}

func connect(t *testing.T, registry *Registry, userID string, role domain.Role) *Client {
	t.Helper()
	client := NewClient(registry, nil, domain.Principal{UserID: userID, DisplayName: userID, Role: role})
	registry.Connect(client)
	return client
}

func drain(c *Client) []Event {
	var events []Event
	for {
		select {
		case event := <-c.send:
			events = append(events, event)
		default:
			return events
		}
	}
}

func TestRegistryConnectAutoJoinsRoleAndUserGroups(t *testing.T) {
	registry := newTestRegistry(4)
	client := connect(t, registry, "student-1", domain.RoleStudent)

	require.Equal(t, 1, registry.GroupSize("Students"))
	require.Equal(t, 1, registry.GroupSize(UserGroup("student-1")))
	require.Zero(t, registry.GroupSize("Teachers"))

	events := drain(client)
	require.Len(t, events, 1, "the client hears its own join announcement")
	require.Equal(t, EventUserJoined, events[0].Type)
	require.Equal(t, "student-1", events[0].Payload["user_id"])
}

func TestRegistryBroadcastGroupReachesOnlyMembers(t *testing.T) {
	registry := newTestRegistry(4)
	student := connect(t, registry, "student-1", domain.RoleStudent)
	teacher := connect(t, registry, "teacher-1", domain.RoleTeacher)
	drain(student)
	drain(teacher)

	registry.BroadcastGroup("Students", NewEvent(EventNewActivityCreated, map[string]any{"activity_id": uint(7)}))

	studentEvents := drain(student)
	require.Len(t, studentEvents, 1)
	require.Equal(t, EventNewActivityCreated, studentEvents[0].Type)
	require.Empty(t, drain(teacher))
}

func TestRegistrySendToUserReachesEveryConnection(t *testing.T) {
	registry := newTestRegistry(4)
	tab1 := connect(t, registry, "student-1", domain.RoleStudent)
	tab2 := connect(t, registry, "student-1", domain.RoleStudent)
	other := connect(t, registry, "student-2", domain.RoleStudent)
	drain(tab1)
	drain(tab2)
	drain(other)

	registry.SendToUser("student-1", NewEvent(EventReceiveNotification, map[string]any{"title": "Approved"}))

	require.Len(t, drain(tab1), 1)
	require.Len(t, drain(tab2), 1)
	require.Empty(t, drain(other))
}

func TestRegistryDeliveryIsFIFOPerConnection(t *testing.T) {
	registry := newTestRegistry(8)
	client := connect(t, registry, "student-1", domain.RoleStudent)
	drain(client)

	registry.SendToUser("student-1", NewEvent(EventReceiveNotification, map[string]any{"seq": 1}))
	registry.SendToUser("student-1", NewEvent(EventReceiveNotification, map[string]any{"seq": 2}))
	registry.SendToUser("student-1", NewEvent(EventReceiveNotification, map[string]any{"seq": 3}))

	events := drain(client)
	require.Len(t, events, 3)
	require.Equal(t, 1, events[0].Payload["seq"])
	require.Equal(t, 2, events[1].Payload["seq"])
	require.Equal(t, 3, events[2].Payload["seq"])
}

func TestRegistrySlowClientDropsInsteadOfBlocking(t *testing.T) {
	registry := newTestRegistry(1)
	client := connect(t, registry, "student-1", domain.RoleStudent)
	// The join announcement already fills the single-slot queue.

	registry.SendToUser("student-1", NewEvent(EventReceiveNotification, map[string]any{"seq": 2}))

	events := drain(client)
	require.Len(t, events, 1)
	require.Equal(t, EventUserJoined, events[0].Type, "the queued event survives, the overflow is dropped")
}

func TestRegistryJoinAndLeaveActivityGroup(t *testing.T) {
	registry := newTestRegistry(4)
	client := connect(t, registry, "student-1", domain.RoleStudent)
	drain(client)

	group := ActivityGroup(12)
	registry.Join(client, group)
	require.Equal(t, 1, registry.GroupSize(group))

	registry.BroadcastGroup(group, NewEvent(EventParticipantsUpdated, map[string]any{"activity_id": uint(12)}))
	require.Len(t, drain(client), 1)

	registry.Leave(client, group)
	require.Zero(t, registry.GroupSize(group))

	registry.BroadcastGroup(group, NewEvent(EventParticipantsUpdated, map[string]any{"activity_id": uint(12)}))
	require.Empty(t, drain(client))
}

func TestRegistryDisconnectIsIdempotent(t *testing.T) {
	registry := newTestRegistry(4)
	client := connect(t, registry, "student-1", domain.RoleStudent)
	registry.Join(client, ActivityGroup(3))
	drain(client)

	witness := connect(t, registry, "student-2", domain.RoleStudent)
	drain(witness)

	registry.Disconnect(client)
	require.Zero(t, registry.GroupSize(UserGroup("student-1")))
	require.Zero(t, registry.GroupSize(ActivityGroup(3)))
	require.Equal(t, 1, registry.GroupSize("Students"))

	left := drain(witness)
	require.Len(t, left, 1)
	require.Equal(t, EventUserLeft, left[0].Type)

	// A second disconnect must not announce a second departure.
	registry.Disconnect(client)
	require.Empty(t, drain(witness))
}

func TestRegistryJoinAfterDisconnectIsIgnored(t *testing.T) {
	registry := newTestRegistry(4)
	client := connect(t, registry, "student-1", domain.RoleStudent)
	registry.Disconnect(client)

	registry.Join(client, ActivityGroup(9))
	require.Zero(t, registry.GroupSize(ActivityGroup(9)))
}
