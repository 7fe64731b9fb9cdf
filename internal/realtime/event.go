package realtime

import (
	"fmt"
	"time"
)

// Event types pushed to live connections.
const (
	EventUserJoined               = "UserJoined"
	EventUserLeft                 = "UserLeft"
	EventReceiveNotification      = "ReceiveNotification"
	EventNewActivityCreated       = "NewActivityCreated"
	EventParticipantsUpdated      = "ParticipantsUpdated"
	EventNewRegistration          = "NewRegistration"
	EventRegistrationStatusUpdate = "RegistrationStatusUpdate"
	EventActivityUpdated          = "ActivityUpdated"
	EventNotificationRead         = "NotificationRead"
	EventAllNotificationsRead     = "AllNotificationsRead"
)

// Event is the payload delivered over a live connection.
type Event struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewEvent stamps an event with the current time.
func NewEvent(eventType string, payload map[string]any) Event {
	return Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// UserGroup names the personal group every connection of a user joins.
func UserGroup(userID string) string {
	return "User_" + userID
}

// ActivityGroup names the subscription group for one activity's watchers.
func ActivityGroup(activityID uint) string {
	return fmt.Sprintf("Activity_%d", activityID)
}
