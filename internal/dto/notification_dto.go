package dto

import (
	"time"

	"github.com/noah-isme/sma-activity-api/internal/models"
)

// NotificationResponse is the serialized representation of a durable
// notification.
type NotificationResponse struct {
	ID             uint       `json:"id"`
	UserID         string     `json:"user_id"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	Type           string     `json:"type"`
	Read           bool       `json:"read"`
	ActivityID     *uint      `json:"activity_id,omitempty"`
	RegistrationID *uint      `json:"registration_id,omitempty"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// UnreadCountResponse reports how many notifications are unread.
type UnreadCountResponse struct {
	Count int64 `json:"count"`
}

// NewNotificationResponse converts a model into a DTO.
func NewNotificationResponse(notification models.Notification) NotificationResponse {
	return NotificationResponse{
		ID:             notification.ID,
		UserID:         notification.UserID,
		Title:          notification.Title,
		Content:        notification.Content,
		Type:           notification.Type,
		Read:           notification.Read,
		ActivityID:     notification.ActivityID,
		RegistrationID: notification.RegistrationID,
		ReadAt:         notification.ReadAt,
		CreatedAt:      notification.CreatedAt,
	}
}

// NewNotificationResponseSlice converts a slice of models into DTOs.
func NewNotificationResponseSlice(notifications []models.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(notifications))
	for _, notification := range notifications {
		out = append(out, NewNotificationResponse(notification))
	}
	return out
}
