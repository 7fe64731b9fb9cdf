package models

import "time"

// ActivityStatus enumerates the lifecycle states of an activity.
type ActivityStatus string

// Activity lifecycle states. Open and Full flip back and forth as the
// participant count crosses capacity; Closed, Cancelled and Completed are
// terminal and freeze the count.
const (
	ActivityOpen      ActivityStatus = "open"
	ActivityFull      ActivityStatus = "full"
	ActivityClosed    ActivityStatus = "closed"
	ActivityCancelled ActivityStatus = "cancelled"
	ActivityCompleted ActivityStatus = "completed"
)

// Terminal reports whether the status permits no further transitions or
// participant-count mutation.
func (s ActivityStatus) Terminal() bool {
	return s == ActivityClosed || s == ActivityCancelled || s == ActivityCompleted
}

// Activity is a capacity-limited, time-boxed event students enroll in.
// The participant count is mutated only through the conditional updates in
// the registration repository; activities are never hard-deleted.
type Activity struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	Title               string         `gorm:"size:255;not null" json:"title"`
	Description         string         `gorm:"type:text" json:"description"`
	Location            string         `gorm:"size:255" json:"location"`
	StartTime           time.Time      `gorm:"index;not null" json:"start_time"`
	EndTime             time.Time      `gorm:"not null" json:"end_time"`
	MaxParticipants     int            `gorm:"not null" json:"max_participants"`
	CurrentParticipants int            `gorm:"not null;default:0" json:"current_participants"`
	Status              ActivityStatus `gorm:"size:32;index;not null;default:open" json:"status"`
	RequireApproval     bool           `gorm:"not null;default:false" json:"require_approval"`
	OwnerID             string         `gorm:"size:64;index;not null" json:"owner_id"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}
