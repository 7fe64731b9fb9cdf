package models

import "time"

// Notification is the durable inbox record of a delivered (or deliverable)
// event. Live delivery is best-effort; this row is the record of truth.
// Rows are only ever mutated to flip the read flag.
type Notification struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         string     `gorm:"size:64;index;not null" json:"user_id"`
	Title          string     `gorm:"size:255;not null" json:"title"`
	Content        string     `gorm:"type:text" json:"content"`
	Type           string     `gorm:"size:64;not null" json:"type"`
	Read           bool       `gorm:"not null;default:false" json:"read"`
	ActivityID     *uint      `gorm:"index" json:"activity_id,omitempty"`
	RegistrationID *uint      `json:"registration_id,omitempty"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
