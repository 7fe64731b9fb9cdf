package models

import "time"

// RegistrationStatus enumerates the states of an enrollment record.
type RegistrationStatus string

// Registration states. Pending may move to Approved or Rejected; Pending and
// Approved may move to Cancelled. Rejected and Cancelled never re-transition.
const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationApproved  RegistrationStatus = "approved"
	RegistrationRejected  RegistrationStatus = "rejected"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// Active reports whether the registration still occupies or may occupy a
// seat. Uniqueness per (activity, student) is enforced over active rows only;
// a cancelled or rejected row does not block re-registration.
func (s RegistrationStatus) Active() bool {
	return s == RegistrationPending || s == RegistrationApproved
}

// AttendanceStatus records whether an approved registrant showed up.
type AttendanceStatus string

// Attendance values.
const (
	AttendanceNotSet  AttendanceStatus = "not_set"
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
)

// Registration is a student's enrollment record against one activity.
// Rows are never deleted; state history survives as terminal rows. The
// partial unique index over active rows makes the one-active-registration
// rule hold at the datastore even when two inserts race.
type Registration struct {
	ID         uint               `gorm:"primaryKey" json:"id"`
	ActivityID uint               `gorm:"index:idx_registrations_pair;uniqueIndex:uidx_registrations_active,where:status = 'pending' OR status = 'approved';not null" json:"activity_id"`
	StudentID  string             `gorm:"size:64;index:idx_registrations_pair;uniqueIndex:uidx_registrations_active;not null" json:"student_id"`
	Status     RegistrationStatus `gorm:"size:32;index;not null;default:pending" json:"status"`
	Attendance AttendanceStatus   `gorm:"size:16;not null;default:not_set" json:"attendance"`
	Notes      string             `gorm:"type:text" json:"notes"`
	ApprovedAt *time.Time         `json:"approved_at,omitempty"`
	ApprovedBy string             `gorm:"size:64" json:"approved_by,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}
