package dto

import (
	"time"

	"github.com/noah-isme/sma-activity-api/internal/models"
)

// RegistrationCreateRequest is the payload a student sends to enroll.
type RegistrationCreateRequest struct {
	ActivityID uint   `json:"activity_id" validate:"required,min=1"`
	Notes      string `json:"notes" validate:"omitempty,max=1000"`
}

// RegistrationRejectRequest carries the reviewer's reason for a rejection.
type RegistrationRejectRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=1000"`
}

// AttendanceUpdateRequest records whether an approved registrant showed up.
type AttendanceUpdateRequest struct {
	Status string `json:"status" validate:"required,oneof=present absent not_set"`
}

// RegistrationResponse is the serialized representation of a registration.
type RegistrationResponse struct {
	ID         uint       `json:"id"`
	ActivityID uint       `json:"activity_id"`
	StudentID  string     `json:"student_id"`
	Status     string     `json:"status"`
	Attendance string     `json:"attendance"`
	Notes      string     `json:"notes,omitempty"`
	ApprovedAt *time.Time `json:"approved_at,omitempty"`
	ApprovedBy string     `json:"approved_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// NewRegistrationResponse converts a model into a DTO.
func NewRegistrationResponse(registration models.Registration) RegistrationResponse {
	return RegistrationResponse{
		ID:         registration.ID,
		ActivityID: registration.ActivityID,
		StudentID:  registration.StudentID,
		Status:     string(registration.Status),
		Attendance: string(registration.Attendance),
		Notes:      registration.Notes,
		ApprovedAt: registration.ApprovedAt,
		ApprovedBy: registration.ApprovedBy,
		CreatedAt:  registration.CreatedAt,
	}
}

// NewRegistrationResponseSlice converts a slice of models into DTOs.
func NewRegistrationResponseSlice(registrations []models.Registration) []RegistrationResponse {
	out := make([]RegistrationResponse, 0, len(registrations))
	for _, registration := range registrations {
		out = append(out, NewRegistrationResponse(registration))
	}
	return out
}
