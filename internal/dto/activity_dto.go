package dto

import (
	"time"

	"github.com/noah-isme/sma-activity-api/internal/models"
)

// ActivityCreateRequest is the payload to create a new activity.
type ActivityCreateRequest struct {
	Title           string    `json:"title" validate:"required,min=3,max=255"`
	Description     string    `json:"description" validate:"omitempty,max=4000"`
	Location        string    `json:"location" validate:"required,max=255"`
	StartTime       time.Time `json:"start_time" validate:"required"`
	EndTime         time.Time `json:"end_time" validate:"required"`
	MaxParticipants int       `json:"max_participants" validate:"required,min=1"`
	RequireApproval bool      `json:"require_approval"`
}

// ActivityUpdateRequest patches an existing activity; nil fields are left
// untouched.
type ActivityUpdateRequest struct {
	Title           *string    `json:"title" validate:"omitempty,min=3,max=255"`
	Description     *string    `json:"description" validate:"omitempty,max=4000"`
	Location        *string    `json:"location" validate:"omitempty,max=255"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	MaxParticipants *int       `json:"max_participants" validate:"omitempty,min=1"`
	RequireApproval *bool      `json:"require_approval"`
}

// ActivityListQuery filters activity listings.
type ActivityListQuery struct {
	Status   string `query:"status" validate:"omitempty,oneof=open full closed cancelled completed"`
	Owner    string `query:"owner" validate:"omitempty,max=64"`
	Page     int    `query:"page" validate:"omitempty,min=1"`
	PageSize int    `query:"page_size" validate:"omitempty,min=1,max=100"`
}

// PaginationMeta describes list paging.
type PaginationMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// ActivityResponse is the serialized representation of an activity.
type ActivityResponse struct {
	ID                  uint      `json:"id"`
	Title               string    `json:"title"`
	Description         string    `json:"description,omitempty"`
	Location            string    `json:"location"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	MaxParticipants     int       `json:"max_participants"`
	CurrentParticipants int       `json:"current_participants"`
	Status              string    `json:"status"`
	RequireApproval     bool      `json:"require_approval"`
	OwnerID             string    `json:"owner_id"`
	CreatedAt           time.Time `json:"created_at"`
}

// ActivityListResponse bundles a page of activities.
type ActivityListResponse struct {
	Items      []ActivityResponse `json:"items"`
	Pagination PaginationMeta     `json:"pagination"`
	CacheHit   bool               `json:"-"`
}

// NewActivityResponse converts a model into a DTO.
func NewActivityResponse(activity models.Activity) ActivityResponse {
	return ActivityResponse{
		ID:                  activity.ID,
		Title:               activity.Title,
		Description:         activity.Description,
		Location:            activity.Location,
		StartTime:           activity.StartTime,
		EndTime:             activity.EndTime,
		MaxParticipants:     activity.MaxParticipants,
		CurrentParticipants: activity.CurrentParticipants,
		Status:              string(activity.Status),
		RequireApproval:     activity.RequireApproval,
		OwnerID:             activity.OwnerID,
		CreatedAt:           activity.CreatedAt,
	}
}

// NewActivityResponseSlice converts a slice of models into DTOs.
func NewActivityResponseSlice(activities []models.Activity) []ActivityResponse {
	out := make([]ActivityResponse, 0, len(activities))
	for _, activity := range activities {
		out = append(out, NewActivityResponse(activity))
	}
	return out
}
