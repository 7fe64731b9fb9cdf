package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/sma-activity-api/internal/domain"
	"github.com/noah-isme/sma-activity-api/internal/models"
)

// ActivityFilter narrows activity listings.
type ActivityFilter struct {
	Status   models.ActivityStatus
	OwnerID  string
	Page     int
	PageSize int
}

// ActivityRepository handles persistence for activity entities. Participant
// counts are never written here; they move only through the conditional
// updates owned by the registration repository.
type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	FindByID(ctx context.Context, id uint) (models.Activity, error)
	// UpdateDetails patches editable columns only. The participant counter
	// never passes through here, so a seat claimed concurrently with an edit
	// survives it. A capacity change is guarded against the live count and
	// re-derives the open/full split inside the same transaction.
	UpdateDetails(ctx context.Context, id uint, fields map[string]any) (models.Activity, error)
	List(ctx context.Context, filter ActivityFilter) ([]models.Activity, int64, error)
	// SetStatus transitions status only when the activity is currently in one
	// of the allowed states; returns ErrConflict otherwise.
	SetStatus(ctx context.Context, id uint, status models.ActivityStatus, allowedFrom []models.ActivityStatus) (models.Activity, error)
	// HasOwnerOverlap reports whether the owner already has a non-cancelled
	// activity whose time window overlaps [start, end).
	HasOwnerOverlap(ctx context.Context, ownerID string, start, end time.Time, excludeID uint) (bool, error)
}

type activityRepository struct {
	db *gorm.DB
}

// NewActivityRepository constructs a repository backed by GORM.
func NewActivityRepository(db *gorm.DB) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Create(ctx context.Context, activity *models.Activity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *activityRepository) FindByID(ctx context.Context, id uint) (models.Activity, error) {
	var activity models.Activity
	if err := r.db.WithContext(ctx).First(&activity, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Activity{}, domain.NotFoundf("activity %d", id)
		}
		return models.Activity{}, err
	}
	return activity, nil
}

// editableActivityColumns is the whitelist for UpdateDetails. Status and
// current_participants are absent on purpose; they move only through
// SetStatus and the registration repository's conditional updates.
var editableActivityColumns = map[string]bool{
	"title":            true,
	"description":      true,
	"location":         true,
	"start_time":       true,
	"end_time":         true,
	"max_participants": true,
	"require_approval": true,
}

func (r *activityRepository) UpdateDetails(ctx context.Context, id uint, fields map[string]any) (models.Activity, error) {
	for column := range fields {
		if !editableActivityColumns[column] {
			return models.Activity{}, fmt.Errorf("activity column %q is not editable", column)
		}
	}

	var activity models.Activity
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(fields) > 0 {
			query := tx.Model(&models.Activity{}).Where("id = ?", id)
			newMax, capacityChanged := fields["max_participants"]
			if capacityChanged {
				query = query.Where("current_participants <= ?", newMax)
			}
			result := query.Updates(fields)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				if err := tx.First(&activity, id).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return domain.NotFoundf("activity %d", id)
					}
					return err
				}
				if capacityChanged {
					return domain.Conflictf("capacity %v is below the current %d participants", newMax, activity.CurrentParticipants)
				}
				return domain.Conflictf("activity %d could not be updated", id)
			}
			if capacityChanged {
				// Capacity changed; re-derive the open/full split against the
				// live count. Terminal statuses stay put.
				if err := tx.Model(&models.Activity{}).
					Where("id = ? AND status IN ?", id, []string{string(models.ActivityOpen), string(models.ActivityFull)}).
					Update("status", gorm.Expr("CASE WHEN current_participants >= max_participants THEN ? ELSE ? END", models.ActivityFull, models.ActivityOpen)).Error; err != nil {
					return err
				}
			}
		}
		if err := tx.First(&activity, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundf("activity %d", id)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return models.Activity{}, err
	}
	return activity, nil
}

func (r *activityRepository) List(ctx context.Context, filter ActivityFilter) ([]models.Activity, int64, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	query := r.db.WithContext(ctx).Model(&models.Activity{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.OwnerID != "" {
		query = query.Where("owner_id = ?", filter.OwnerID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var activities []models.Activity
	if err := query.
		Order("start_time ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&activities).Error; err != nil {
		return nil, 0, err
	}

	return activities, total, nil
}

func (r *activityRepository) SetStatus(ctx context.Context, id uint, status models.ActivityStatus, allowedFrom []models.ActivityStatus) (models.Activity, error) {
	var activity models.Activity
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Activity{}).
			Where("id = ? AND status IN ?", id, statusStrings(allowedFrom)).
			Update("status", status)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if err := tx.First(&activity, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return domain.NotFoundf("activity %d", id)
				}
				return err
			}
			return domain.Conflictf("activity %d is %s", id, activity.Status)
		}
		return tx.First(&activity, id).Error
	})
	if err != nil {
		return models.Activity{}, err
	}
	return activity, nil
}

func (r *activityRepository) HasOwnerOverlap(ctx context.Context, ownerID string, start, end time.Time, excludeID uint) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&models.Activity{}).
		Where("owner_id = ? AND status <> ?", ownerID, models.ActivityCancelled).
		Where("start_time < ? AND ? < end_time", end, start)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func statusStrings(statuses []models.ActivityStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
