package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/sma-activity-api/internal/domain"
	"github.com/noah-isme/sma-activity-api/internal/models"
)

var activeStatuses = []string{
	string(models.RegistrationPending),
	string(models.RegistrationApproved),
}

// RegistrationRepository owns every registration state transition. Each
// transition runs inside one transaction together with its seat-count
// mutation, so a failure leaves both tables untouched. Seat claims are
// conditional updates guarded by the current count: of N racing claims for
// the last seat exactly one matches the guard, the rest see zero rows.
type RegistrationRepository interface {
	// Register inserts a new registration after re-checking, inside the
	// transaction, that the activity is open and the student holds no active
	// registration for it. When the registration arrives pre-approved it also
	// claims a seat.
	Register(ctx context.Context, registration *models.Registration) error
	Approve(ctx context.Context, id uint, approverID string) (models.Registration, error)
	Reject(ctx context.Context, id uint, approverID string, reason string) (models.Registration, error)
	Cancel(ctx context.Context, id uint) (models.Registration, error)
	UpdateAttendance(ctx context.Context, id uint, status models.AttendanceStatus) (models.Registration, error)
	FindByID(ctx context.Context, id uint) (models.Registration, error)
	ListByActivity(ctx context.Context, activityID uint) ([]models.Registration, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Registration, error)
	// HasApprovedOverlap reports whether the student holds an approved
	// registration on a live activity whose window overlaps [start, end).
	HasApprovedOverlap(ctx context.Context, studentID string, start, end time.Time) (bool, error)
}

type registrationRepository struct {
	db *gorm.DB
}

// NewRegistrationRepository constructs a repository backed by GORM.
func NewRegistrationRepository(db *gorm.DB) RegistrationRepository {
	return &registrationRepository{db: db}
}

func (r *registrationRepository) Register(ctx context.Context, registration *models.Registration) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var activity models.Activity
		if err := tx.First(&activity, registration.ActivityID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundf("activity %d", registration.ActivityID)
			}
			return err
		}
		if activity.Status != models.ActivityOpen {
			return domain.Conflictf("activity %d is %s", activity.ID, activity.Status)
		}

		var active int64
		if err := tx.Model(&models.Registration{}).
			Where("activity_id = ? AND student_id = ? AND status IN ?", registration.ActivityID, registration.StudentID, activeStatuses).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return domain.Conflictf("student %s already has an active registration for activity %d", registration.StudentID, registration.ActivityID)
		}

		if registration.Status == models.RegistrationApproved {
			if err := claimSeat(tx, registration.ActivityID); err != nil {
				return err
			}
		}

		if err := tx.Create(registration).Error; err != nil {
			// Two racing inserts for the same pair both pass the count above;
			// the partial unique index over active rows stops the second one.
			if isDuplicateKey(err) {
				return domain.Conflictf("student %s already has an active registration for activity %d", registration.StudentID, registration.ActivityID)
			}
			return err
		}
		return nil
	})
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}

func (r *registrationRepository) Approve(ctx context.Context, id uint, approverID string) (models.Registration, error) {
	var registration models.Registration
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&registration, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundf("registration %d", id)
			}
			return err
		}

		// The transition itself is conditional on the pending status, so two
		// concurrent approvals of the same registration cannot both pass and
		// claim two seats. The loser sees zero rows.
		now := time.Now().UTC()
		result := tx.Model(&models.Registration{}).
			Where("id = ? AND status = ?", id, models.RegistrationPending).
			Updates(map[string]any{
				"status":      models.RegistrationApproved,
				"approved_at": now,
				"approved_by": approverID,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if err := tx.First(&registration, id).Error; err != nil {
				return err
			}
			return domain.Conflictf("registration %d is %s", id, registration.Status)
		}

		// The activity may have filled through other approvals since the
		// registration was created; the claim re-checks capacity here.
		if err := claimSeat(tx, registration.ActivityID); err != nil {
			return err
		}

		return tx.First(&registration, id).Error
	})
	if err != nil {
		return models.Registration{}, err
	}
	return registration, nil
}

func (r *registrationRepository) Reject(ctx context.Context, id uint, approverID string, reason string) (models.Registration, error) {
	var registration models.Registration
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&registration, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundf("registration %d", id)
			}
			return err
		}

		notes := registration.Notes
		if reason = strings.TrimSpace(reason); reason != "" {
			if notes != "" {
				notes += "\n"
			}
			notes += reason
		}

		// Conditional on pending, so a racing approval or cancellation wins
		// cleanly and this rejection reports a conflict.
		now := time.Now().UTC()
		result := tx.Model(&models.Registration{}).
			Where("id = ? AND status = ?", id, models.RegistrationPending).
			Updates(map[string]any{
				"status":      models.RegistrationRejected,
				"approved_at": now,
				"approved_by": approverID,
				"notes":       notes,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if err := tx.First(&registration, id).Error; err != nil {
				return err
			}
			return domain.Conflictf("registration %d is %s", id, registration.Status)
		}
		return tx.First(&registration, id).Error
	})
	if err != nil {
		return models.Registration{}, err
	}
	return registration, nil
}

func (r *registrationRepository) Cancel(ctx context.Context, id uint) (models.Registration, error) {
	var registration models.Registration
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&registration, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundf("registration %d", id)
			}
			return err
		}

		// Cancel approved first and release the seat only when that row was
		// hit; a second concurrent cancel matches neither branch and cannot
		// release the seat twice.
		approved := tx.Model(&models.Registration{}).
			Where("id = ? AND status = ?", id, models.RegistrationApproved).
			Update("status", models.RegistrationCancelled)
		if approved.Error != nil {
			return approved.Error
		}
		if approved.RowsAffected == 1 {
			if err := releaseSeat(tx, registration.ActivityID); err != nil {
				return err
			}
			return tx.First(&registration, id).Error
		}

		pending := tx.Model(&models.Registration{}).
			Where("id = ? AND status = ?", id, models.RegistrationPending).
			Update("status", models.RegistrationCancelled)
		if pending.Error != nil {
			return pending.Error
		}
		if pending.RowsAffected == 0 {
			if err := tx.First(&registration, id).Error; err != nil {
				return err
			}
			return domain.Conflictf("registration %d is %s", id, registration.Status)
		}
		return tx.First(&registration, id).Error
	})
	if err != nil {
		return models.Registration{}, err
	}
	return registration, nil
}

func (r *registrationRepository) UpdateAttendance(ctx context.Context, id uint, status models.AttendanceStatus) (models.Registration, error) {
	var registration models.Registration
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Registration{}).
			Where("id = ? AND status = ?", id, models.RegistrationApproved).
			Update("attendance", status)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			if err := tx.First(&registration, id).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return domain.NotFoundf("registration %d", id)
				}
				return err
			}
			return domain.Conflictf("registration %d is %s, attendance requires approved", id, registration.Status)
		}
		return tx.First(&registration, id).Error
	})
	if err != nil {
		return models.Registration{}, err
	}
	return registration, nil
}

func (r *registrationRepository) FindByID(ctx context.Context, id uint) (models.Registration, error) {
	var registration models.Registration
	if err := r.db.WithContext(ctx).First(&registration, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Registration{}, domain.NotFoundf("registration %d", id)
		}
		return models.Registration{}, err
	}
	return registration, nil
}

func (r *registrationRepository) ListByActivity(ctx context.Context, activityID uint) ([]models.Registration, error) {
	var registrations []models.Registration
	if err := r.db.WithContext(ctx).
		Where("activity_id = ?", activityID).
		Order("created_at ASC").
		Find(&registrations).Error; err != nil {
		return nil, err
	}
	return registrations, nil
}

func (r *registrationRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Registration, error) {
	var registrations []models.Registration
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Find(&registrations).Error; err != nil {
		return nil, err
	}
	return registrations, nil
}

func (r *registrationRepository) HasApprovedOverlap(ctx context.Context, studentID string, start, end time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Registration{}).
		Joins("JOIN activities ON activities.id = registrations.activity_id").
		Where("registrations.student_id = ? AND registrations.status = ?", studentID, models.RegistrationApproved).
		Where("activities.status <> ?", models.ActivityCancelled).
		Where("activities.start_time < ? AND ? < activities.end_time", end, start).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// claimSeat atomically takes one seat on an open activity and re-derives the
// status. Zero affected rows means the activity is no longer open or is at
// capacity; the follow-up read decides which conflict to report.
func claimSeat(tx *gorm.DB, activityID uint) error {
	result := tx.Model(&models.Activity{}).
		Where("id = ? AND status = ? AND current_participants < max_participants", activityID, models.ActivityOpen).
		Updates(map[string]any{
			"current_participants": gorm.Expr("current_participants + 1"),
			"status":               gorm.Expr("CASE WHEN current_participants + 1 >= max_participants THEN ? ELSE ? END", models.ActivityFull, models.ActivityOpen),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var activity models.Activity
		if err := tx.First(&activity, activityID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.NotFoundf("activity %d", activityID)
			}
			return err
		}
		if activity.Status != models.ActivityOpen {
			return domain.Conflictf("activity %d is %s", activityID, activity.Status)
		}
		return domain.Conflictf("activity %d is at capacity", activityID)
	}
	return nil
}

// releaseSeat gives back one seat and reverts Full to Open when the count
// drops below capacity. Terminal statuses freeze the count, so their rows do
// not match and the release is a no-op.
func releaseSeat(tx *gorm.DB, activityID uint) error {
	return tx.Model(&models.Activity{}).
		Where("id = ? AND status IN ? AND current_participants > 0", activityID, []string{string(models.ActivityOpen), string(models.ActivityFull)}).
		Updates(map[string]any{
			"current_participants": gorm.Expr("current_participants - 1"),
			"status":               gorm.Expr("CASE WHEN current_participants - 1 < max_participants THEN ? ELSE status END", models.ActivityOpen),
		}).Error
}
