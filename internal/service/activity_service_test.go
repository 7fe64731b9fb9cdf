package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-activity-api/internal/domain"
	"github.com/noah-isme/sma-activity-api/internal/dto"
	"github.com/noah-isme/sma-activity-api/internal/models"
	"github.com/noah-isme/sma-activity-api/internal/realtime"
	"github.com/noah-isme/sma-activity-api/internal/repository"
)

func validCreateRequest() dto.ActivityCreateRequest {
	now := time.Now()
	return dto.ActivityCreateRequest{
		Title:           "Robotics Workshop",
		Description:     "Build a line follower",
		Location:        "Lab 2",
		StartTime:       now.Add(24 * time.Hour),
		EndTime:         now.Add(26 * time.Hour),
		MaxParticipants: 10,
	}
}

func TestActivityServiceCreate(t *testing.T) {
	_, sink, _, _, activities := newTestStack(t)

	response, err := activities.Create(context.Background(), ownerPrincipal, validCreateRequest())
	require.NoError(t, err)
	require.Equal(t, string(models.ActivityOpen), response.Status)
	require.Equal(t, "teacher-1", response.OwnerID)

	announcements := sink.byType(realtime.EventNewActivityCreated)
	require.Len(t, announcements, 1)
	require.Equal(t, "Students", announcements[0].Group)
}

func TestActivityServiceCreateValidation(t *testing.T) {
	_, _, _, _, activities := newTestStack(t)

	_, err := activities.Create(context.Background(), studentPrincipal, validCreateRequest())
	require.ErrorIs(t, err, domain.ErrForbidden)

	backwards := validCreateRequest()
	backwards.StartTime, backwards.EndTime = backwards.EndTime, backwards.StartTime
	_, err = activities.Create(context.Background(), ownerPrincipal, backwards)
	require.ErrorIs(t, err, domain.ErrValidation)

	past := validCreateRequest()
	past.StartTime = time.Now().Add(-2 * time.Hour)
	past.EndTime = time.Now().Add(-time.Hour)
	_, err = activities.Create(context.Background(), ownerPrincipal, past)
	require.ErrorIs(t, err, domain.ErrValidation)

	scripted := validCreateRequest()
	scripted.Title = "<script>alert(1)</script>"
	_, err = activities.Create(context.Background(), ownerPrincipal, scripted)
	require.ErrorIs(t, err, domain.ErrValidation, "a title that sanitizes to nothing is rejected")
}

func TestActivityServiceCreateOwnerOverlap(t *testing.T) {
	_, _, _, _, activities := newTestStack(t)

	_, err := activities.Create(context.Background(), ownerPrincipal, validCreateRequest())
	require.NoError(t, err)

	shifted := validCreateRequest()
	shifted.Title = "Second Session"
	shifted.StartTime = shifted.StartTime.Add(time.Hour)
	shifted.EndTime = shifted.EndTime.Add(time.Hour)
	_, err = activities.Create(context.Background(), ownerPrincipal, shifted)
	require.ErrorIs(t, err, domain.ErrConflict)

	// A different owner can use the same window.
	other := domain.Principal{UserID: "teacher-2", Role: domain.RoleTeacher}
	_, err = activities.Create(context.Background(), other, shifted)
	require.NoError(t, err)
}

func TestActivityServiceUpdate(t *testing.T) {
	db, sink, _, _, activities := newTestStack(t)
	activity := seedServiceActivity(t, db, 5, false)
	sink.reset()

	title := "Advanced Robotics"
	updated, err := activities.Update(context.Background(), ownerPrincipal, activity.ID, dto.ActivityUpdateRequest{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "Advanced Robotics", updated.Title)

	events := sink.byType(realtime.EventActivityUpdated)
	require.Len(t, events, 1)
	require.Equal(t, realtime.ActivityGroup(activity.ID), events[0].Group)

	// A description-only edit is not significant and stays quiet.
	sink.reset()
	description := "New syllabus"
	_, err = activities.Update(context.Background(), ownerPrincipal, activity.ID, dto.ActivityUpdateRequest{Description: &description})
	require.NoError(t, err)
	require.Empty(t, sink.byType(realtime.EventActivityUpdated))

	outsider := domain.Principal{UserID: "teacher-2", Role: domain.RoleTeacher}
	_, err = activities.Update(context.Background(), outsider, activity.ID, dto.ActivityUpdateRequest{Title: &title})
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestActivityServiceUpdateCapacityGuards(t *testing.T) {
	db, _, _, registrations, activities := newTestStack(t)
	activity := seedServiceActivity(t, db, 2, false)

	_, err := registrations.Register(context.Background(), studentPrincipal, dto.RegistrationCreateRequest{ActivityID: activity.ID})
	require.NoError(t, err)
	other := domain.Principal{UserID: "student-2", Role: domain.RoleStudent}
	_, err = registrations.Register(context.Background(), other, dto.RegistrationCreateRequest{ActivityID: activity.ID})
	require.NoError(t, err)

	// Shrinking below the current enrollment is refused.
	tooSmall := 1
	_, err = activities.Update(context.Background(), ownerPrincipal, activity.ID, dto.ActivityUpdateRequest{MaxParticipants: &tooSmall})
	require.ErrorIs(t, err, domain.ErrConflict)

	// Growing a full activity reopens it.
	bigger := 5
	updated, err := activities.Update(context.Background(), ownerPrincipal, activity.ID, dto.ActivityUpdateRequest{MaxParticipants: &bigger})
	require.NoError(t, err)
	require.Equal(t, string(models.ActivityOpen), updated.Status)
	require.Equal(t, 2, updated.CurrentParticipants)
}

// readHookActivities runs a hook once after the first FindByID, modelling a
// write that lands between the service's read and its update.
type readHookActivities struct {
	repository.ActivityRepository
	once sync.Once
	hook func()
}

func (r *readHookActivities) FindByID(ctx context.Context, id uint) (models.Activity, error) {
	activity, err := r.ActivityRepository.FindByID(ctx, id)
	r.once.Do(r.hook)
	return activity, err
}

func TestActivityServiceUpdateKeepsConcurrentEnrollment(t *testing.T) {
	db := setupServiceTestDB(t)
	sink := &recordingSink{}
	notifier := NewNotificationService(repository.NewNotificationRepository(db), sink, nil, "", nil, testLogger())
	registrationRepo := repository.NewRegistrationRepository(db)

	activity := seedServiceActivity(t, db, 1, false)

	hooked := &readHookActivities{
		ActivityRepository: repository.NewActivityRepository(db),
		hook: func() {
			require.NoError(t, registrationRepo.Register(context.Background(), &models.Registration{
				ActivityID: activity.ID,
				StudentID:  "student-1",
				Status:     models.RegistrationApproved,
			}))
		},
	}
	activities := NewActivityService(hooked, registrationRepo, notifier, nil, time.Second, testValidator(), testLogger())

	title := "Robotics Workshop, Lab 3"
	updated, err := activities.Update(context.Background(), ownerPrincipal, activity.ID, dto.ActivityUpdateRequest{Title: &title})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)
	require.Equal(t, 1, updated.CurrentParticipants, "the enrollment that landed during the edit must survive")
	require.Equal(t, string(models.ActivityFull), updated.Status)

	var reloaded models.Activity
	require.NoError(t, db.First(&reloaded, activity.ID).Error)
	require.Equal(t, 1, reloaded.CurrentParticipants)
	require.Equal(t, models.ActivityFull, reloaded.Status)
}

func TestActivityServiceCancelFansOutDurably(t *testing.T) {
	db, sink, _, registrations, activities := newTestStack(t)
	activity := seedServiceActivity(t, db, 10, false)

	students := []domain.Principal{
		{UserID: "student-1", Role: domain.RoleStudent},
		{UserID: "student-2", Role: domain.RoleStudent},
		{UserID: "student-3", Role: domain.RoleStudent},
	}
	for _, student := range students {
		_, err := registrations.Register(context.Background(), student, dto.RegistrationCreateRequest{ActivityID: activity.ID})
		require.NoError(t, err)
	}
	sink.reset()

	cancelled, err := activities.Cancel(context.Background(), ownerPrincipal, activity.ID)
	require.NoError(t, err)
	require.Equal(t, string(models.ActivityCancelled), cancelled.Status)

	// Every registrant gets a durable row they can read after reconnecting.
	var durable []models.Notification
	require.NoError(t, db.Where("type = ?", "activity_cancelled").Find(&durable).Error)
	require.Len(t, durable, 3)

	events := sink.byType(realtime.EventActivityUpdated)
	require.Len(t, events, 1)
	require.Equal(t, realtime.ActivityGroup(activity.ID), events[0].Group)

	// Cancellation is irrevocable.
	_, err = activities.Cancel(context.Background(), ownerPrincipal, activity.ID)
	require.ErrorIs(t, err, domain.ErrConflict)
	_, err = activities.Complete(context.Background(), ownerPrincipal, activity.ID)
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestActivityServiceCloseAndComplete(t *testing.T) {
	db, _, _, _, activities := newTestStack(t)
	activity := seedServiceActivity(t, db, 10, false)

	closed, err := activities.Close(context.Background(), ownerPrincipal, activity.ID)
	require.NoError(t, err)
	require.Equal(t, string(models.ActivityClosed), closed.Status)

	// Closing again conflicts, completing a closed activity works.
	_, err = activities.Close(context.Background(), ownerPrincipal, activity.ID)
	require.ErrorIs(t, err, domain.ErrConflict)

	completed, err := activities.Complete(context.Background(), ownerPrincipal, activity.ID)
	require.NoError(t, err)
	require.Equal(t, string(models.ActivityCompleted), completed.Status)
}

func TestActivityServiceGetAndList(t *testing.T) {
	db, _, _, _, activities := newTestStack(t)
	seeded := seedServiceActivity(t, db, 10, false)

	fetched, err := activities.Get(context.Background(), seeded.ID)
	require.NoError(t, err)
	require.Equal(t, seeded.Title, fetched.Title)

	_, err = activities.Get(context.Background(), 999)
	require.ErrorIs(t, err, domain.ErrNotFound)

	listed, err := activities.List(context.Background(), dto.ActivityListQuery{Status: "open"})
	require.NoError(t, err)
	require.Len(t, listed.Items, 1)
	require.Equal(t, int64(1), listed.Pagination.TotalItems)
	require.False(t, listed.CacheHit)

	_, err = activities.List(context.Background(), dto.ActivityListQuery{Status: "bogus"})
	require.ErrorIs(t, err, domain.ErrValidation)
}
