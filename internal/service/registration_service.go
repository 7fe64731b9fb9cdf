package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/sma-activity-api/internal/domain"
	"github.com/noah-isme/sma-activity-api/internal/dto"
	"github.com/noah-isme/sma-activity-api/internal/models"
	"github.com/noah-isme/sma-activity-api/internal/observability"
	"github.com/noah-isme/sma-activity-api/internal/realtime"
	"github.com/noah-isme/sma-activity-api/internal/repository"
)

// RegistrationService is the state machine governing a student's enrollment
// in an activity.
type RegistrationService interface {
	Register(ctx context.Context, principal domain.Principal, req dto.RegistrationCreateRequest) (dto.RegistrationResponse, error)
	Approve(ctx context.Context, principal domain.Principal, id uint) (dto.RegistrationResponse, error)
	Reject(ctx context.Context, principal domain.Principal, id uint, req dto.RegistrationRejectRequest) (dto.RegistrationResponse, error)
	Cancel(ctx context.Context, principal domain.Principal, id uint) (dto.RegistrationResponse, error)
	UpdateAttendance(ctx context.Context, principal domain.Principal, id uint, req dto.AttendanceUpdateRequest) (dto.RegistrationResponse, error)
	ListByActivity(ctx context.Context, principal domain.Principal, activityID uint) ([]dto.RegistrationResponse, error)
	ListMine(ctx context.Context, principal domain.Principal) ([]dto.RegistrationResponse, error)
}

type registrationService struct {
	registrations repository.RegistrationRepository
	activities    repository.ActivityRepository
	notifier      NotificationService
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	sanitizer     *bluemonday.Policy
}

// NewRegistrationService constructs the registration engine.
func NewRegistrationService(registrations repository.RegistrationRepository, activities repository.ActivityRepository, notifier NotificationService, validate *validator.Validate, logger zerolog.Logger) RegistrationService {
	return &registrationService{
		registrations: registrations,
		activities:    activities,
		notifier:      notifier,
		validator:     validate,
		logger:        logger.With().Str("component", "registration_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/sma-activity-api/internal/service/registration"),
		sanitizer:     bluemonday.StrictPolicy(),
	}
}

func (s *registrationService) Register(ctx context.Context, principal domain.Principal, req dto.RegistrationCreateRequest) (dto.RegistrationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.RegistrationResponse{}, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	if principal.Role != domain.RoleStudent {
		return dto.RegistrationResponse{}, domain.Forbiddenf("only students can register")
	}

	spanCtx, span := s.tracer.Start(ctx, "registrations.register", trace.WithAttributes(
		attribute.Int("activity.id", int(req.ActivityID)),
		attribute.String("student.id", principal.UserID),
	))
	defer span.End()

	activity, err := s.activities.FindByID(spanCtx, req.ActivityID)
	if err != nil {
		return dto.RegistrationResponse{}, err
	}
	if activity.Status != models.ActivityOpen {
		observability.RegistrationConflicts().WithLabelValues("not_open").Inc()
		return dto.RegistrationResponse{}, domain.Conflictf("activity %d is %s", activity.ID, activity.Status)
	}

	overlap, err := s.registrations.HasApprovedOverlap(spanCtx, principal.UserID, activity.StartTime, activity.EndTime)
	if err != nil {
		return dto.RegistrationResponse{}, err
	}
	if overlap {
		observability.RegistrationConflicts().WithLabelValues("time_overlap").Inc()
		return dto.RegistrationResponse{}, domain.Conflictf("student %s already attends an overlapping activity", principal.UserID)
	}

	status := models.RegistrationApproved
	if activity.RequireApproval {
		status = models.RegistrationPending
	}

	registration := models.Registration{
		ActivityID: activity.ID,
		StudentID:  principal.UserID,
		Status:     status,
		Attendance: models.AttendanceNotSet,
		Notes:      strings.TrimSpace(s.sanitizer.Sanitize(req.Notes)),
	}

	// Open/duplicate/capacity checks are re-run transactionally in the
	// repository; the reads above only produce early, friendlier failures.
	if err := s.registrations.Register(spanCtx, &registration); err != nil {
		span.RecordError(err)
		observability.RegistrationConflicts().WithLabelValues("engine").Inc()
		return dto.RegistrationResponse{}, err
	}

	observability.RegistrationsTotal().WithLabelValues(string(status)).Inc()
	s.logger.Info().Uint("registration_id", registration.ID).Uint("activity_id", activity.ID).Str("student_id", principal.UserID).Str("status", string(status)).Msg("registration created")

	if status == models.RegistrationPending {
		if _, err := s.notifier.Notify(spanCtx, NotificationInput{
			UserID:         activity.OwnerID,
			Title:          "New registration pending",
			Content:        fmt.Sprintf("%s requested to join %q", displayName(principal), activity.Title),
			Type:           "registration_pending",
			ActivityID:     &activity.ID,
			RegistrationID: &registration.ID,
		}); err != nil {
			s.logger.Warn().Err(err).Msg("failed to notify owner of pending registration")
		}
		s.notifier.Broadcast(spanCtx, realtime.UserGroup(activity.OwnerID), realtime.NewEvent(realtime.EventNewRegistration, map[string]any{
			"registration": dto.NewRegistrationResponse(registration),
		}))
	} else {
		s.broadcastParticipants(spanCtx, activity.ID)
	}

	return dto.NewRegistrationResponse(registration), nil
}

func (s *registrationService) Approve(ctx context.Context, principal domain.Principal, id uint) (dto.RegistrationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "registrations.approve", trace.WithAttributes(
		attribute.Int("registration.id", int(id)),
		attribute.String("approver.id", principal.UserID),
	))
	defer span.End()

	registration, activity, err := s.loadForDecision(spanCtx, principal, id)
	if err != nil {
		return dto.RegistrationResponse{}, err
	}

	approved, err := s.registrations.Approve(spanCtx, registration.ID, principal.UserID)
	if err != nil {
		span.RecordError(err)
		return dto.RegistrationResponse{}, err
	}

	observability.RegistrationsTotal().WithLabelValues("approved").Inc()

	if _, err := s.notifier.Notify(spanCtx, NotificationInput{
		UserID:         approved.StudentID,
		Title:          "Registration approved",
		Content:        fmt.Sprintf("Your registration for %q was approved", activity.Title),
		Type:           "registration_approved",
		ActivityID:     &activity.ID,
		RegistrationID: &approved.ID,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to notify student of approval")
	}
	s.notifier.Broadcast(spanCtx, realtime.UserGroup(approved.StudentID), realtime.NewEvent(realtime.EventRegistrationStatusUpdate, map[string]any{
		"registration": dto.NewRegistrationResponse(approved),
	}))
	s.broadcastParticipants(spanCtx, activity.ID)

	return dto.NewRegistrationResponse(approved), nil
}

func (s *registrationService) Reject(ctx context.Context, principal domain.Principal, id uint, req dto.RegistrationRejectRequest) (dto.RegistrationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.RegistrationResponse{}, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	spanCtx, span := s.tracer.Start(ctx, "registrations.reject", trace.WithAttributes(
		attribute.Int("registration.id", int(id)),
		attribute.String("approver.id", principal.UserID),
	))
	defer span.End()

	registration, activity, err := s.loadForDecision(spanCtx, principal, id)
	if err != nil {
		return dto.RegistrationResponse{}, err
	}

	reason := strings.TrimSpace(s.sanitizer.Sanitize(req.Reason))
	rejected, err := s.registrations.Reject(spanCtx, registration.ID, principal.UserID, reason)
	if err != nil {
		span.RecordError(err)
		return dto.RegistrationResponse{}, err
	}

	observability.RegistrationsTotal().WithLabelValues("rejected").Inc()

	content := fmt.Sprintf("Your registration for %q was rejected", activity.Title)
	if reason != "" {
		content += ": " + reason
	}
	if _, err := s.notifier.Notify(spanCtx, NotificationInput{
		UserID:         rejected.StudentID,
		Title:          "Registration rejected",
		Content:        content,
		Type:           "registration_rejected",
		ActivityID:     &activity.ID,
		RegistrationID: &rejected.ID,
	}); err != nil {
		s.logger.Warn().Err(err).Msg("failed to notify student of rejection")
	}
	s.notifier.Broadcast(spanCtx, realtime.UserGroup(rejected.StudentID), realtime.NewEvent(realtime.EventRegistrationStatusUpdate, map[string]any{
		"registration": dto.NewRegistrationResponse(rejected),
	}))

	return dto.NewRegistrationResponse(rejected), nil
}

func (s *registrationService) Cancel(ctx context.Context, principal domain.Principal, id uint) (dto.RegistrationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "registrations.cancel", trace.WithAttributes(
		attribute.Int("registration.id", int(id)),
		attribute.String("caller.id", principal.UserID),
	))
	defer span.End()

	registration, err := s.registrations.FindByID(spanCtx, id)
	if err != nil {
		return dto.RegistrationResponse{}, err
	}
	if !principal.IsAdmin() && registration.StudentID != principal.UserID {
		return dto.RegistrationResponse{}, domain.Forbiddenf("only the registrant or an admin can cancel")
	}

	activity, err := s.activities.FindByID(spanCtx, registration.ActivityID)
	if err != nil {
		return dto.RegistrationResponse{}, err
	}
	if !activity.StartTime.After(time.Now()) {
		observability.RegistrationConflicts().WithLabelValues("already_started").Inc()
		return dto.RegistrationResponse{}, domain.Conflictf("activity %d has already started", activity.ID)
	}

	wasApproved := registration.Status == models.RegistrationApproved
	cancelled, err := s.registrations.Cancel(spanCtx, id)
	if err != nil {
		span.RecordError(err)
		return dto.RegistrationResponse{}, err
	}

	observability.RegistrationsTotal().WithLabelValues("cancelled").Inc()
	s.logger.Info().Uint("registration_id", id).Uint("activity_id", activity.ID).Msg("registration cancelled")

	if wasApproved {
		s.broadcastParticipants(spanCtx, activity.ID)
	}

	return dto.NewRegistrationResponse(cancelled), nil
}

func (s *registrationService) UpdateAttendance(ctx context.Context, principal domain.Principal, id uint, req dto.AttendanceUpdateRequest) (dto.RegistrationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.RegistrationResponse{}, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	registration, err := s.registrations.FindByID(ctx, id)
	if err != nil {
		return dto.RegistrationResponse{}, err
	}
	activity, err := s.activities.FindByID(ctx, registration.ActivityID)
	if err != nil {
		return dto.RegistrationResponse{}, err
	}
	if !principal.CanManage(activity.OwnerID) {
		return dto.RegistrationResponse{}, domain.Forbiddenf("only the activity owner or an admin can record attendance")
	}

	// Attendance is historical record-keeping: no count mutation, no events.
	updated, err := s.registrations.UpdateAttendance(ctx, id, models.AttendanceStatus(req.Status))
	if err != nil {
		return dto.RegistrationResponse{}, err
	}
	return dto.NewRegistrationResponse(updated), nil
}

func (s *registrationService) ListByActivity(ctx context.Context, principal domain.Principal, activityID uint) ([]dto.RegistrationResponse, error) {
	activity, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		return nil, err
	}
	if !principal.CanManage(activity.OwnerID) {
		return nil, domain.Forbiddenf("only the activity owner or an admin can list registrations")
	}

	registrations, err := s.registrations.ListByActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	return dto.NewRegistrationResponseSlice(registrations), nil
}

func (s *registrationService) ListMine(ctx context.Context, principal domain.Principal) ([]dto.RegistrationResponse, error) {
	registrations, err := s.registrations.ListByStudent(ctx, principal.UserID)
	if err != nil {
		return nil, err
	}
	return dto.NewRegistrationResponseSlice(registrations), nil
}

// loadForDecision fetches the registration and its activity and authorizes
// the caller for an approve/reject decision.
func (s *registrationService) loadForDecision(ctx context.Context, principal domain.Principal, id uint) (models.Registration, models.Activity, error) {
	registration, err := s.registrations.FindByID(ctx, id)
	if err != nil {
		return models.Registration{}, models.Activity{}, err
	}
	activity, err := s.activities.FindByID(ctx, registration.ActivityID)
	if err != nil {
		return models.Registration{}, models.Activity{}, err
	}
	if !principal.CanManage(activity.OwnerID) {
		return models.Registration{}, models.Activity{}, domain.Forbiddenf("only the activity owner or an admin can decide registrations")
	}
	return registration, activity, nil
}

// broadcastParticipants pushes the fresh count to everyone watching the
// activity. Ephemeral; the durable record lives in per-user notifications.
func (s *registrationService) broadcastParticipants(ctx context.Context, activityID uint) {
	activity, err := s.activities.FindByID(ctx, activityID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("activity_id", activityID).Msg("failed to load activity for participant broadcast")
		return
	}
	s.notifier.Broadcast(ctx, realtime.ActivityGroup(activityID), realtime.NewEvent(realtime.EventParticipantsUpdated, map[string]any{
		"activity_id":          activity.ID,
		"current_participants": activity.CurrentParticipants,
		"max_participants":     activity.MaxParticipants,
		"status":               string(activity.Status),
	}))
}

func displayName(principal domain.Principal) string {
	if principal.DisplayName != "" {
		return principal.DisplayName
	}
	return principal.UserID
}
