package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/sma-activity-api/internal/domain"
	"github.com/noah-isme/sma-activity-api/internal/dto"
	"github.com/noah-isme/sma-activity-api/internal/models"
	"github.com/noah-isme/sma-activity-api/internal/realtime"
	"github.com/noah-isme/sma-activity-api/internal/repository"
)

// ActivityService owns activity lifecycle transitions: creation, edits and
// the terminal close/cancel/complete states.
type ActivityService interface {
	Create(ctx context.Context, principal domain.Principal, req dto.ActivityCreateRequest) (dto.ActivityResponse, error)
	Update(ctx context.Context, principal domain.Principal, id uint, req dto.ActivityUpdateRequest) (dto.ActivityResponse, error)
	Cancel(ctx context.Context, principal domain.Principal, id uint) (dto.ActivityResponse, error)
	Close(ctx context.Context, principal domain.Principal, id uint) (dto.ActivityResponse, error)
	Complete(ctx context.Context, principal domain.Principal, id uint) (dto.ActivityResponse, error)
	Get(ctx context.Context, id uint) (dto.ActivityResponse, error)
	List(ctx context.Context, query dto.ActivityListQuery) (dto.ActivityListResponse, error)
}

type activityService struct {
	activities    repository.ActivityRepository
	registrations repository.RegistrationRepository
	notifier      NotificationService
	cache         *redis.Client
	cacheTTL      time.Duration
	validator     *validator.Validate
	logger        zerolog.Logger
	tracer        trace.Tracer
	sanitizer     *bluemonday.Policy
}

// NewActivityService constructs the lifecycle manager.
func NewActivityService(activities repository.ActivityRepository, registrations repository.RegistrationRepository, notifier NotificationService, cache *redis.Client, cacheTTL time.Duration, validate *validator.Validate, logger zerolog.Logger) ActivityService {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &activityService{
		activities:    activities,
		registrations: registrations,
		notifier:      notifier,
		cache:         cache,
		cacheTTL:      cacheTTL,
		validator:     validate,
		logger:        logger.With().Str("component", "activity_service").Logger(),
		tracer:        otel.Tracer("github.com/noah-isme/sma-activity-api/internal/service/activity"),
		sanitizer:     bluemonday.StrictPolicy(),
	}
}

func (s *activityService) Create(ctx context.Context, principal domain.Principal, req dto.ActivityCreateRequest) (dto.ActivityResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ActivityResponse{}, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	if principal.Role != domain.RoleTeacher && principal.Role != domain.RoleAdmin {
		return dto.ActivityResponse{}, domain.Forbiddenf("only teachers and admins can create activities")
	}
	if !req.StartTime.Before(req.EndTime) {
		return dto.ActivityResponse{}, domain.Validationf("start time must be before end time")
	}
	if !req.StartTime.After(time.Now()) {
		return dto.ActivityResponse{}, domain.Validationf("start time must be in the future")
	}

	spanCtx, span := s.tracer.Start(ctx, "activities.create", trace.WithAttributes(
		attribute.String("owner.id", principal.UserID),
	))
	defer span.End()

	overlap, err := s.activities.HasOwnerOverlap(spanCtx, principal.UserID, req.StartTime, req.EndTime, 0)
	if err != nil {
		return dto.ActivityResponse{}, err
	}
	if overlap {
		return dto.ActivityResponse{}, domain.Conflictf("owner %s already has an activity in this time window", principal.UserID)
	}

	activity := models.Activity{
		Title:           strings.TrimSpace(s.sanitizer.Sanitize(req.Title)),
		Description:     strings.TrimSpace(s.sanitizer.Sanitize(req.Description)),
		Location:        strings.TrimSpace(s.sanitizer.Sanitize(req.Location)),
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		MaxParticipants: req.MaxParticipants,
		Status:          models.ActivityOpen,
		RequireApproval: req.RequireApproval,
		OwnerID:         principal.UserID,
	}
	if activity.Title == "" {
		return dto.ActivityResponse{}, domain.Validationf("title empty after sanitization")
	}

	if err := s.activities.Create(spanCtx, &activity); err != nil {
		span.RecordError(err)
		return dto.ActivityResponse{}, err
	}

	s.logger.Info().Uint("activity_id", activity.ID).Str("owner_id", principal.UserID).Msg("activity created")

	response := dto.NewActivityResponse(activity)
	s.notifier.Broadcast(spanCtx, domain.RoleStudent.GroupName(), realtime.NewEvent(realtime.EventNewActivityCreated, map[string]any{
		"activity": response,
	}))

	return response, nil
}

func (s *activityService) Update(ctx context.Context, principal domain.Principal, id uint, req dto.ActivityUpdateRequest) (dto.ActivityResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ActivityResponse{}, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	spanCtx, span := s.tracer.Start(ctx, "activities.update", trace.WithAttributes(
		attribute.Int("activity.id", int(id)),
	))
	defer span.End()

	activity, err := s.activities.FindByID(spanCtx, id)
	if err != nil {
		return dto.ActivityResponse{}, err
	}
	if !principal.CanManage(activity.OwnerID) {
		return dto.ActivityResponse{}, domain.Forbiddenf("only the activity owner or an admin can edit")
	}
	if activity.Status == models.ActivityCompleted || activity.Status == models.ActivityCancelled {
		return dto.ActivityResponse{}, domain.Conflictf("activity %d is %s", id, activity.Status)
	}

	// Edits go through a column map rather than the loaded struct, so the
	// participant counter owned by the registration path is never written
	// back from a stale read.
	fields := map[string]any{}
	significant := false

	if req.Title != nil {
		title := strings.TrimSpace(s.sanitizer.Sanitize(*req.Title))
		if title == "" {
			return dto.ActivityResponse{}, domain.Validationf("title empty after sanitization")
		}
		if title != activity.Title {
			fields["title"] = title
			significant = true
		}
	}
	if req.Description != nil {
		fields["description"] = strings.TrimSpace(s.sanitizer.Sanitize(*req.Description))
	}
	if req.Location != nil {
		location := strings.TrimSpace(s.sanitizer.Sanitize(*req.Location))
		if location != activity.Location {
			fields["location"] = location
			significant = true
		}
	}

	start := activity.StartTime
	end := activity.EndTime
	if req.StartTime != nil {
		start = *req.StartTime
	}
	if req.EndTime != nil {
		end = *req.EndTime
	}
	if !start.Before(end) {
		return dto.ActivityResponse{}, domain.Validationf("start time must be before end time")
	}
	if !start.Equal(activity.StartTime) || !end.Equal(activity.EndTime) {
		overlap, err := s.activities.HasOwnerOverlap(spanCtx, activity.OwnerID, start, end, activity.ID)
		if err != nil {
			return dto.ActivityResponse{}, err
		}
		if overlap {
			return dto.ActivityResponse{}, domain.Conflictf("owner %s already has an activity in this time window", activity.OwnerID)
		}
		fields["start_time"] = start
		fields["end_time"] = end
		significant = true
	}

	if req.MaxParticipants != nil {
		if *req.MaxParticipants < activity.CurrentParticipants {
			return dto.ActivityResponse{}, domain.Conflictf("capacity %d is below the current %d participants", *req.MaxParticipants, activity.CurrentParticipants)
		}
		fields["max_participants"] = *req.MaxParticipants
	}
	if req.RequireApproval != nil {
		fields["require_approval"] = *req.RequireApproval
	}

	updated, err := s.activities.UpdateDetails(spanCtx, id, fields)
	if err != nil {
		span.RecordError(err)
		return dto.ActivityResponse{}, err
	}

	response := dto.NewActivityResponse(updated)
	if significant {
		s.notifier.Broadcast(spanCtx, realtime.ActivityGroup(activity.ID), realtime.NewEvent(realtime.EventActivityUpdated, map[string]any{
			"activity": response,
		}))
	}

	return response, nil
}

func (s *activityService) Cancel(ctx context.Context, principal domain.Principal, id uint) (dto.ActivityResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "activities.cancel", trace.WithAttributes(
		attribute.Int("activity.id", int(id)),
	))
	defer span.End()

	activity, err := s.authorizeTransition(spanCtx, principal, id)
	if err != nil {
		return dto.ActivityResponse{}, err
	}

	cancelled, err := s.activities.SetStatus(spanCtx, activity.ID, models.ActivityCancelled, []models.ActivityStatus{
		models.ActivityOpen, models.ActivityFull, models.ActivityClosed,
	})
	if err != nil {
		span.RecordError(err)
		return dto.ActivityResponse{}, err
	}

	s.logger.Info().Uint("activity_id", id).Msg("activity cancelled")

	// Every registrant gets a durable notification regardless of status:
	// cancellation must reach people who are not connected right now.
	registrants, err := s.registrations.ListByActivity(spanCtx, id)
	if err != nil {
		s.logger.Error().Err(err).Uint("activity_id", id).Msg("failed to list registrants for cancellation fan-out")
	} else {
		inputs := make([]NotificationInput, 0, len(registrants))
		for _, registration := range registrants {
			registrationID := registration.ID
			inputs = append(inputs, NotificationInput{
				UserID:         registration.StudentID,
				Title:          "Activity cancelled",
				Content:        fmt.Sprintf("%q has been cancelled", cancelled.Title),
				Type:           "activity_cancelled",
				ActivityID:     &cancelled.ID,
				RegistrationID: &registrationID,
			})
		}
		if _, err := s.notifier.NotifyMany(spanCtx, inputs); err != nil {
			s.logger.Error().Err(err).Uint("activity_id", id).Msg("failed to persist cancellation notifications")
		}
	}

	response := dto.NewActivityResponse(cancelled)
	s.notifier.Broadcast(spanCtx, realtime.ActivityGroup(id), realtime.NewEvent(realtime.EventActivityUpdated, map[string]any{
		"activity": response,
	}))

	return response, nil
}

func (s *activityService) Close(ctx context.Context, principal domain.Principal, id uint) (dto.ActivityResponse, error) {
	return s.transition(ctx, principal, id, models.ActivityClosed, []models.ActivityStatus{
		models.ActivityOpen, models.ActivityFull,
	})
}

func (s *activityService) Complete(ctx context.Context, principal domain.Principal, id uint) (dto.ActivityResponse, error) {
	return s.transition(ctx, principal, id, models.ActivityCompleted, []models.ActivityStatus{
		models.ActivityOpen, models.ActivityFull, models.ActivityClosed,
	})
}

func (s *activityService) Get(ctx context.Context, id uint) (dto.ActivityResponse, error) {
	activity, err := s.activities.FindByID(ctx, id)
	if err != nil {
		return dto.ActivityResponse{}, err
	}
	return dto.NewActivityResponse(activity), nil
}

func (s *activityService) List(ctx context.Context, query dto.ActivityListQuery) (dto.ActivityListResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return dto.ActivityListResponse{}, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	page := query.Page
	if page < 1 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	// Short-TTL cache only; mutations tolerate a briefly stale listing.
	cacheKey := ""
	if s.cache != nil {
		cacheKey = fmt.Sprintf("activities:list:v1:%s:%s:%d:%d", query.Status, query.Owner, page, pageSize)
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
			var response dto.ActivityListResponse
			if err := json.Unmarshal([]byte(cached), &response); err == nil {
				response.CacheHit = true
				return response, nil
			}
		}
	}

	activities, total, err := s.activities.List(ctx, repository.ActivityFilter{
		Status:   models.ActivityStatus(query.Status),
		OwnerID:  query.Owner,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return dto.ActivityListResponse{}, err
	}

	response := dto.ActivityListResponse{
		Items: dto.NewActivityResponseSlice(activities),
		Pagination: dto.PaginationMeta{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
		},
	}

	if cacheKey != "" && s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to cache activity listing")
			}
		}
	}

	return response, nil
}

func (s *activityService) transition(ctx context.Context, principal domain.Principal, id uint, to models.ActivityStatus, allowedFrom []models.ActivityStatus) (dto.ActivityResponse, error) {
	activity, err := s.authorizeTransition(ctx, principal, id)
	if err != nil {
		return dto.ActivityResponse{}, err
	}

	updated, err := s.activities.SetStatus(ctx, activity.ID, to, allowedFrom)
	if err != nil {
		return dto.ActivityResponse{}, err
	}

	s.logger.Info().Uint("activity_id", id).Str("status", string(to)).Msg("activity status changed")

	response := dto.NewActivityResponse(updated)
	s.notifier.Broadcast(ctx, realtime.ActivityGroup(id), realtime.NewEvent(realtime.EventActivityUpdated, map[string]any{
		"activity": response,
	}))

	return response, nil
}

func (s *activityService) authorizeTransition(ctx context.Context, principal domain.Principal, id uint) (models.Activity, error) {
	activity, err := s.activities.FindByID(ctx, id)
	if err != nil {
		return models.Activity{}, err
	}
	if !principal.CanManage(activity.OwnerID) {
		return models.Activity{}, domain.Forbiddenf("only the activity owner or an admin can change its status")
	}
	return activity, nil
}
