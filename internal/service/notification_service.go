package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
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

const unreadCacheTTL = 30 * time.Second

// EventSink is where the dispatcher hands events for live delivery. The
// realtime registry implements it; absence of live connections is never an
// error.
type EventSink interface {
	BroadcastGroup(group string, event realtime.Event)
	SendToUser(userID string, event realtime.Event)
}

// NotificationInput describes one durable notification to dispatch.
type NotificationInput struct {
	UserID         string
	Title          string
	Content        string
	Type           string
	ActivityID     *uint
	RegistrationID *uint
}

// NotificationService persists notifications and fans them out to live
// connections.
type NotificationService interface {
	Notify(ctx context.Context, input NotificationInput) (dto.NotificationResponse, error)
	NotifyMany(ctx context.Context, inputs []NotificationInput) (int, error)
	Broadcast(ctx context.Context, group string, event realtime.Event)
	List(ctx context.Context, userID string) ([]dto.NotificationResponse, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Start(ctx context.Context)
}

type notificationService struct {
	repo        repository.NotificationRepository
	sink        EventSink
	redis       *redis.Client
	redisStream string
	cachePrefix string
	nats        *nats.Conn
	natsSubject string
	logger      zerolog.Logger
	tracer      trace.Tracer
	sanitizer   *bluemonday.Policy
	nodeID      string
}

// relayEvent carries one delivery across nodes via redis or NATS so every
// instance can reach its own live connections. The source id filters out the
// publishing node's echo.
type relayEvent struct {
	Source string         `json:"source"`
	Scope  string         `json:"scope"`
	Target string         `json:"target"`
	Event  realtime.Event `json:"event"`
	SentAt time.Time      `json:"sent_at"`
}

// NewNotificationService constructs the dispatcher.
func NewNotificationService(repo repository.NotificationRepository, sink EventSink, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) NotificationService {
	stream := ""
	subject := ""
	cachePrefix := ""
	if channelBase != "" {
		stream = channelBase + ":events"
		cachePrefix = channelBase + ":notifications:unread"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}

	return &notificationService{
		repo:        repo,
		sink:        sink,
		redis:       redisClient,
		redisStream: stream,
		cachePrefix: cachePrefix,
		nats:        natsConn,
		natsSubject: subject,
		logger:      logger.With().Str("component", "notification_service").Logger(),
		tracer:      otel.Tracer("github.com/noah-isme/sma-activity-api/internal/service/notification"),
		sanitizer:   bluemonday.StrictPolicy(),
		nodeID:      uuid.NewString(),
	}
}

func (s *notificationService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *notificationService) Notify(ctx context.Context, input NotificationInput) (dto.NotificationResponse, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return dto.NotificationResponse{}, domain.Validationf("target user id is required")
	}

	model, err := s.buildModel(input)
	if err != nil {
		return dto.NotificationResponse{}, err
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.notify", trace.WithAttributes(
		attribute.String("notification.user_id", input.UserID),
		attribute.String("notification.type", input.Type),
	))
	defer span.End()

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	s.invalidateUnread(spanCtx, input.UserID)
	observability.NotificationsPublishedTotal().WithLabelValues(model.Type).Inc()

	response := dto.NewNotificationResponse(model)
	event := realtime.NewEvent(realtime.EventReceiveNotification, map[string]any{"notification": response})
	s.sink.SendToUser(model.UserID, event)
	s.relay(spanCtx, "user", model.UserID, event)

	return response, nil
}

func (s *notificationService) NotifyMany(ctx context.Context, inputs []NotificationInput) (int, error) {
	notifications := make([]models.Notification, 0, len(inputs))
	for _, input := range inputs {
		if strings.TrimSpace(input.UserID) == "" {
			continue
		}
		model, err := s.buildModel(input)
		if err != nil {
			return 0, err
		}
		notifications = append(notifications, model)
	}
	if len(notifications) == 0 {
		return 0, nil
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.notify_many", trace.WithAttributes(
		attribute.Int("notification.count", len(notifications)),
	))
	defer span.End()

	if err := s.repo.CreateBatch(spanCtx, notifications); err != nil {
		span.RecordError(err)
		return 0, err
	}

	for _, model := range notifications {
		s.invalidateUnread(spanCtx, model.UserID)
		observability.NotificationsPublishedTotal().WithLabelValues(model.Type).Inc()
		event := realtime.NewEvent(realtime.EventReceiveNotification, map[string]any{"notification": dto.NewNotificationResponse(model)})
		s.sink.SendToUser(model.UserID, event)
		s.relay(spanCtx, "user", model.UserID, event)
	}

	return len(notifications), nil
}

func (s *notificationService) Broadcast(ctx context.Context, group string, event realtime.Event) {
	observability.BroadcastsTotal().WithLabelValues(event.Type).Inc()
	s.sink.BroadcastGroup(group, event)
	s.relay(ctx, "group", group, event)
}

func (s *notificationService) List(ctx context.Context, userID string) ([]dto.NotificationResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, domain.Validationf("user id is required")
	}

	notifications, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, domain.Validationf("user id is required")
	}

	key := s.unreadKey(userID)
	if key != "" && s.redis != nil {
		if cached, err := s.redis.Get(ctx, key).Int64(); err == nil {
			return cached, nil
		}
	}

	count, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}

	if key != "" && s.redis != nil {
		if err := s.redis.Set(ctx, key, count, unreadCacheTTL).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to cache unread count")
		}
	}

	return count, nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.String("notification.user_id", userID),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, userID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, err
	}

	s.invalidateUnread(spanCtx, userID)

	event := realtime.NewEvent(realtime.EventNotificationRead, map[string]any{"notification_id": notification.ID})
	s.sink.SendToUser(userID, event)
	s.relay(spanCtx, "user", userID, event)

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, domain.Validationf("user id is required")
	}

	affected, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}

	// Second call in a row affects zero rows and sends no confirmation.
	if affected > 0 {
		s.invalidateUnread(ctx, userID)
		event := realtime.NewEvent(realtime.EventAllNotificationsRead, map[string]any{"count": affected})
		s.sink.SendToUser(userID, event)
		s.relay(ctx, "user", userID, event)
	}

	return affected, nil
}

func (s *notificationService) buildModel(input NotificationInput) (models.Notification, error) {
	title := strings.TrimSpace(s.sanitizer.Sanitize(input.Title))
	if title == "" {
		return models.Notification{}, domain.Validationf("notification title empty after sanitization")
	}

	notificationType := strings.TrimSpace(input.Type)
	if notificationType == "" {
		notificationType = "generic"
	}

	return models.Notification{
		UserID:         input.UserID,
		Title:          title,
		Content:        strings.TrimSpace(s.sanitizer.Sanitize(input.Content)),
		Type:           notificationType,
		ActivityID:     input.ActivityID,
		RegistrationID: input.RegistrationID,
	}, nil
}

func (s *notificationService) unreadKey(userID string) string {
	if s.cachePrefix == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", s.cachePrefix, userID)
}

func (s *notificationService) invalidateUnread(ctx context.Context, userID string) {
	key := s.unreadKey(userID)
	if key == "" || s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, key).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate unread count cache")
	}
}

func (s *notificationService) relay(ctx context.Context, scope, target string, event realtime.Event) {
	if (s.redis == nil || s.redisStream == "") && (s.nats == nil || s.natsSubject == "") {
		return
	}

	payload, err := json.Marshal(relayEvent{
		Source: s.nodeID,
		Scope:  scope,
		Target: target,
		Event:  event,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal relay event")
		return
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish relay event to redis")
		}
	}
	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish relay event to nats")
		}
	}
}

func (s *notificationService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("event relay redis subscription closed")
			return
		}
		s.handleRelay([]byte(msg.Payload))
	}
}

func (s *notificationService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleRelay(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats event subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain nats event subscription")
		}
	}()
}

func (s *notificationService) handleRelay(payload []byte) {
	var event relayEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid relay event payload")
		return
	}

	if event.Source == s.nodeID {
		return
	}

	switch event.Scope {
	case "user":
		s.sink.SendToUser(event.Target, event.Event)
	case "group":
		s.sink.BroadcastGroup(event.Target, event.Event)
	default:
		s.logger.Warn().Str("scope", event.Scope).Msg("unknown relay scope")
	}
}
