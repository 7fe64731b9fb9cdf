package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-activity-api/internal/dto"
	"github.com/noah-isme/sma-activity-api/internal/service"
	"github.com/noah-isme/sma-activity-api/internal/utils"
)

// NotificationHandler manages the durable notification inbox.
type NotificationHandler struct {
	service service.NotificationService
	logger  zerolog.Logger
}

// NewNotificationHandler constructs a handler instance.
func NewNotificationHandler(service service.NotificationService, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{
		service: service,
		logger:  logger.With().Str("component", "notification_handler").Logger(),
	}
}

// Register binds the notification routes.
func (h *NotificationHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Get("/unread-count", h.unreadCount)
	router.Patch("/:id/read", h.markRead)
	router.Post("/read-all", h.markAllRead)
}

func (h *NotificationHandler) list(c *fiber.Ctx) error {
	principal, ok := principalOrFail(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	notifications, err := h.service.List(requestContext(c), principal.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "notifications", notifications)
}

func (h *NotificationHandler) unreadCount(c *fiber.Ctx) error {
	principal, ok := principalOrFail(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	count, err := h.service.UnreadCount(requestContext(c), principal.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "unread count", dto.UnreadCountResponse{Count: count})
}

func (h *NotificationHandler) markRead(c *fiber.Ctx) error {
	principal, ok := principalOrFail(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	notification, err := h.service.MarkRead(requestContext(c), id, principal.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "notification read", notification)
}

func (h *NotificationHandler) markAllRead(c *fiber.Ctx) error {
	principal, ok := principalOrFail(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	affected, err := h.service.MarkAllRead(requestContext(c), principal.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "all notifications read", fiber.Map{"affected": affected})
}
