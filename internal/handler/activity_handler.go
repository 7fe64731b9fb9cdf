package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-activity-api/internal/domain"
	"github.com/noah-isme/sma-activity-api/internal/dto"
	"github.com/noah-isme/sma-activity-api/internal/service"
	"github.com/noah-isme/sma-activity-api/internal/utils"
)

// ActivityHandler wires the activity lifecycle endpoints.
type ActivityHandler struct {
	service service.ActivityService
	logger  zerolog.Logger
}

// NewActivityHandler creates an activity handler instance.
func NewActivityHandler(service service.ActivityService, logger zerolog.Logger) *ActivityHandler {
	return &ActivityHandler{
		service: service,
		logger:  logger.With().Str("component", "activity_handler").Logger(),
	}
}

// Register binds the activity routes under the provided router group.
func (h *ActivityHandler) Register(router fiber.Router) {
	router.Get("/", h.list)
	router.Post("/", h.create)
	router.Get("/:id", h.get)
	router.Patch("/:id", h.update)
	router.Post("/:id/cancel", h.cancel)
	router.Post("/:id/close", h.close)
	router.Post("/:id/complete", h.complete)
}

func (h *ActivityHandler) list(c *fiber.Ctx) error {
	var query dto.ActivityListQuery
	if err := c.QueryParser(&query); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	response, err := h.service.List(requestContext(c), query)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "activities", response)
}

func (h *ActivityHandler) create(c *fiber.Ctx) error {
	principal, ok := principalOrFail(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var req dto.ActivityCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.service.Create(requestContext(c), principal, req)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "activity created", response)
}

func (h *ActivityHandler) get(c *fiber.Ctx) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	response, err := h.service.Get(requestContext(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "activity", response)
}

func (h *ActivityHandler) update(c *fiber.Ctx) error {
	principal, ok := principalOrFail(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req dto.ActivityUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.service.Update(requestContext(c), principal, id, req)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "activity updated", response)
}

func (h *ActivityHandler) cancel(c *fiber.Ctx) error {
	return h.transition(c, h.service.Cancel, "activity cancelled")
}

func (h *ActivityHandler) close(c *fiber.Ctx) error {
	return h.transition(c, h.service.Close, "activity closed")
}

func (h *ActivityHandler) complete(c *fiber.Ctx) error {
	return h.transition(c, h.service.Complete, "activity completed")
}

func (h *ActivityHandler) transition(c *fiber.Ctx, op func(context.Context, domain.Principal, uint) (dto.ActivityResponse, error), message string) error {
	principal, ok := principalOrFail(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	response, err := op(requestContext(c), principal, id)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, message, response)
}
