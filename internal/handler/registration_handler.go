package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-activity-api/internal/dto"
	"github.com/noah-isme/sma-activity-api/internal/service"
	"github.com/noah-isme/sma-activity-api/internal/utils"
)

// RegistrationHandler wires the enrollment endpoints.
type RegistrationHandler struct {
	service service.RegistrationService
	logger  zerolog.Logger
}

// NewRegistrationHandler creates a registration handler instance.
func NewRegistrationHandler(service service.RegistrationService, logger zerolog.Logger) *RegistrationHandler {
	return &RegistrationHandler{
		service: service,
		logger:  logger.With().Str("component", "registration_handler").Logger(),
	}
}

// Register binds the registration routes under the provided router group.
func (h *RegistrationHandler) Register(router fiber.Router) {
	router.Post("/", h.create)
	router.Get("/mine", h.listMine)
	router.Get("/activity/:activityId", h.listByActivity)
	router.Post("/:id/approve", h.approve)
	router.Post("/:id/reject", h.reject)
	router.Post("/:id/cancel", h.cancel)
	router.Patch("/:id/attendance", h.attendance)
}

func (h *RegistrationHandler) create(c *fiber.Ctx) error {
	principal, ok := principalOrFail(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	var req dto.RegistrationCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.service.Register(requestContext(c), principal, req)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "registration created", response)
}

func (h *RegistrationHandler) approve(c *fiber.Ctx) error {
	principal, ok := principalOrFail(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	response, err := h.service.Approve(requestContext(c), principal, id)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "registration approved", response)
}

func (h *RegistrationHandler) reject(c *fiber.Ctx) error {
	principal, ok := principalOrFail(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req dto.RegistrationRejectRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.service.Reject(requestContext(c), principal, id, req)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "registration rejected", response)
}

func (h *RegistrationHandler) cancel(c *fiber.Ctx) error {
	principal, ok := principalOrFail(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	response, err := h.service.Cancel(requestContext(c), principal, id)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "registration cancelled", response)
}

func (h *RegistrationHandler) attendance(c *fiber.Ctx) error {
	principal, ok := principalOrFail(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	id, err := parseIDParam(c, "id")
	if err != nil {
		return respondError(c, err)
	}

	var req dto.AttendanceUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	response, err := h.service.UpdateAttendance(requestContext(c), principal, id, req)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "attendance updated", response)
}

func (h *RegistrationHandler) listByActivity(c *fiber.Ctx) error {
	principal, ok := principalOrFail(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	activityID, err := parseIDParam(c, "activityId")
	if err != nil {
		return respondError(c, err)
	}

	response, err := h.service.ListByActivity(requestContext(c), principal, activityID)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "registrations", response)
}

func (h *RegistrationHandler) listMine(c *fiber.Ctx) error {
	principal, ok := principalOrFail(c)
	if !ok {
		return utils.SendError(c, fiber.StatusUnauthorized, "authentication required")
	}

	response, err := h.service.ListMine(requestContext(c), principal)
	if err != nil {
		return respondError(c, err)
	}
	return utils.SendSuccess(c, "registrations", response)
}
