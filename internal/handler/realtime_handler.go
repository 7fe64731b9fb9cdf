package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-activity-api/internal/middleware"
	"github.com/noah-isme/sma-activity-api/internal/realtime"
)

// RealtimeHandler upgrades authenticated requests to websocket sessions and
// hands them to the connection registry.
type RealtimeHandler struct {
	registry *realtime.Registry
	logger   zerolog.Logger
}

// NewRealtimeHandler creates a realtime handler instance.
func NewRealtimeHandler(registry *realtime.Registry, logger zerolog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		registry: registry,
		logger:   logger.With().Str("component", "realtime_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *RealtimeHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *RealtimeHandler) handleConnection(conn *websocket.Conn) {
	principal, ok := middleware.PrincipalFromLocals(conn.Locals("principal"))
	if !ok {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(fiber.StatusUnauthorized, "authentication required"))
		_ = conn.Close()
		return
	}

	client := realtime.NewClient(h.registry, conn, principal)

	h.logger.Info().Str("user_id", principal.UserID).Str("role", string(principal.Role)).Msg("websocket connected")
	client.Run()
	h.logger.Info().Str("user_id", principal.UserID).Msg("websocket disconnected")
}
