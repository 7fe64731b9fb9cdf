package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/sma-activity-api/internal/config"
	"github.com/noah-isme/sma-activity-api/internal/handler"
	"github.com/noah-isme/sma-activity-api/internal/middleware"
	"github.com/noah-isme/sma-activity-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ActivityHandler     *handler.ActivityHandler
	RegistrationHandler *handler.RegistrationHandler
	NotificationHandler *handler.NotificationHandler
	RealtimeHandler     *handler.RealtimeHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.ActivityHandler != nil {
		activityGroup := app.Group("/api/v2/activities", jwtMiddleware)
		deps.ActivityHandler.Register(activityGroup)
	}

	if deps.RegistrationHandler != nil {
		registrationGroup := app.Group("/api/v2/registrations", jwtMiddleware)
		registrationGroup.Use(onCreate("/api/v2/registrations", middleware.RateLimit("registration", cfg.RegisterRPS, time.Second)))
		deps.RegistrationHandler.Register(registrationGroup)
	}

	if deps.NotificationHandler != nil {
		notificationGroup := app.Group("/api/v2/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notificationGroup)
	}

	if deps.RealtimeHandler != nil {
		realtimeGroup := app.Group("/api/v2/realtime", jwtMiddleware)
		deps.RealtimeHandler.Register(realtimeGroup)
	}
}

// onCreate limits the wrapped middleware to POSTs on the group root, leaving
// decision endpoints like approve and reject unthrottled.
func onCreate(base string, next fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost || strings.TrimSuffix(c.Path(), "/") != base {
			return c.Next()
		}
		return next(c)
	}
}
