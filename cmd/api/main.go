package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/sma-activity-api/internal/config"
	"github.com/noah-isme/sma-activity-api/internal/database"
	"github.com/noah-isme/sma-activity-api/internal/handler"
	"github.com/noah-isme/sma-activity-api/internal/middleware"
	"github.com/noah-isme/sma-activity-api/internal/models"
	"github.com/noah-isme/sma-activity-api/internal/realtime"
	"github.com/noah-isme/sma-activity-api/internal/repository"
	"github.com/noah-isme/sma-activity-api/internal/router"
	"github.com/noah-isme/sma-activity-api/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(&models.Activity{}, &models.Registration{}, &models.Notification{}); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to connect to redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		logger.Warn().Msg("redis url not configured, caching and event relay over redis disabled")
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Close()
	} else {
		logger.Warn().Msg("nats url not configured, event relay over nats disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	registry := realtime.NewRegistry(cfg.WSSendBuffer, logger)

	activityRepo := repository.NewActivityRepository(db)
	registrationRepo := repository.NewRegistrationRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	notificationService := service.NewNotificationService(notificationRepo, registry, redisClient, cfg.EventChannelBase, natsConn, logger)
	registrationService := service.NewRegistrationService(registrationRepo, activityRepo, notificationService, validate, logger)
	activityService := service.NewActivityService(activityRepo, registrationRepo, notificationService, redisClient, cfg.ActivityCacheTTL, validate, logger)

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	notificationService.Start(relayCtx)

	activityHandler := handler.NewActivityHandler(activityService, logger)
	registrationHandler := handler.NewRegistrationHandler(registrationService, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, logger)
	realtimeHandler := handler.NewRealtimeHandler(registry, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		ActivityHandler:     activityHandler,
		RegistrationHandler: registrationHandler,
		NotificationHandler: notificationHandler,
		RealtimeHandler:     realtimeHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
