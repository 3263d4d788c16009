package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-grader/internal/config"
	"github.com/noah-isme/gema-exam-grader/internal/database"
	"github.com/noah-isme/gema-exam-grader/internal/handler"
	"github.com/noah-isme/gema-exam-grader/internal/middleware"
	"github.com/noah-isme/gema-exam-grader/internal/models"
	"github.com/noah-isme/gema-exam-grader/internal/repository"
	"github.com/noah-isme/gema-exam-grader/internal/router"
	"github.com/noah-isme/gema-exam-grader/internal/service"
	"github.com/noah-isme/gema-exam-grader/internal/utils"
	"github.com/noah-isme/gema-exam-grader/pkg/ai"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(&models.Exam{}, &models.ExamResult{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = database.ConnectRedis(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		natsConn, err = database.ConnectNATS(cfg.NATSURL, cfg.AppName)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer natsConn.Drain()
	}

	if cfg.DeepSeekAPIKey == "" {
		logger.Warn().Msg("deepseek api key not configured, grading results will be stored as degraded")
	}

	deepSeek := ai.NewDeepSeekClient(ai.DeepSeekConfig{
		APIKey:    cfg.DeepSeekAPIKey,
		BaseURL:   cfg.DeepSeekBaseURL,
		Model:     cfg.DeepSeekModel,
		Timeout:   cfg.DeepSeekTimeout,
		MaxTokens: cfg.DeepSeekMaxTokens,
		Logger:    logger,
	})

	validate := utils.NewValidator()

	examRepo := repository.NewExamRepository(db)

	examService := service.NewExamGradingService(
		examRepo,
		deepSeek,
		service.NewRedisExamListCache(redisClient, cfg.ExamsCacheTTL, logger),
		service.NewNATSGradingEventPublisher(natsConn, cfg.NATSSubject),
		validate,
		logger,
		service.ExamGradingConfig{Concurrency: cfg.GradingConcurrency},
	)
	chatService := service.NewChatService(deepSeek, validate, logger)

	examHandler := handler.NewExamHandler(examService, middleware.RateLimit("grading", cfg.RateLimitMax, cfg.RateLimitWindow), logger)
	deepSeekHandler := handler.NewDeepSeekHandler(chatService, logger)

	var jwtMiddleware fiber.Handler
	if cfg.JWTSecret != "" {
		jwtMiddleware = middleware.JWTProtected(cfg.JWTSecret)
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.DeepSeekTimeout + 30*time.Second,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AccessLog: cfg.AppEnv == "development"})
	router.Register(app, cfg, router.Dependencies{
		ExamHandler:     examHandler,
		DeepSeekHandler: deepSeekHandler,
		JWTMiddleware:   jwtMiddleware,
	})

	go func() {
		logger.Info().Str("address", cfg.HTTPAddress()).Str("model", deepSeek.Model()).Msg("exam grader listening")
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}
