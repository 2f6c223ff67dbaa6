package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/kenchat/kenchat-backend/internal/api"
	"github.com/kenchat/kenchat-backend/internal/auth"
	"github.com/kenchat/kenchat-backend/internal/config"
	"github.com/kenchat/kenchat-backend/internal/database"
	"github.com/kenchat/kenchat-backend/internal/llm/openai"
	"github.com/kenchat/kenchat-backend/internal/repository/postgres"
	"github.com/kenchat/kenchat-backend/internal/services"
	"github.com/kenchat/kenchat-backend/internal/summarizer"
)

const sessionCleanupInterval = time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}

	log := newLogger(cfg.Log)

	if cfg.Auth.JWTSecret == "" {
		log.Fatal("JWT secret is required. Set KENCHAT_JWT_SECRET.")
	}
	if cfg.OpenAI.APIKey == "" {
		log.Warn("No OpenAI API key configured, chat generation will fail")
	}

	// Connect to database
	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	// Run migrations
	if err := database.RunMigrations(cfg.Database); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "KenChat Backend",
		ErrorHandler: errorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins(),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	// Initialize repositories
	userRepo := postgres.NewUserRepository(db)
	sessionRepo := postgres.NewUserSessionRepository(db)
	conversationRepo := postgres.NewConversationRepository(db)
	messageRepo := postgres.NewMessageRepository(db)
	summaryRepo := postgres.NewSummaryRepository(db)
	configRepo := postgres.NewConfigRepository(db)

	// Initialize auth service
	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	authService := auth.NewService(userRepo, sessionRepo, jwtService, log)

	// Initialize completion client
	client, err := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to create completion client")
	}

	// Initialize summarization engine
	var registry *prometheus.Registry
	engineOpts := []summarizer.Option{
		summarizer.WithConfig(engineConfig(cfg.Summarization)),
	}
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector())
		registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		engineOpts = append(engineOpts, summarizer.WithMetrics(summarizer.NewMetrics(registry)))
	}
	if cfg.Summarization.TokenCounter == "tiktoken" {
		if counter, err := summarizer.NewTiktokenCounter("cl100k_base"); err != nil {
			log.WithError(err).Warn("tiktoken unavailable, falling back to heuristic token counting")
		} else {
			engineOpts = append(engineOpts, summarizer.WithTokenCounter(counter))
		}
	}
	engine := summarizer.NewEngine(messageRepo, summaryRepo, client, log, engineOpts...)

	// Initialize services
	svc := services.NewServices(
		conversationRepo,
		messageRepo,
		summaryRepo,
		configRepo,
		engine,
		client,
		services.ChatSettings{
			DefaultModel: cfg.Chat.DefaultModel,
			SystemPrompt: cfg.Chat.SystemPrompt,
			Temperature:  cfg.Chat.Temperature,
			MaxTokens:    cfg.Chat.MaxTokens,
		},
		log,
	)

	// Stored settings override the file-seeded engine defaults
	if err := svc.Settings.LoadStored(context.Background()); err != nil {
		log.WithError(err).Warn("Failed to load stored summarization settings")
	}

	// Periodically remove expired auth sessions
	go sessionCleanupLoop(authService, log)

	// Setup routes
	api.SetupRoutes(app, svc, authService, registry, log)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Shutting down gracefully...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("Shutdown failed")
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.WithField("addr", addr).Info("KenChat backend starting")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

func newLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}

	return log
}

func engineConfig(cfg config.SummarizationConfig) summarizer.Config {
	engineCfg := summarizer.DefaultConfig()
	if cfg.MaxTokensBeforeSummarization > 0 {
		engineCfg.MaxTokensBeforeSummarization = cfg.MaxTokensBeforeSummarization
	}
	if cfg.SummaryModel != "" {
		engineCfg.SummaryModel = cfg.SummaryModel
	}
	if cfg.PreserveRecentMessages > 0 {
		engineCfg.PreserveRecentMessages = cfg.PreserveRecentMessages
	}
	if cfg.MaxSummaryTokens > 0 {
		engineCfg.MaxSummaryTokens = cfg.MaxSummaryTokens
	}
	return engineCfg
}

func sessionCleanupLoop(authService *auth.Service, log *logrus.Logger) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		if err := authService.CleanupExpiredSessions(ctx); err != nil {
			log.WithError(err).Warn("Session cleanup failed")
		}
		cancel()
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}

func corsOrigins() string {
	origins := os.Getenv("KENCHAT_CORS_ORIGINS")
	if origins == "" {
		return "http://localhost:1420,http://localhost:5173,http://localhost:3000"
	}
	return origins
}
