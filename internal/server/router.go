// Package server assembles the HTTP application shared by the binary and
// the end-to-end tests.
package server

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/storyscroll/api/internal/config"
	"github.com/storyscroll/api/internal/handler"
	"github.com/storyscroll/api/internal/logger"
	"github.com/storyscroll/api/internal/middleware"
	"github.com/storyscroll/api/internal/service"
	ws "github.com/storyscroll/api/internal/websocket"
	"github.com/storyscroll/api/pkg/response"
)

type Deps struct {
	Config *config.Config
	Log    *logger.Logger
	// Redis backs rate limiting and is pinged by the health check. May be nil.
	Redis *redis.Client

	Hub      *ws.Hub
	Generate *service.GenerateService
	Story    *service.StoryService
	Videos   *service.VideoService
	Reddit   *service.RedditService

	TTSProvider string
	Storage     string
	// DisableAccessLog turns off the request logger, for tests.
	DisableAccessLog bool
}

// New builds the fiber app with every route mounted.
func New(d Deps) *fiber.App {
	cfg := d.Config
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}

	validate := handler.NewValidator()

	generateHandler := handler.NewGenerateHandler(d.Generate, validate)
	storyHandler := handler.NewStoryHandler(d.Story, validate)
	videoHandler := handler.NewVideoHandler(d.Videos)
	redditHandler := handler.NewRedditHandler(d.Reddit, validate)
	healthHandler := handler.NewHealthHandler(d.Redis, d.TTSProvider, d.Storage)
	authHandler := handler.NewAuthHandler(cfg.JWT.Secret)
	wsHandler := handler.NewWebSocketHandler(d.Hub, d.Generate)

	rateLimiter := middleware.NewRateLimiter(d.Redis, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler(log),
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	if !d.DisableAccessLog {
		logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
		if strings.EqualFold(cfg.Server.LogLevel, "debug") {
			logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
		}
		app.Use(fiberlogger.New(fiberlogger.Config{
			Format: logFormat,
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// ForwardAuth verification endpoint (internal, called by the gateway)
	app.Get("/auth/verify", authHandler.Verify)

	// Public routes, mounted ahead of the authenticated /api group
	app.Get("/api/health", healthHandler.Check)
	app.Static("/api/video", cfg.Storage.OutputDir, fiber.Static{ByteRange: true})
	app.Static("/api/library", cfg.Storage.VideosDir, fiber.Static{ByteRange: true})

	api := app.Group("/api")
	if cfg.Auth.Enabled {
		if cfg.Auth.Gateway {
			log.Info("gateway mode enabled, using header-based auth")
			api.Use(middleware.GatewayAuthMiddleware())
		} else {
			api.Use(middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate())
		}
	}

	// Generate routes
	generate := api.Group("/generate")
	generate.Post("/", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), generateHandler.Submit)
	generate.Get("/:jobId/status", generateHandler.Status)
	generate.Delete("/:jobId", generateHandler.Cancel)

	// Story routes
	story := api.Group("/story", rateLimiter.StoryLimit(cfg.RateLimit.StoryPerMin))
	story.Post("/", storyHandler.Receive)
	story.Post("/upload", storyHandler.Upload)

	// Video library routes
	videos := api.Group("/videos")
	videos.Get("/", videoHandler.List)
	videos.Post("/upload", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), videoHandler.Upload)
	videos.Get("/:videoId", videoHandler.Get)

	// Reddit routes
	reddit := api.Group("/reddit", rateLimiter.RedditLimit(cfg.RateLimit.RedditPerMin))
	reddit.Get("/stories", redditHandler.Stories)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/jobs/:jobId", websocket.New(wsHandler.Job))

	return app
}

func errorHandler(log *logger.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
			message = fe.Message
		} else {
			log.Error("unhandled request error", "method", c.Method(), "path", c.Path(), "error", err)
		}

		code := response.CodeServiceError
		switch status {
		case fiber.StatusNotFound:
			code = response.CodeNotFound
		case fiber.StatusRequestEntityTooLarge:
			code = response.CodeFileTooLarge
		case fiber.StatusBadRequest, fiber.StatusUpgradeRequired:
			code = response.CodeValidationError
		}

		return response.Error(c, status, code, message, nil)
	}
}
