package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/storyscroll/api/pkg/response"
)

const Version = "0.1.0"

type HealthResponse struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Services map[string]string `json:"services"`
}

type HealthHandler struct {
	redis       *redis.Client
	ttsProvider string
	storage     string
}

// NewHealthHandler reports on the given collaborators. redisClient may be nil.
func NewHealthHandler(redisClient *redis.Client, ttsProvider, storage string) *HealthHandler {
	return &HealthHandler{
		redis:       redisClient,
		ttsProvider: ttsProvider,
		storage:     storage,
	}
}

// Check handles GET /api/health
// @Summary      Health check
// @Tags         Health
// @Produce      json
// @Success      200 {object} HealthResponse
// @Router       /api/health [get]
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	return response.OK(c, HealthResponse{
		Status:  "ok",
		Version: Version,
		Services: map[string]string{
			"redis":   h.redisStatus(c.UserContext()),
			"tts":     h.ttsProvider,
			"storage": h.storage,
		},
	})
}

func (h *HealthHandler) redisStatus(ctx context.Context) string {
	if h.redis == nil {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.redis.Ping(ctx).Err(); err != nil {
		return "unavailable"
	}
	return "connected"
}
