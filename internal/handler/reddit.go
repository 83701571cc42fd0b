package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/storyscroll/api/internal/client"
	"github.com/storyscroll/api/internal/model"
	"github.com/storyscroll/api/internal/service"
	"github.com/storyscroll/api/pkg/response"
)

type RedditHandler struct {
	service   *service.RedditService
	validator *validator.Validate
}

func NewRedditHandler(svc *service.RedditService, v *validator.Validate) *RedditHandler {
	return &RedditHandler{
		service:   svc,
		validator: v,
	}
}

// Stories handles GET /api/reddit/stories
// @Summary      Fetch Reddit stories
// @Description  Proxy a subreddit listing and keep only usable self posts
// @Tags         Reddit
// @Produce      json
// @Param        subreddit query string false "Subreddit name" default(tifu)
// @Param        sort query string false "hot, top or new" default(hot)
// @Param        limit query int false "1 to 50" default(20)
// @Success      200 {object} model.RedditStoriesResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      403 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      422 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Failure      504 {object} response.ErrorResponse
// @Router       /api/reddit/stories [get]
func (h *RedditHandler) Stories(c *fiber.Ctx) error {
	var req model.RedditStoriesRequest
	if err := c.QueryParser(&req); err != nil {
		return response.ValidationError(c, "Invalid query parameters", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.UnprocessableEntity(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Stories(c.UserContext(), &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidSubreddit):
			return response.UnprocessableEntity(c, "Invalid subreddit name", nil)
		case errors.Is(err, client.ErrSubredditNotFound):
			return response.NotFound(c, "Subreddit not found")
		case errors.Is(err, client.ErrSubredditForbidden):
			return response.Forbidden(c, "Subreddit is private or restricted")
		case errors.Is(err, client.ErrRedditTimeout):
			return response.GatewayTimeout(c, "Reddit request timed out")
		}
		return response.BadGateway(c, "Failed to fetch from Reddit")
	}

	return response.OK(c, result)
}
