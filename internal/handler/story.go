package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/storyscroll/api/internal/model"
	"github.com/storyscroll/api/internal/service"
	"github.com/storyscroll/api/pkg/response"
)

type StoryHandler struct {
	service   *service.StoryService
	validator *validator.Validate
}

func NewStoryHandler(svc *service.StoryService, v *validator.Validate) *StoryHandler {
	return &StoryHandler{
		service:   svc,
		validator: v,
	}
}

// Receive handles POST /api/story
// @Summary      Submit story text
// @Description  Accept story text from the editor and return its statistics
// @Tags         Story
// @Accept       json
// @Produce      json
// @Param        request body model.StoryRequest true "Story request"
// @Success      200 {object} model.StoryResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      422 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Router       /api/story [post]
func (h *StoryHandler) Receive(c *fiber.Ctx) error {
	var req model.StoryRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.UnprocessableEntity(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Receive(&req)
	if err != nil {
		if errors.Is(err, service.ErrStoryTooShort) {
			return response.UnprocessableEntity(c, err.Error(), nil)
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Upload handles POST /api/story/upload
// @Summary      Upload a story file
// @Description  Upload a UTF-8 .txt or .md file and return its text
// @Tags         Story
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "Story file"
// @Success      200 {object} model.StoryUploadResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      413 {object} response.ErrorResponse
// @Failure      422 {object} response.ErrorResponse
// @Router       /api/story/upload [post]
func (h *StoryHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	result, err := h.service.Upload(file)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFileTooLarge):
			return response.RequestEntityTooLarge(c, "File size exceeds 5MB limit")
		case errors.Is(err, service.ErrUnsupportedFileType):
			return response.UnprocessableEntity(c, "Only .txt and .md files are supported", nil)
		case errors.Is(err, service.ErrNotUTF8), errors.Is(err, service.ErrEmptyFile):
			return response.UnprocessableEntity(c, err.Error(), nil)
		}
		return response.ServiceError(c, "Failed to save story file")
	}

	return response.OK(c, result)
}
