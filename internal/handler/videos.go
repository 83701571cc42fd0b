package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/storyscroll/api/internal/service"
	"github.com/storyscroll/api/pkg/response"
)

type VideoHandler struct {
	service *service.VideoService
}

func NewVideoHandler(svc *service.VideoService) *VideoHandler {
	return &VideoHandler{service: svc}
}

// List handles GET /api/videos
// @Summary      List background videos
// @Description  List the built-in background clips and their categories
// @Tags         Videos
// @Produce      json
// @Param        category query string false "Category ID"
// @Success      200 {object} model.VideoListResponse
// @Router       /api/videos [get]
func (h *VideoHandler) List(c *fiber.Ctx) error {
	return response.OK(c, h.service.List(c.Query("category")))
}

// Get handles GET /api/videos/:videoId
// @Summary      Get a background video
// @Tags         Videos
// @Produce      json
// @Param        videoId path string true "Video ID"
// @Success      200 {object} model.LibraryVideo
// @Failure      404 {object} response.ErrorResponse
// @Router       /api/videos/{videoId} [get]
func (h *VideoHandler) Get(c *fiber.Ctx) error {
	video, err := h.service.Get(c.Params("videoId"))
	if err != nil {
		if errors.Is(err, service.ErrVideoNotFound) {
			return response.NotFound(c, "Video not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, video)
}

// Upload handles POST /api/videos/upload
// @Summary      Upload a background video
// @Description  Upload an .mp4, .mov or .webm clip (max 500MB)
// @Tags         Videos
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "Video file"
// @Success      200 {object} model.VideoUploadResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      413 {object} response.ErrorResponse
// @Failure      422 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Router       /api/videos/upload [post]
func (h *VideoHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	result, err := h.service.Upload(file)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFileTooLarge):
			return response.RequestEntityTooLarge(c, "File size exceeds 500MB limit")
		case errors.Is(err, service.ErrUnsupportedFileType):
			return response.UnprocessableEntity(c, "Invalid file type. Supported: MP4, MOV, WEBM", nil)
		}
		return response.ServiceError(c, "Failed to save video")
	}

	return response.OK(c, result)
}
